// Package archive encodes and decodes archived review payloads. A payload
// is the review serialized as JSON, zlib-compressed, then base64-encoded.
package archive

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/zeebo/errs"

	"github.com/ALT-F4-LLC/revmigrate/internal/tree"
)

// Error is the class of payload codec failures.
var Error = errs.Class("archive")

// PayloadField is the field of an archived review that holds the payload.
const PayloadField = "payload"

// Decode returns the review stored in payload.
func Decode(payload string) (tree.Value, error) {
	compressed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, Error.New("decoding base64: %v", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, Error.New("opening zlib stream: %v", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, Error.New("decompressing: %v", err)
	}
	v, err := tree.Parse(raw)
	if err != nil {
		return nil, Error.New("parsing review: %v", err)
	}
	return v, nil
}

// Encode serializes v into a payload.
func Encode(v tree.Value) (string, error) {
	raw, err := tree.Marshal(v)
	if err != nil {
		return "", Error.Wrap(err)
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return "", Error.Wrap(err)
	}
	if _, err := zw.Write(raw); err != nil {
		return "", Error.New("compressing: %v", err)
	}
	if err := zw.Close(); err != nil {
		return "", Error.New("compressing: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Unwrap decodes the payload field of an archived review entity.
func Unwrap(entity tree.Value) (tree.Value, error) {
	payload, ok := tree.AsString(tree.Lookup(entity, PayloadField))
	if !ok {
		return nil, Error.New("archived review has no %s string", PayloadField)
	}
	return Decode(payload)
}

// Wrap encodes review as an archived review entity. A nil review wraps to nil.
func Wrap(review tree.Value) (tree.Value, error) {
	if review == nil {
		return nil, nil
	}
	payload, err := Encode(review)
	if err != nil {
		return nil, fmt.Errorf("wrapping archived review: %w", err)
	}
	out := tree.NewObject()
	out.Set(PayloadField, tree.String(payload))
	return out, nil
}
