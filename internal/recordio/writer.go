package recordio

import (
	"fmt"
	"io"
	"sync"

	"github.com/ALT-F4-LLC/revmigrate/internal/tree"
)

// Writer appends records to a stream. Each record is written with a single
// Write call under a lock, so concurrent producers never interleave partial
// lines.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	written int64
	skipped int64
}

// NewWriter returns a Writer appending to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write appends rec unless its value is null or an empty object, in which
// case the record is skipped and false is returned.
func (w *Writer) Write(rec Record) (bool, error) {
	if tree.IsEmpty(rec.Value) {
		w.mu.Lock()
		w.skipped++
		w.mu.Unlock()
		return false, nil
	}
	return true, w.write(rec)
}

// WriteMarker appends rec even when its value is null. Loaders treat a null
// marker as an instruction to clear the key in the destination.
func (w *Writer) WriteMarker(rec Record) error {
	if o, ok := tree.AsObject(rec.Value); ok && o.Len() == 0 {
		rec.Value = nil
	}
	return w.write(rec)
}

func (w *Writer) write(rec Record) error {
	line, err := rec.marshal()
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.Key, err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("writing record %s: %w", rec.Key, err)
	}
	w.written++
	return nil
}

// Written returns the number of lines written.
func (w *Writer) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Skipped returns the number of records dropped for having no value.
func (w *Writer) Skipped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.skipped
}
