// Package firebase implements store.Store over the Firebase Realtime
// Database REST protocol.
package firebase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/revmigrate/internal/store"
	"github.com/ALT-F4-LLC/revmigrate/internal/tree"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxElapsed = 2 * time.Minute
	maxTxAttempts     = 25
)

// Config configures a Client.
type Config struct {
	// BaseURL is the database root, e.g. https://example.firebaseio.com.
	BaseURL string
	// Secret is sent as the auth query parameter when set.
	Secret string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// MaxElapsed bounds the total time spent retrying one operation.
	MaxElapsed time.Duration
	// HTTPClient overrides the default client; its Timeout is left alone.
	HTTPClient *http.Client
}

// Client talks to one database.
type Client struct {
	base       *url.URL
	secret     string
	http       *http.Client
	maxElapsed time.Duration
	log        *zap.Logger
}

var _ store.Store = (*Client)(nil)

// New returns a client for cfg.BaseURL.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, store.Error.New("parsing store URL: %v", err)
	}
	if base.Scheme != "https" && base.Scheme != "http" {
		return nil, store.Error.New("store URL %q must be http or https", cfg.BaseURL)
	}
	if log == nil {
		log = zap.NewNop()
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	maxElapsed := cfg.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = defaultMaxElapsed
	}

	return &Client{
		base:       base,
		secret:     cfg.Secret,
		http:       hc,
		maxElapsed: maxElapsed,
		log:        log.Named("firebase"),
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Get fetches the value at path.
func (c *Client) Get(ctx context.Context, path string) (tree.Value, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.value, nil
}

// Set replaces the value at path, deleting it when v is nil.
func (c *Client) Set(ctx context.Context, path string, v tree.Value) error {
	if v == nil {
		_, err := c.do(ctx, http.MethodDelete, path, nil, nil)
		return err
	}
	_, err := c.do(ctx, http.MethodPut, path, v, nil)
	return err
}

// Update merges fields into path. Field keys may be nested paths.
func (c *Client) Update(ctx context.Context, path string, fields *tree.Object) error {
	if fields.Len() == 0 {
		return nil
	}
	_, err := c.do(ctx, http.MethodPatch, path, fields, nil)
	return err
}

// Transaction performs a compare-and-set loop using ETags.
func (c *Client) Transaction(ctx context.Context, path string, fn store.TransactionFunc) (tree.Value, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, http.Header{"X-Firebase-ETag": {"true"}})
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		next, err := fn(resp.value)
		if err != nil {
			return nil, err
		}

		header := http.Header{"if-match": {resp.etag}, "X-Firebase-ETag": {"true"}}
		method := http.MethodPut
		if next == nil {
			method = http.MethodDelete
		}
		_, err = c.do(ctx, method, path, next, header)
		if err == nil {
			return next, nil
		}

		var conflict *conflictError
		if !errors.As(err, &conflict) {
			return nil, err
		}
		c.log.Debug("transaction conflict", zap.String("path", path), zap.Int("attempt", attempt))
		resp = conflict.current
	}
	return nil, store.Error.New("transaction %s: gave up after %d conflicting attempts", path, maxTxAttempts)
}

type response struct {
	value tree.Value
	etag  string
}

// conflictError reports a failed if-match precondition along with the
// value the server holds now.
type conflictError struct {
	current response
}

func (e *conflictError) Error() string { return "precondition failed" }

// statusError is a non-2xx reply.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("HTTP %d", e.code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.code, e.message)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

func (c *Client) do(ctx context.Context, method, path string, body tree.Value, header http.Header) (response, error) {
	var payload []byte
	if method == http.MethodPut || method == http.MethodPatch {
		var err error
		if payload, err = tree.Marshal(body); err != nil {
			return response{}, store.Error.New("%s %s: encoding body: %v", method, path, err)
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed

	var resp response
	err := backoff.Retry(func() error {
		var err error
		resp, err = c.roundTrip(ctx, method, path, payload, header)
		if err == nil {
			return nil
		}
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return backoff.Permanent(err)
		}
		var ce *conflictError
		if errors.As(err, &ce) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		c.log.Debug("retrying request", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		var ce *conflictError
		if errors.As(err, &ce) {
			return response{}, err
		}
		return response{}, store.Error.New("%s %s: %v", method, path, err)
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, header http.Header) (response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return response{}, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return response{}, fmt.Errorf("reading response: %w", err)
	}

	if res.StatusCode == http.StatusPreconditionFailed {
		current, err := decode(data)
		if err != nil {
			return response{}, err
		}
		return response{}, &conflictError{current: response{value: current, etag: res.Header.Get("ETag")}}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return response{}, &statusError{code: res.StatusCode, message: errorMessage(data)}
	}

	if method == http.MethodDelete || method == http.MethodPatch {
		return response{etag: res.Header.Get("ETag")}, nil
	}
	v, err := decode(data)
	if err != nil {
		return response{}, err
	}
	return response{value: v, etag: res.Header.Get("ETag")}, nil
}

func (c *Client) endpoint(path string) string {
	segs := store.Split(path)
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	endpoint := strings.TrimRight(c.base.String(), "/") + "/" + strings.Join(segs, "/") + ".json"
	if c.secret != "" {
		endpoint += "?" + url.Values{"auth": {c.secret}}.Encode()
	}
	return endpoint
}

func decode(data []byte) (tree.Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	v, err := tree.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return v, nil
}

func errorMessage(data []byte) string {
	v, err := tree.Parse(data)
	if err != nil {
		return strings.TrimSpace(string(data))
	}
	msg, _ := tree.AsString(tree.Lookup(v, "error"))
	return msg
}
