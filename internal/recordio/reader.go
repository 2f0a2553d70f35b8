package recordio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"iter"

	"golang.org/x/time/rate"
)

// Reader parses records one line at a time. Memory use is bounded by the
// longest line, not the file size.
type Reader struct {
	r    *bufio.Reader
	line int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Line returns the 1-based number of the line most recently read.
func (r *Reader) Line() int { return r.line }

// Next returns the next record, or io.EOF at the end of input. Blank lines
// are ignored. A line that does not parse is an ErrMalformed error.
func (r *Reader) Next() (Record, error) {
	for {
		raw, err := r.r.ReadBytes('\n')
		if len(raw) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, err
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return Record{}, err
		}
		r.line++

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		rec, perr := unmarshal(raw)
		if perr != nil {
			return Record{}, ErrMalformed.New("line %d: %v", r.line, perr)
		}
		return rec, nil
	}
}

// Numbered is a record with its line number.
type Numbered struct {
	Line int
	Record
}

// All returns the remaining records as a lazy sequence. Iteration stops after
// the first error, which is yielded with a zero record.
func (r *Reader) All() iter.Seq2[Numbered, error] {
	return func(yield func(Numbered, error) bool) {
		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Numbered{}, err)
				return
			}
			if !yield(Numbered{Line: r.line, Record: rec}, nil) {
				return
			}
		}
	}
}

// Skip discards the next n records, returning early at end of input.
func (r *Reader) Skip(n int) (int, error) {
	for i := 0; i < n; i++ {
		if _, err := r.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				return i, nil
			}
			return i, err
		}
	}
	return n, nil
}

// throttledReader limits how fast bytes are consumed from an underlying
// reader.
type throttledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

// NewThrottledReader returns a reader that consumes at most bytesPerSecond
// from r. A non-positive rate returns r unchanged.
func NewThrottledReader(ctx context.Context, r io.Reader, bytesPerSecond int) io.Reader {
	if bytesPerSecond <= 0 {
		return r
	}
	return &throttledReader{
		ctx:     ctx,
		r:       r,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond),
	}
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if burst := t.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.limiter.WaitN(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
