// Package fanout runs a worker over a set of items with a cap on how many
// calls are in flight at once.
package fanout

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

// Option configures a run.
type Option func(*options)

type options struct {
	progress func()
}

// WithProgress registers fn to be called once per item that finished,
// whether it succeeded or failed.
func WithProgress(fn func()) Option {
	return func(o *options) { o.progress = fn }
}

// Run calls fn for every item with at most limit calls unresolved at any
// time. It returns once all started calls have returned.
//
// After the first failure no further items are started; calls already in
// flight keep their context and run to completion. The first error is
// returned. A limit below one is treated as one.
func Run[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error, opts ...Option) error {
	return Stream(ctx, func(yield func(T, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}, limit, fn, opts...)
}

// Stream is Run over a lazily produced sequence. An error yielded by seq
// stops the run and is returned once in-flight calls finish.
func Stream[T any](ctx context.Context, seq iter.Seq2[T, error], limit int, fn func(context.Context, T) error, opts ...Option) error {
	o := options{progress: func() {}}
	for _, opt := range opts {
		opt(&o)
	}
	if limit < 1 {
		limit = 1
	}

	// failed is cancelled on the first error and only gates new starts;
	// workers receive ctx so in-flight calls are never cut short.
	g, failed := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for item, err := range seq {
		if err != nil {
			g.Go(func() error { return err })
			break
		}
		if failed.Err() != nil {
			break
		}
		g.Go(func() error {
			if failed.Err() != nil {
				return nil
			}
			defer o.progress()
			return fn(ctx, item)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
