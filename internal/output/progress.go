package output

import (
	"os"
	"sync/atomic"

	progressbar "github.com/cheggaaa/pb/v3"
	"golang.org/x/term"
)

// Progress counts finished work items and, on an interactive terminal,
// draws a progress bar on Stderr. A nil *Progress is valid and counts
// nothing.
type Progress struct {
	bar   *progressbar.ProgressBar
	done  atomic.Int64
	total atomic.Int64
}

// Progress starts a progress counter for total items labelled prefix. The
// bar is drawn only in human, non-quiet mode when Stderr is a terminal.
func (w *Writer) Progress(prefix string, total int64) *Progress {
	p := &Progress{}
	p.total.Store(total)
	if w.JSONMode || w.QuietMode || !isTerminal(w) {
		return p
	}
	p.bar = progressbar.New64(total).SetWriter(w.Stderr)
	p.bar.Set("prefix", prefix+" ")
	p.bar.Start()
	return p
}

func isTerminal(w *Writer) bool {
	f, ok := w.Stderr.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Increment records one finished item.
func (p *Progress) Increment() {
	if p == nil {
		return
	}
	p.done.Add(1)
	if p.bar != nil {
		p.bar.Increment()
	}
}

// AddTotal grows the expected item count by n.
func (p *Progress) AddTotal(n int64) {
	if p == nil {
		return
	}
	p.total.Add(n)
	if p.bar != nil {
		p.bar.AddTotal(n)
	}
}

// Done returns the number of finished items.
func (p *Progress) Done() int64 {
	if p == nil {
		return 0
	}
	return p.done.Load()
}

// Total returns the expected item count.
func (p *Progress) Total() int64 {
	if p == nil {
		return 0
	}
	return p.total.Load()
}

// Finish stops drawing the bar.
func (p *Progress) Finish() {
	if p != nil && p.bar != nil {
		p.bar.Finish()
	}
}
