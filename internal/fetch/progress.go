package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// ProgressInterval bounds how often a download reports progress.
const ProgressInterval = 250 * time.Millisecond

// Progress is one download progress report. Total is -1 when the server sent
// no Content-Length.
type Progress struct {
	Label   string
	Written int64
	Total   int64
}

func (p Progress) String() string {
	if p.Total <= 0 {
		return fmt.Sprintf("Downloading %s: %s", p.Label, humanize.Bytes(uint64(p.Written)))
	}
	return fmt.Sprintf("Downloading %s: %s / %s", p.Label, humanize.Bytes(uint64(p.Written)), humanize.Bytes(uint64(p.Total)))
}

// Fraction is in [0,1], or 0 when the total is unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Written) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}

type progressKey struct{}

// WithProgress returns a context whose downloads report to fn. Reports are
// throttled to one per ProgressInterval plus a final one on completion.
// fn runs on the downloading goroutine.
func WithProgress(ctx context.Context, fn func(Progress)) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func progressFunc(ctx context.Context) func(Progress) {
	fn, _ := ctx.Value(progressKey{}).(func(Progress))
	return fn
}

type progressWriter struct {
	fn       func(Progress)
	label    string
	total    int64
	written  int64
	throttle rate.Sometimes
}

func newProgressWriter(ctx context.Context, label string, total int64) *progressWriter {
	return &progressWriter{
		fn:       progressFunc(ctx),
		label:    label,
		total:    total,
		throttle: rate.Sometimes{Interval: ProgressInterval},
	}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.fn != nil {
		w.throttle.Do(w.report)
	}
	return len(p), nil
}

func (w *progressWriter) finish() {
	if w.fn != nil {
		w.report()
	}
}

func (w *progressWriter) report() {
	w.fn(Progress{Label: w.label, Written: w.written, Total: w.total})
}
