// Package integrity runs a full decode pass over catalog records and
// classifies any stderr output into corruption evidence. See spec §4.6.
package integrity

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"videoanalyzer/internal/telemetry"
)

var filesCheckedTotal = telemetry.Default.Counter("integrity_files_checked_total", "result")

// Result is the per-file outcome of a decode pass.
type Result struct {
	FilePath  string
	Corrupted bool
	Errors    []CorruptionError
}

// ProgressEvent reports overall decode-pass progress.
type ProgressEvent struct {
	Processed   int
	Total       int
	CurrentFile string
}

// Checker runs bounded-parallel decode passes. The zero value is not
// usable — construct with NewChecker.
type Checker struct {
	binaryPath     string
	timeout        time.Duration
	maxConcurrency int
	stderrWindow   int
	progressCh     chan ProgressEvent
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout overrides the default 5-minute per-file decode timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) { c.timeout = d }
}

// WithMaxConcurrency overrides the default 4 parallel decode workers.
func WithMaxConcurrency(n int) Option {
	return func(c *Checker) { c.maxConcurrency = n }
}

// WithStderrWindow overrides the default 100-line stderr ring buffer.
func WithStderrWindow(n int) Option {
	return func(c *Checker) { c.stderrWindow = n }
}

// NewChecker resolves the decoder binary (bundled path, system install
// locations, then PATH) and returns a Checker.
func NewChecker(bundledDecoderPath string, opts ...Option) (*Checker, error) {
	bin, err := resolveDecoderBinary(bundledDecoderPath)
	if err != nil {
		return nil, err
	}
	c := &Checker{
		binaryPath:     bin,
		timeout:        5 * time.Minute,
		maxConcurrency: 4,
		stderrWindow:   100,
		progressCh:     make(chan ProgressEvent, 64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Progress returns the channel clients should read progress events from.
func (c *Checker) Progress() <-chan ProgressEvent { return c.progressCh }

func (c *Checker) emitProgress(processed, total int, file string) {
	select {
	case c.progressCh <- ProgressEvent{Processed: processed, Total: total, CurrentFile: file}:
	default:
	}
}

// Check runs a decode pass over every path with bounded concurrency
// (default 4, spec §4.6 / §5's counting-semaphore requirement realized
// here via errgroup.SetLimit rather than the Scan Engine's conc/pool —
// the two dependencies implement the same bound, see DESIGN.md). A ctx
// cancellation aborts remaining decodes and is the only way Wait returns
// a non-nil error; per-file decode failures are reported as Results, not
// errors, since one corrupt file must never abort the batch.
func (c *Checker) Check(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))
	total := len(paths)
	c.emitProgress(0, total, "")

	var processed int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := decode(gctx, c.binaryPath, path, c.timeout, c.stderrWindow)
			n := int(atomic.AddInt32(&processed, 1))
			c.emitProgress(n, total, path)
			results[i] = Result{FilePath: path, Corrupted: res.Corrupted, Errors: res.Errors}
			if res.Corrupted {
				filesCheckedTotal.WithLabelValues("corrupted")
			} else {
				filesCheckedTotal.WithLabelValues("clean")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// MarshalDetails serializes corruption errors for VideoRecord.CorruptionDetails.
// Returns nil for an empty slice so the column stays NULL.
func MarshalDetails(errs []CorruptionError) (*string, error) {
	if len(errs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

// UnmarshalDetails parses a VideoRecord.CorruptionDetails column back into
// corruption errors. A nil input yields a nil, non-error result.
func UnmarshalDetails(details *string) ([]CorruptionError, error) {
	if details == nil {
		return nil, nil
	}
	var errs []CorruptionError
	if err := json.Unmarshal([]byte(*details), &errs); err != nil {
		return nil, err
	}
	return errs, nil
}
