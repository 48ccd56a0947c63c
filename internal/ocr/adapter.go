package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

// ErrEmptyText marks an engine run that returned no usable text.
var ErrEmptyText = errors.New("engine returned empty text")

// Options configures the adapter.
type Options struct {
	Primary   string
	Fallback  string
	Languages []string
	UseGPU    bool
	// Timeout bounds each engine run; zero disables the bound.
	Timeout time.Duration
}

// ExtractOptions modifies a single ExtractText call.
type ExtractOptions struct {
	// Retry skips straight to the fallback engine after a primary success,
	// for callers that rejected the primary text.
	Retry bool
}

// RunObserver receives one call per engine run.
type RunObserver func(engine string, status string, elapsed time.Duration)

// Adapter runs the primary engine and falls back on error or empty text.
type Adapter struct {
	registry *Registry
	opts     Options
	observe  RunObserver
}

// NewAdapter creates an adapter over the registry.
func NewAdapter(registry *Registry, opts Options) *Adapter {
	return &Adapter{registry: registry, opts: opts}
}

// WithObserver sets a callback for engine run metrics.
func (a *Adapter) WithObserver(fn RunObserver) *Adapter {
	a.observe = fn
	return a
}

// HasFallback reports whether a fallback engine is configured.
func (a *Adapter) HasFallback() bool {
	return a.opts.Fallback != "" && a.opts.Fallback != KindNone && a.opts.Fallback != a.opts.Primary
}

// ExtractText returns the first non-empty result. When both engines fail the
// error has kind document.ErrOCR and wraps each engine's failure, including
// context.DeadlineExceeded for an engine that ran out of time.
func (a *Adapter) ExtractText(ctx context.Context, img image.Image, opts ExtractOptions) (*Result, error) {
	if img == nil {
		return nil, document.NewError(document.ErrOCR, "ocr", "nil image", nil)
	}

	var errs []error
	primary, err := a.run(ctx, a.opts.Primary, img)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("%s: %w", a.opts.Primary, err))
	case !opts.Retry || !a.HasFallback():
		return primary, nil
	}

	if a.HasFallback() && ctx.Err() == nil {
		slog.Info("falling back to secondary OCR engine",
			"primary", a.opts.Primary, "fallback", a.opts.Fallback, "retry", opts.Retry, "error", err)
		fallback, ferr := a.run(ctx, a.opts.Fallback, img)
		if ferr == nil {
			return fallback, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", a.opts.Fallback, ferr))
	}
	if primary != nil {
		return primary, nil
	}
	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	joined := errors.Join(errs...)
	return nil, document.NewError(document.ErrOCR, "ocr", joined.Error(), joined)
}

// run executes one engine under the per-engine timeout. The engine runs on
// its own goroutine; a result that arrives after the deadline is dropped.
func (a *Adapter) run(ctx context.Context, kind string, img image.Image) (*Result, error) {
	engine, err := a.registry.Get(NewKey(kind, a.opts.Languages, a.opts.UseGPU))
	if err != nil {
		a.record(kind, "init_error", 0)
		return nil, err
	}

	runCtx := ctx
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("engine panic: %v", p)}
			}
		}()
		res, err := engine.Recognize(runCtx, img)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-runCtx.Done():
		a.record(kind, "timeout", time.Since(start))
		return nil, fmt.Errorf("%s: %w", kind, runCtx.Err())
	case out := <-done:
		elapsed := time.Since(start)
		if out.err != nil {
			a.record(kind, "error", elapsed)
			return nil, out.err
		}
		if out.res == nil || strings.TrimSpace(out.res.Text) == "" {
			a.record(kind, "empty", elapsed)
			return nil, ErrEmptyText
		}
		a.record(kind, "ok", elapsed)
		out.res.Engine = engine.Name()
		slog.Debug("OCR engine finished", "engine", engine.Name(),
			"confidence", out.res.Confidence, "detections", len(out.res.Detections),
			"duration_ms", elapsed.Milliseconds())
		return out.res, nil
	}
}

func (a *Adapter) record(engine, status string, elapsed time.Duration) {
	if a.observe != nil {
		a.observe(engine, status, elapsed)
	}
}
