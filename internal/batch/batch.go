// Package batch processes many PDFs through one shared pipeline with a
// bounded number of concurrent documents.
package batch

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/pipeline"
)

// Processor is the part of *pipeline.Pipeline a batch needs.
type Processor interface {
	ProcessWithOptions(ctx context.Context, path string, opts pipeline.Options) (*document.ExtractionResult, error)
}

// Options configures Run.
type Options struct {
	// Workers bounds the documents in flight; zero uses NumCPU.
	Workers  int
	RetryOCR bool
	Progress ProgressCallback
	// OnResult is called once per finished document, never concurrently.
	OnResult func(Item)
}

// Item is the outcome for one file.
type Item struct {
	File     string                     `json:"file"`
	Result   *document.ExtractionResult `json:"result,omitempty"`
	Error    string                     `json:"error,omitempty"`
	Err      error                      `json:"-"`
	Duration time.Duration              `json:"-"`
}

// Result holds the items of a batch in input order.
type Result struct {
	Items    []Item
	Duration time.Duration
	Workers  int
}

// Run processes files with at most opts.Workers documents in flight. A
// failing document does not stop the others; only cancelling ctx does, in
// which case the unprocessed items carry the context error and Run returns it.
func Run(ctx context.Context, p Processor, files []string, opts Options) (*Result, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(files) && len(files) > 0 {
		workers = len(files)
	}
	progress := opts.Progress
	if progress == nil {
		progress = NoOpProgressCallback{}
	}

	start := time.Now()
	items := make([]Item, len(files))
	for i, f := range files {
		items[i].File = f
	}

	var mu sync.Mutex
	done := 0
	finish := func(i int, item Item) {
		mu.Lock()
		defer mu.Unlock()
		items[i] = item
		done++
		if item.Err != nil {
			progress.OnError(item.File, item.Err)
		}
		progress.OnProgress(done, len(files))
		if opts.OnResult != nil {
			opts.OnResult(item)
		}
	}

	progress.OnStart(len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docStart := time.Now()
			res, err := p.ProcessWithOptions(gctx, file, pipeline.Options{RetryOCR: opts.RetryOCR})
			item := Item{File: file, Result: res, Err: err, Duration: time.Since(docStart)}
			if err != nil {
				item.Error = document.Describe(err)
			}
			finish(i, item)
			return nil
		})
	}
	waitErr := g.Wait()
	progress.OnComplete()

	result := &Result{Items: items, Duration: time.Since(start), Workers: workers}
	if err := ctx.Err(); err != nil {
		waitErr = err
	}
	if waitErr != nil {
		for i := range items {
			if items[i].Result == nil && items[i].Err == nil {
				items[i].Err = waitErr
				items[i].Error = waitErr.Error()
			}
		}
		slog.Warn("batch interrupted", "error", waitErr, "processed", done, "total", len(files))
		return result, waitErr
	}
	slog.Info("batch finished", "documents", len(files), "workers", workers,
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// Stats summarizes a batch.
type Stats struct {
	Total          int
	Succeeded      int
	Failed         int
	Errors         int
	MeanConfidence float64
	Duration       time.Duration
	PerDocument    time.Duration
}

// Stats counts successful extractions, failed extractions and errored
// documents.
func (r *Result) Stats() Stats {
	s := Stats{Total: len(r.Items), Duration: r.Duration}
	var confSum float64
	var withResult int
	for _, it := range r.Items {
		if it.Err != nil {
			s.Errors++
		}
		if it.Result == nil {
			continue
		}
		withResult++
		confSum += it.Result.Confidence
		if it.Result.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	if withResult > 0 {
		s.MeanConfidence = confSum / float64(withResult)
	}
	if s.Total > 0 {
		s.PerDocument = r.Duration / time.Duration(s.Total)
	}
	return s
}
