package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/llm"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/pdf"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/queue"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/scoring"
)

// Stage names used in metrics and failure reasons.
const (
	StagePreprocess = "preprocess"
	StageOCR        = "ocr"
	StageExtract    = "extract"
	StageValidator  = "validator"
)

// Failure reasons recorded on queue entries, besides the scorer's
// missing-field reasons and the validator error codes.
const (
	ReasonLowConfidence = "low_confidence"
	ReasonFilenameOnly  = "filename_only"
)

// Options modifies a single Process call.
type Options struct {
	// Name is the original file name, used by the filename fallback and as
	// the queue entry key. Empty uses the path.
	Name string
	// RetryOCR runs the fallback engine even when the primary produced text.
	RetryOCR bool
}

// page is the outcome of the preprocess stage: either a usable text layer
// or an enhanced raster.
type page struct {
	textLayer *pdf.TextLayer
	image     *image.NRGBA
	info      *document.PreprocessInfo
}

// run collects the failures of one document.
type run struct {
	reasons    []string
	errs       []error
	forceQueue bool
}

func (r *run) fail(reason string, err error, force bool) {
	r.reasons = append(r.reasons, reason)
	if err != nil {
		r.errs = append(r.errs, err)
	}
	r.forceQueue = r.forceQueue || force
}

// Process extracts the fields of the PDF at path. The returned error is nil
// or has kind document.ErrInput or document.ErrQueue; the result is returned
// in every case and always satisfies the field invariants.
func (p *Pipeline) Process(ctx context.Context, path string) (*document.ExtractionResult, error) {
	return p.ProcessWithOptions(ctx, path, Options{})
}

// ProcessWithOptions is Process with per-call options.
func (p *Pipeline) ProcessWithOptions(ctx context.Context, path string, opts Options) (*document.ExtractionResult, error) {
	name := opts.Name
	if name == "" {
		name = path
	}
	log := slog.With("file", filepath.Base(name))
	start := time.Now()
	res := document.NewResult()
	st := &run{}

	// ACQUIRE
	if _, err := pdf.CheckFile(path); err != nil {
		return p.rejectInput(res, err, log)
	}

	// PREPROCESS, with the text layer shortcut
	pg, err := runStage(ctx, p.cfg.Timeouts.Preprocess, StagePreprocess, func(ctx context.Context) (*page, error) {
		return p.prepare(ctx, path, log)
	})
	if errors.Is(err, document.ErrInput) {
		return p.rejectInput(res, err, log)
	}
	if err != nil {
		log.Warn("preprocess failed", "error", err)
		st.fail(failureReason(StagePreprocess, err), asKind(document.ErrPreprocess, StagePreprocess, err), true)
	}

	// OCR
	var text string
	var detections []ocr.Detection
	source := document.SourceOCR
	switch {
	case pg != nil && pg.textLayer != nil:
		text = pg.textLayer.Text
		source = document.SourceTextLayer
		log.Debug("using PDF text layer", "quality", pg.textLayer.Quality)
	case pg != nil && pg.image != nil:
		res.Preprocess = pg.info
		ocrStart := time.Now()
		out, err := p.adapter.ExtractText(ctx, pg.image, ocr.ExtractOptions{Retry: opts.RetryOCR})
		observeStage(StageOCR, ocrStart)
		if err != nil {
			timedOut := errors.Is(err, context.DeadlineExceeded)
			log.Warn("OCR failed", "error", err, "timeout", timedOut)
			st.fail(failureReason(StageOCR, err), err, timedOut)
		} else {
			text = out.Text
			detections = out.Detections
			log.Debug("OCR finished", "engine", out.Engine, "confidence", out.Confidence,
				"detections", len(out.Detections))
		}
	}
	res.RawText = text

	// NORMALIZE, EXTRACT, FILENAME FALLBACK, SCORE
	var fields document.Fields
	var normalized string
	extractStart := time.Now()
	if err := guard(StageExtract, func() {
		normalized = p.normalizer.Normalize(text)
		fields = p.extractor.Extract(normalized, detections)
	}); err != nil {
		log.Error("extraction failed", "error", err)
		st.fail(failureReason(StageExtract, err), err, true)
		fields = document.Fields{DocumentType: document.TypeReceipt}
	}
	observeStage(StageExtract, extractStart)
	res.SetFields(fields, source)
	res.Source = source

	if p.cfg.FilenameFallback && (fields.VendorName == "" || fields.IssueDate == "" || fields.Amount == 0) {
		filled, names := p.fallback.Apply(name, fields, p.now())
		if len(names) > 0 {
			fields = filled
			res.Apply(fields)
			for _, n := range names {
				res.MarkSource(n, document.SourceFilename)
			}
			log.Debug("filename fallback filled fields", "fields", names)
		}
	}
	if onlyFromFilename(res.FieldSources) {
		res.Source = document.SourceFilename
	}

	breakdown := scoring.Explain(fields)
	conf := breakdown.Total()
	route := scoring.Decide(conf, p.cfg.Thresholds, p.validatorEnabled())
	log.Debug("scored", "confidence", conf, "route", route, "missing", breakdown.Missing())

	if p.cfg.StrictFilenameOnly && res.Source == document.SourceFilename {
		st.fail(ReasonFilenameOnly, nil, true)
	}
	if st.forceQueue {
		route = scoring.RouteQueue
	}

	// VALIDATE
	if route == scoring.RouteValidate {
		fields, conf = p.validate(ctx, pg, normalized, fields, conf, res, st, log)
		breakdown = scoring.Explain(fields)
		route = scoring.RouteAccept
		if st.forceQueue {
			route = scoring.RouteQueue
		}
	}

	res.Confidence = conf
	res.Finalize()
	if len(st.errs) > 0 {
		// An accepted document carries no error; recovered stage failures
		// stay in the log.
		if !res.Success || route == scoring.RouteQueue {
			res.Error = document.Describe(st.errs[0])
		} else {
			for _, e := range st.errs {
				log.Warn("stage failure recovered", "error", document.Describe(e))
			}
		}
	}
	confidenceHistogram.Observe(res.Confidence)

	// ROUTE
	if route == scoring.RouteQueue {
		reasons := st.reasons
		if conf < p.cfg.Thresholds.Queue {
			reasons = append(reasons, ReasonLowConfidence)
		}
		reasons = dedupe(append(reasons, breakdown.Missing()...))
		documentsTotal.WithLabelValues(string(scoring.RouteQueue)).Inc()
		log.Info("document queued", "confidence", res.Confidence, "reasons", reasons,
			"duration_ms", time.Since(start).Milliseconds())
		err := p.queue.Enqueue(queue.Entry{
			File:           name,
			Confidence:     res.Confidence,
			PartialResult:  *res,
			FailureReasons: reasons,
		})
		if err != nil {
			log.Error("queue write failed", "error", err)
			return res, err
		}
		queueEntries.Inc()
		return res, nil
	}

	documentsTotal.WithLabelValues(string(scoring.RouteAccept)).Inc()
	log.Info("document accepted", "confidence", res.Confidence, "vendor", res.VendorName,
		"amount", res.Amount, "date", res.IssueDate, "source", res.Source,
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// prepare returns the text layer when it is good enough, otherwise the
// enhanced page raster.
func (p *Pipeline) prepare(ctx context.Context, path string, log *slog.Logger) (*page, error) {
	if p.cfg.PreferTextLayer {
		tl, err := pdf.ExtractTextLayer(path)
		switch {
		case err != nil:
			log.Debug("no text layer", "error", err)
		case tl.Usable(p.cfg.TextLayerThreshold):
			return &page{textLayer: tl}, nil
		default:
			log.Debug("text layer below quality threshold", "quality", tl.Quality)
		}
	}

	acquired, err := p.acquirer.FirstPage(ctx, path)
	if err != nil {
		return nil, err
	}
	enhanced, err := p.enhancer.Enhance(ctx, acquired.Image)
	if err != nil {
		return nil, err
	}
	return &page{image: enhanced.Image, info: enhanced.Info()}, nil
}

// validate asks the LLM validator for a second reading and merges it. On a
// validator failure the regex fields are kept; a timeout forces the queue.
func (p *Pipeline) validate(ctx context.Context, pg *page, text string, regex document.Fields, conf float64,
	res *document.ExtractionResult, st *run, log *slog.Logger,
) (document.Fields, float64) {
	var img []byte
	if pg != nil && pg.image != nil {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, pg.image, imaging.PNG); err == nil {
			img = buf.Bytes()
		}
	}

	merged, err := runStage(ctx, p.cfg.Timeouts.Validator, StageValidator, func(ctx context.Context) (*llm.MergeResult, error) {
		cand, err := p.validator.Validate(ctx, img, text)
		if err != nil {
			return nil, err
		}
		return llm.Merge(ctx, p.validator, img, regex, cand)
	})
	if err != nil {
		code := llm.CodeOf(err)
		verr := &llm.ValidatorError{Code: code, Err: err}
		if code == llm.CodeTimeout {
			st.fail(failureReason(StageValidator, context.DeadlineExceeded), verr, true)
		} else {
			st.fail(code, verr, false)
		}
		log.Warn("validator failed, keeping regex result", "code", code, "error", err)
		return regex, conf
	}

	res.Apply(merged.Fields)
	for _, name := range merged.Taken {
		res.MarkSource(name, document.SourceLLM)
	}
	newConf := scoring.Score(merged.Fields)
	log.Debug("validator merged", "taken", merged.Taken, "reasons", merged.Reasons,
		"confidence_before", conf, "confidence_after", newConf)
	return merged.Fields, newConf
}

func (p *Pipeline) validatorEnabled() bool {
	return p.cfg.EnableLLMValidator && p.validator != nil
}

func (p *Pipeline) rejectInput(res *document.ExtractionResult, err error, log *slog.Logger) (*document.ExtractionResult, error) {
	res.Error = document.Describe(err)
	res.Finalize()
	documentsTotal.WithLabelValues("input_error").Inc()
	log.Warn("input rejected", "error", err)
	return res, err
}

// runStage runs fn on its own goroutine under budget. A result that arrives
// after the deadline is dropped; a panic becomes an error.
func runStage[T any](ctx context.Context, budget time.Duration, stage string, fn func(context.Context) (T, error)) (T, error) {
	stageCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	start := time.Now()
	defer observeStage(stage, start)

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%s panic: %v", stage, r)}
			}
		}()
		v, err := fn(stageCtx)
		done <- outcome{v: v, err: err}
	}()

	select {
	case <-stageCtx.Done():
		var zero T
		return zero, fmt.Errorf("%s: %w", stage, stageCtx.Err())
	case out := <-done:
		return out.v, out.err
	}
}

// guard runs fn and turns a panic into an error.
func guard(stage string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panic: %v", stage, r)
		}
	}()
	fn()
	return nil
}

func failureReason(stage string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout_" + stage
	}
	return stage + "_failed"
}

// asKind wraps err in kind unless it already carries one.
func asKind(kind error, op string, err error) error {
	if document.KindOf(err) != nil {
		return err
	}
	detail := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		detail = "timeout"
	}
	return document.NewError(kind, op, detail, err)
}

func onlyFromFilename(sources map[string]string) bool {
	if len(sources) == 0 {
		return false
	}
	for _, s := range sources {
		if s != document.SourceFilename {
			return false
		}
	}
	return true
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
