// Package pipeline runs one PDF through acquisition, image enhancement, OCR,
// normalization, field extraction, scoring and routing.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/dictionary"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/extract"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/filename"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/llm"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/normalize"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr/paddle"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr/tesseract"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/pdf"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/preprocess"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/queue"
)

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg       Config
	factories map[string]ocr.Factory
	validator llm.Validator
	queue     *queue.Queue
	dict      *dictionary.Dictionary
	runner    ocr.Runner
	now       func() time.Time
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder {
	return &Builder{cfg: DefaultConfig(), factories: map[string]ocr.Factory{}}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithModelsDir sets the ONNX model root for the paddle engine.
func (b *Builder) WithModelsDir(dir string) *Builder {
	if dir != "" {
		b.cfg.ModelsDir = dir
		b.cfg.Paddle.ModelsDir = dir
	}
	return b
}

// WithEngineFactory overrides the factory for an engine tag.
func (b *Builder) WithEngineFactory(kind string, f ocr.Factory) *Builder {
	b.factories[kind] = f
	return b
}

// WithValidator sets the LLM validator. It is consulted only when
// EnableLLMValidator is set.
func (b *Builder) WithValidator(v llm.Validator) *Builder {
	b.validator = v
	return b
}

// WithQueue overrides the queue built from QueuePath.
func (b *Builder) WithQueue(q *queue.Queue) *Builder {
	b.queue = q
	return b
}

// WithDictionary overrides the dictionary loaded from DictionaryPath.
func (b *Builder) WithDictionary(d *dictionary.Dictionary) *Builder {
	b.dict = d
	return b
}

// WithRunner sets the external process runner for pdftoppm and tesseract.
func (b *Builder) WithRunner(r ocr.Runner) *Builder {
	b.runner = r
	return b
}

// WithClock sets the time source used by the filename fallback.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Validate checks the configuration.
func (b *Builder) Validate() error {
	return b.cfg.Validate()
}

// Pipeline holds the immutable components shared by every Process call.
type Pipeline struct {
	cfg        Config
	acquirer   *pdf.Acquirer
	enhancer   *preprocess.Enhancer
	registry   *ocr.Registry
	adapter    *ocr.Adapter
	normalizer *normalize.Normalizer
	extractor  *extract.Extractor
	fallback   *filename.Fallback
	validator  llm.Validator
	queue      *queue.Queue
	now        func() time.Time
}

// Build wires the components. Engines are created lazily on first use.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	cfg := b.cfg

	dict := b.dict
	if dict == nil {
		d, err := dictionary.Load(cfg.DictionaryPath)
		if err != nil {
			return nil, fmt.Errorf("load dictionary: %w", err)
		}
		dict = d
	}

	norm := normalize.New(dict, normalize.Options{
		YearShiftRepair: cfg.YearShiftRepair,
		YearFloor:       cfg.YearFloor,
	})
	ext, err := extract.New(dict, extract.Options{
		YearFloor:      cfg.YearFloor,
		SelfDenyVendor: cfg.SelfDenyVendorRegex,
		LineNormalizer: norm.Normalize,
	})
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}

	registry := ocr.NewRegistry()
	for kind, f := range b.defaultFactories() {
		registry.Register(kind, f)
	}
	for kind, f := range b.factories {
		registry.Register(kind, f)
	}
	for _, kind := range []string{cfg.PrimaryEngine, cfg.FallbackEngine} {
		if kind == "" || kind == ocr.KindNone {
			continue
		}
		if !contains(registry.Kinds(), kind) {
			return nil, fmt.Errorf("unknown OCR engine %q", kind)
		}
	}
	adapter := ocr.NewAdapter(registry, ocr.Options{
		Primary:   cfg.PrimaryEngine,
		Fallback:  cfg.FallbackEngine,
		Languages: cfg.Languages,
		UseGPU:    cfg.UseGPU,
		Timeout:   cfg.Timeouts.OCR,
	}).WithObserver(observeEngineRun)

	validator := b.validator
	if cfg.EnableLLMValidator && validator == nil {
		v, err := llm.NewOpenAI(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("init validator: %w", err)
		}
		validator = v
	}

	q := b.queue
	if q == nil {
		q = queue.New(cfg.QueuePath)
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	enhCfg := preprocess.DefaultConfig()
	enhCfg.SkewThreshold = cfg.SkewThresholdDeg
	enhCfg.Sharpen = cfg.Sharpen
	enhCfg.LiteMode = cfg.LiteMode
	enhCfg.Force4Way = cfg.Force4WayRotation

	p := &Pipeline{
		cfg: cfg,
		acquirer: pdf.NewAcquirer(pdf.Config{
			DPI:          cfg.DPI,
			PdftoppmPath: cfg.PdftoppmPath,
			Runner:       b.runner,
		}),
		enhancer:   preprocess.NewEnhancer(enhCfg),
		registry:   registry,
		adapter:    adapter,
		normalizer: norm,
		extractor:  ext,
		fallback:   filename.New(dict),
		validator:  validator,
		queue:      q,
		now:        now,
	}
	slog.Info("pipeline ready",
		"primary", cfg.PrimaryEngine, "fallback", cfg.FallbackEngine,
		"languages", cfg.Languages, "gpu", cfg.UseGPU, "lite", cfg.LiteMode,
		"validator", cfg.EnableLLMValidator && validator != nil, "queue", q.Path())
	return p, nil
}

func (b *Builder) defaultFactories() map[string]ocr.Factory {
	pc := b.cfg.Paddle
	if pc.ModelsDir == "" || pc.ModelsDir == paddle.DefaultConfig().ModelsDir {
		pc.ModelsDir = b.cfg.ModelsDir
	}
	pc.Lite = b.cfg.LiteMode
	tc := b.cfg.Tesseract
	if tc.Runner == nil {
		tc.Runner = b.runner
	}
	return map[string]ocr.Factory{
		ocr.KindPaddle:    paddle.Factory(pc),
		ocr.KindTesseract: tesseract.Factory(tc),
	}
}

// Close releases the OCR engines.
func (p *Pipeline) Close() error {
	if p == nil || p.registry == nil {
		return errors.New("pipeline not initialized")
	}
	return p.registry.Close()
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Queue returns the manual review queue.
func (p *Pipeline) Queue() *queue.Queue { return p.queue }

// Info returns the pipeline properties reported by the health endpoint.
func (p *Pipeline) Info() map[string]any {
	return map[string]any{
		"primary_engine":   p.cfg.PrimaryEngine,
		"fallback_engine":  p.cfg.FallbackEngine,
		"engines":          p.registry.Kinds(),
		"languages":        p.cfg.Languages,
		"use_gpu":          p.cfg.UseGPU,
		"lite_mode":        p.cfg.LiteMode,
		"validator":        p.cfg.EnableLLMValidator && p.validator != nil,
		"queue_path":       p.queue.Path(),
		"accept_threshold": p.cfg.Thresholds.Accept,
		"queue_threshold":  p.cfg.Thresholds.Queue,
	}
}

func contains(list []string, s string) bool {
	i := sort.SearchStrings(list, s)
	return i < len(list) && list[i] == s
}
