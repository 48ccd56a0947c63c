package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/llm"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/models"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/normalize"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr/paddle"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr/tesseract"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/pdf"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/scoring"
)

// Timeouts are the per-stage budgets. OCR applies to each engine run.
type Timeouts struct {
	Preprocess time.Duration
	OCR        time.Duration
	Validator  time.Duration
}

// DefaultTimeouts returns the standard stage budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Preprocess: 10 * time.Second,
		OCR:        60 * time.Second,
		Validator:  120 * time.Second,
	}
}

// Bound is the longest Process may take: preprocess, two engine runs and
// the validator.
func (t Timeouts) Bound() time.Duration {
	return t.Preprocess + 2*t.OCR + t.Validator
}

// Config holds configuration for the extraction pipeline and its components.
type Config struct {
	ModelsDir      string
	DictionaryPath string

	DPI            int
	PdftoppmPath   string
	UseGPU         bool
	PrimaryEngine  string
	FallbackEngine string
	Languages      []string

	Thresholds         scoring.Thresholds
	EnableLLMValidator bool

	YearFloor           int
	SelfDenyVendorRegex string
	YearShiftRepair     bool

	QueuePath string

	LiteMode          bool
	Force4WayRotation bool
	SkewThresholdDeg  float64
	Sharpen           bool

	PreferTextLayer    bool
	TextLayerThreshold float64
	FilenameFallback   bool
	StrictFilenameOnly bool

	Timeouts Timeouts

	Paddle    paddle.Config
	Tesseract tesseract.Config
	LLM       llm.Config
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		ModelsDir:          models.DefaultModelsDir,
		DPI:                300,
		PdftoppmPath:       "pdftoppm",
		PrimaryEngine:      ocr.KindPaddle,
		FallbackEngine:     ocr.KindTesseract,
		Languages:          append([]string(nil), tesseract.DefaultLanguages...),
		Thresholds:         scoring.DefaultThresholds(),
		YearFloor:          normalize.DefaultYearFloor,
		QueuePath:          "manual_queue.json",
		SkewThresholdDeg:   0.5,
		Sharpen:            true,
		PreferTextLayer:    true,
		TextLayerThreshold: pdf.DefaultQualityThreshold,
		FilenameFallback:   true,
		Timeouts:           DefaultTimeouts(),
		Paddle:             paddle.DefaultConfig(),
		Tesseract:          tesseract.DefaultConfig(),
		LLM:                llm.DefaultConfig(),
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.DPI < 72 || c.DPI > 1200 {
		return fmt.Errorf("dpi must be within 72..1200, got %d", c.DPI)
	}
	if c.YearFloor < 2000 || c.YearFloor > 2100 {
		return fmt.Errorf("year_floor must be within 2000..2100, got %d", c.YearFloor)
	}
	if c.SelfDenyVendorRegex != "" {
		if _, err := regexp.Compile(c.SelfDenyVendorRegex); err != nil {
			return fmt.Errorf("self_deny_vendor_regex: %w", err)
		}
	}
	if c.PrimaryEngine == "" || c.PrimaryEngine == ocr.KindNone {
		return errors.New("primary engine is required")
	}
	if c.FallbackEngine != "" && c.FallbackEngine != ocr.KindNone && c.FallbackEngine == c.PrimaryEngine {
		return fmt.Errorf("fallback engine must differ from primary %q", c.PrimaryEngine)
	}
	if len(c.Languages) == 0 {
		return errors.New("at least one OCR language is required")
	}
	if c.Timeouts.Preprocess <= 0 || c.Timeouts.OCR <= 0 || c.Timeouts.Validator <= 0 {
		return errors.New("stage timeouts must be positive")
	}
	if c.QueuePath == "" {
		return errors.New("queue path is required")
	}
	return nil
}
