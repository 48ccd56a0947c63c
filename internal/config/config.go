package config

import (
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/llm"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/models"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/normalize"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr/tesseract"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/pdf"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/pipeline"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/scoring"
)

const infoLevel = "info"

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	p := pipeline.DefaultConfig()
	tc := tesseract.DefaultConfig()
	lc := llm.DefaultConfig()
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  infoLevel,
		Pipeline: PipelineConfig{
			DPI:                       p.DPI,
			PrimaryEngine:             p.PrimaryEngine,
			FallbackEngine:            p.FallbackEngine,
			Languages:                 append([]string(nil), p.Languages...),
			ConfidenceThresholdAccept: scoring.DefaultAcceptThreshold,
			ConfidenceThresholdQueue:  scoring.DefaultQueueThreshold,
			QueuePath:                 p.QueuePath,
			YearFloor:                 normalize.DefaultYearFloor,
			SkewThresholdDeg:          p.SkewThresholdDeg,
			Sharpen:                   p.Sharpen,
			PreferTextLayer:           p.PreferTextLayer,
			TextLayerThreshold:        pdf.DefaultQualityThreshold,
			FilenameFallback:          p.FilenameFallback,
			Timeouts: TimeoutsConfig{
				Preprocess: p.Timeouts.Preprocess,
				OCR:        p.Timeouts.OCR,
				Validator:  p.Timeouts.Validator,
			},
		},
		OCR: OCRConfig{
			TesseractPath: tc.Path,
			PSM:           tc.PSM,
			PdftoppmPath:  p.PdftoppmPath,
		},
		LLM: LLMConfig{
			BaseURL:         lc.BaseURL,
			Model:           lc.Model,
			Temperature:     lc.Temperature,
			MaxRetries:      lc.MaxRetries,
			Backoff:         lc.Backoff,
			LenientOptional: lc.LenientOptional,
		},
		Batch: BatchConfig{
			Workers: runtime.NumCPU(),
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      300,
			ShutdownTimeout: 10,
		},
		GPU: GPUConfig{
			Device:      0,
			MemoryLimit: "auto",
		},
	}
}

var knownEngines = []string{ocr.KindPaddle, ocr.KindTesseract}

// Validate validates the configuration and returns the first error found.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	p := c.Pipeline
	if err := validateThreshold(p.ConfidenceThresholdAccept, "pipeline.confidence_threshold_accept"); err != nil {
		return err
	}
	if err := validateThreshold(p.ConfidenceThresholdQueue, "pipeline.confidence_threshold_queue"); err != nil {
		return err
	}
	if p.ConfidenceThresholdQueue > p.ConfidenceThresholdAccept {
		return fmt.Errorf("pipeline.confidence_threshold_queue %.2f exceeds confidence_threshold_accept %.2f",
			p.ConfidenceThresholdQueue, p.ConfidenceThresholdAccept)
	}
	if err := validateThreshold(p.TextLayerThreshold, "pipeline.text_layer_threshold"); err != nil {
		return err
	}
	if p.DPI < 72 || p.DPI > 1200 {
		return fmt.Errorf("invalid dpi: %d (must be between 72 and 1200)", p.DPI)
	}
	if p.YearFloor < 2000 || p.YearFloor > 2100 {
		return fmt.Errorf("invalid year_floor: %d (must be between 2000 and 2100)", p.YearFloor)
	}
	if p.SelfDenyVendorRegex != "" {
		if _, err := regexp.Compile(p.SelfDenyVendorRegex); err != nil {
			return fmt.Errorf("invalid self_deny_vendor_regex: %w", err)
		}
	}

	if !contains(knownEngines, p.PrimaryEngine) {
		return fmt.Errorf("invalid primary engine: %q (must be one of: %s)", p.PrimaryEngine, strings.Join(knownEngines, ", "))
	}
	if p.FallbackEngine != ocr.KindNone && p.FallbackEngine != "" {
		if !contains(knownEngines, p.FallbackEngine) {
			return fmt.Errorf("invalid fallback engine: %q (must be one of: %s, %s)",
				p.FallbackEngine, strings.Join(knownEngines, ", "), ocr.KindNone)
		}
		if p.FallbackEngine == p.PrimaryEngine {
			return fmt.Errorf("fallback engine must differ from primary engine %q", p.PrimaryEngine)
		}
	}
	if len(p.Languages) == 0 {
		return errors.New("pipeline.languages must not be empty")
	}
	if p.QueuePath == "" {
		return errors.New("pipeline.queue_path must not be empty")
	}
	if p.Timeouts.Preprocess <= 0 || p.Timeouts.OCR <= 0 || p.Timeouts.Validator <= 0 {
		return errors.New("pipeline.timeouts must be positive")
	}

	if c.LLM.MaxRetries <= 0 {
		return fmt.Errorf("invalid llm.max_retries: %d (must be positive)", c.LLM.MaxRetries)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	if _, err := parseMemoryLimit(c.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}
	return nil
}

// ToPipelineConfig converts the config to the pipeline configuration. The
// config must have passed Validate.
func (c *Config) ToPipelineConfig() pipeline.Config {
	p := c.Pipeline
	out := pipeline.DefaultConfig()

	out.ModelsDir = c.ModelsDir
	out.DictionaryPath = c.DictionaryPath
	out.DPI = p.DPI
	out.PdftoppmPath = c.OCR.PdftoppmPath
	out.UseGPU = p.UseGPU
	out.PrimaryEngine = p.PrimaryEngine
	out.FallbackEngine = p.FallbackEngine
	if out.FallbackEngine == "" {
		out.FallbackEngine = ocr.KindNone
	}
	out.Languages = append([]string(nil), p.Languages...)
	out.Thresholds = scoring.Thresholds{Accept: p.ConfidenceThresholdAccept, Queue: p.ConfidenceThresholdQueue}
	out.EnableLLMValidator = p.EnableLLMValidator
	out.YearFloor = p.YearFloor
	out.SelfDenyVendorRegex = p.SelfDenyVendorRegex
	out.YearShiftRepair = p.YearShiftRepair
	out.QueuePath = p.QueuePath
	out.LiteMode = p.LiteMode
	out.Force4WayRotation = p.Force4WayRotation
	out.SkewThresholdDeg = p.SkewThresholdDeg
	out.Sharpen = p.Sharpen
	out.PreferTextLayer = p.PreferTextLayer
	out.TextLayerThreshold = p.TextLayerThreshold
	out.FilenameFallback = p.FilenameFallback
	out.StrictFilenameOnly = p.StrictFilenameOnly
	out.Timeouts = pipeline.Timeouts{
		Preprocess: p.Timeouts.Preprocess,
		OCR:        p.Timeouts.OCR,
		Validator:  p.Timeouts.Validator,
	}

	out.Paddle.ModelsDir = c.ModelsDir
	out.Paddle.Lite = p.LiteMode
	out.Paddle.UseGPU = p.UseGPU
	out.Paddle.NumThreads = c.OCR.NumThreads
	out.Paddle.GPU.UseGPU = p.UseGPU
	out.Paddle.GPU.DeviceID = c.GPU.Device
	out.Paddle.GPU.GPUMemLimit, _ = parseMemoryLimit(c.GPU.MemoryLimit)

	out.Tesseract.Path = c.OCR.TesseractPath
	out.Tesseract.TessdataDir = c.OCR.TessdataDir
	out.Tesseract.PSM = c.OCR.PSM

	out.LLM = llm.Config{
		BaseURL:         c.LLM.BaseURL,
		APIKey:          c.LLM.APIKey,
		Model:           c.LLM.Model,
		Temperature:     c.LLM.Temperature,
		MaxRetries:      c.LLM.MaxRetries,
		Backoff:         c.LLM.Backoff,
		LenientOptional: c.LLM.LenientOptional,
	}
	return out
}

// RequestTimeout is the server's per-request budget.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSec) * time.Second
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

// parseMemoryLimit converts a GPU memory limit ("512MB", "2GB") to bytes.
// Empty and "auto" mean unlimited.
func parseMemoryLimit(limit string) (uint64, error) {
	if limit == "" || limit == "auto" {
		return 0, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(limit))
	units := []struct {
		suffix string
		scale  float64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if !strings.HasSuffix(upper, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSuffix(upper, u.suffix), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(n * u.scale), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: B, KB, MB, GB (got %s)", limit)
}
