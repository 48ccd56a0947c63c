package config

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
)

const debugLevel = "debug"

// TestDefaultConfig tests the default configuration values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected log level %q, got %q", infoLevel, cfg.LogLevel)
	}
	if cfg.Pipeline.DPI != 300 {
		t.Errorf("Expected dpi 300, got %d", cfg.Pipeline.DPI)
	}
	if cfg.Pipeline.PrimaryEngine != ocr.KindPaddle || cfg.Pipeline.FallbackEngine != ocr.KindTesseract {
		t.Errorf("Unexpected engines %q/%q", cfg.Pipeline.PrimaryEngine, cfg.Pipeline.FallbackEngine)
	}
	if cfg.Pipeline.ConfidenceThresholdAccept != 0.75 || cfg.Pipeline.ConfidenceThresholdQueue != 0.50 {
		t.Errorf("Unexpected thresholds %.2f/%.2f", cfg.Pipeline.ConfidenceThresholdAccept, cfg.Pipeline.ConfidenceThresholdQueue)
	}
	if cfg.Pipeline.YearFloor != 2026 {
		t.Errorf("Expected year floor 2026, got %d", cfg.Pipeline.YearFloor)
	}
	if cfg.Pipeline.QueuePath != "manual_queue.json" {
		t.Errorf("Expected queue path manual_queue.json, got %q", cfg.Pipeline.QueuePath)
	}
	if cfg.Pipeline.Timeouts.Preprocess != 10*time.Second || cfg.Pipeline.Timeouts.OCR != time.Minute ||
		cfg.Pipeline.Timeouts.Validator != 2*time.Minute {
		t.Errorf("Unexpected timeouts %+v", cfg.Pipeline.Timeouts)
	}
	if !cfg.Pipeline.PreferTextLayer || !cfg.Pipeline.FilenameFallback || !cfg.Pipeline.Sharpen {
		t.Error("Expected text layer, filename fallback and sharpen enabled by default")
	}
	if cfg.Pipeline.EnableLLMValidator {
		t.Error("LLM validator should be disabled by default")
	}
	if cfg.LLM.Model != "gpt-4o-mini" || cfg.LLM.MaxRetries != 3 || !cfg.LLM.LenientOptional {
		t.Errorf("Unexpected llm defaults %+v", cfg.LLM)
	}
	if cfg.Server.Port != 8080 || cfg.Server.TimeoutSec != 300 {
		t.Errorf("Unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Batch.Workers <= 0 {
		t.Errorf("Expected positive batch workers, got %d", cfg.Batch.Workers)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

// TestValidate tests that invalid settings are rejected.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"invalid log level", func(c *Config) { c.LogLevel = "trace" }, "log level"},
		{"accept above one", func(c *Config) { c.Pipeline.ConfidenceThresholdAccept = 1.2 }, "confidence_threshold_accept"},
		{"negative queue", func(c *Config) { c.Pipeline.ConfidenceThresholdQueue = -0.1 }, "confidence_threshold_queue"},
		{"queue above accept", func(c *Config) { c.Pipeline.ConfidenceThresholdQueue = 0.8 }, "exceeds"},
		{"text layer threshold", func(c *Config) { c.Pipeline.TextLayerThreshold = 2 }, "text_layer_threshold"},
		{"dpi too low", func(c *Config) { c.Pipeline.DPI = 50 }, "dpi"},
		{"dpi too high", func(c *Config) { c.Pipeline.DPI = 2400 }, "dpi"},
		{"year floor", func(c *Config) { c.Pipeline.YearFloor = 1989 }, "year_floor"},
		{"bad regex", func(c *Config) { c.Pipeline.SelfDenyVendorRegex = "[" }, "self_deny_vendor_regex"},
		{"unknown primary", func(c *Config) { c.Pipeline.PrimaryEngine = "easyocr" }, "primary engine"},
		{"unknown fallback", func(c *Config) { c.Pipeline.FallbackEngine = "easyocr" }, "fallback engine"},
		{"same engines", func(c *Config) { c.Pipeline.FallbackEngine = ocr.KindPaddle }, "differ"},
		{"no languages", func(c *Config) { c.Pipeline.Languages = nil }, "languages"},
		{"no queue path", func(c *Config) { c.Pipeline.QueuePath = "" }, "queue_path"},
		{"zero timeout", func(c *Config) { c.Pipeline.Timeouts.OCR = 0 }, "timeouts"},
		{"llm retries", func(c *Config) { c.LLM.MaxRetries = 0 }, "max_retries"},
		{"batch workers", func(c *Config) { c.Batch.Workers = 0 }, "workers"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"upload size", func(c *Config) { c.Server.MaxUploadMB = 0 }, "upload"},
		{"server timeout", func(c *Config) { c.Server.TimeoutSec = -1 }, "timeout"},
		{"memory limit", func(c *Config) { c.GPU.MemoryLimit = "lots" }, "memory limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

// TestValidateFallbackNone tests that the fallback engine can be disabled.
func TestValidateFallbackNone(t *testing.T) {
	for _, fallback := range []string{ocr.KindNone, ""} {
		cfg := DefaultConfig()
		cfg.Pipeline.FallbackEngine = fallback
		if err := cfg.Validate(); err != nil {
			t.Errorf("fallback %q: unexpected error %v", fallback, err)
		}
		if got := cfg.ToPipelineConfig().FallbackEngine; got != ocr.KindNone {
			t.Errorf("fallback %q converted to %q, want %q", fallback, got, ocr.KindNone)
		}
	}
}

// TestToPipelineConfig tests conversion to the pipeline configuration.
func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelsDir = "/opt/models"
	cfg.DictionaryPath = "/etc/seisan/dictionary.yaml"
	cfg.Pipeline.DPI = 200
	cfg.Pipeline.UseGPU = true
	cfg.Pipeline.ConfidenceThresholdAccept = 0.8
	cfg.Pipeline.ConfidenceThresholdQueue = 0.4
	cfg.Pipeline.EnableLLMValidator = true
	cfg.Pipeline.YearFloor = 2025
	cfg.Pipeline.SelfDenyVendorRegex = "東海インプル"
	cfg.Pipeline.LiteMode = true
	cfg.Pipeline.StrictFilenameOnly = true
	cfg.Pipeline.Timeouts.OCR = 30 * time.Second
	cfg.OCR.TesseractPath = "/usr/local/bin/tesseract"
	cfg.OCR.PSM = 4
	cfg.OCR.PdftoppmPath = "/usr/bin/pdftoppm"
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.Model = "gpt-4o"
	cfg.GPU.Device = 1
	cfg.GPU.MemoryLimit = "2GB"

	pc := cfg.ToPipelineConfig()
	if err := pc.Validate(); err != nil {
		t.Fatalf("converted config invalid: %v", err)
	}

	if pc.ModelsDir != "/opt/models" || pc.Paddle.ModelsDir != "/opt/models" {
		t.Errorf("models dir not propagated: %q / %q", pc.ModelsDir, pc.Paddle.ModelsDir)
	}
	if pc.DictionaryPath != cfg.DictionaryPath {
		t.Errorf("DictionaryPath = %q", pc.DictionaryPath)
	}
	if pc.DPI != 200 || pc.PdftoppmPath != "/usr/bin/pdftoppm" {
		t.Errorf("renderer settings not propagated: %d %q", pc.DPI, pc.PdftoppmPath)
	}
	if pc.Thresholds.Accept != 0.8 || pc.Thresholds.Queue != 0.4 {
		t.Errorf("Thresholds = %+v", pc.Thresholds)
	}
	if !pc.EnableLLMValidator || pc.LLM.APIKey != "sk-test" || pc.LLM.Model != "gpt-4o" {
		t.Errorf("llm settings not propagated: %+v", pc.LLM)
	}
	if pc.YearFloor != 2025 || pc.SelfDenyVendorRegex != "東海インプル" {
		t.Errorf("extraction settings not propagated")
	}
	if !pc.LiteMode || !pc.Paddle.Lite {
		t.Error("lite mode not propagated to the paddle engine")
	}
	if !pc.StrictFilenameOnly {
		t.Error("StrictFilenameOnly not propagated")
	}
	if pc.Timeouts.OCR != 30*time.Second {
		t.Errorf("OCR timeout = %v", pc.Timeouts.OCR)
	}
	if pc.Tesseract.Path != "/usr/local/bin/tesseract" || pc.Tesseract.PSM != 4 {
		t.Errorf("tesseract settings not propagated: %+v", pc.Tesseract)
	}
	if !pc.Paddle.GPU.UseGPU || pc.Paddle.GPU.DeviceID != 1 || pc.Paddle.GPU.GPUMemLimit != 2<<30 {
		t.Errorf("gpu settings not propagated: %+v", pc.Paddle.GPU)
	}
}

// TestParseMemoryLimit tests GPU memory limit parsing.
func TestParseMemoryLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"", 0, false},
		{"auto", 0, false},
		{"512MB", 512 << 20, false},
		{"2gb", 2 << 30, false},
		{"1.5GB", 3 << 29, false},
		{"1024", 0, true},
		{"xGB", 0, true},
	}
	for _, tt := range tests {
		got, err := parseMemoryLimit(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseMemoryLimit(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseMemoryLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// TestConfigYAMLRoundTrip tests that the yaml tags match the viper keys.
func TestConfigYAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = debugLevel
	cfg.Pipeline.Languages = []string{"jpn"}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal() error: %v", err)
	}
	for _, key := range []string{"confidence_threshold_accept:", "queue_path:", "timeouts:", "tesseract_path:", "lenient_optional:"} {
		if !strings.Contains(string(data), key) {
			t.Errorf("yaml output missing %q", key)
		}
	}

	var back Config
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatalf("yaml.Unmarshal() error: %v", err)
	}
	if back.LogLevel != debugLevel || len(back.Pipeline.Languages) != 1 {
		t.Errorf("round trip lost values: %+v", back)
	}
}
