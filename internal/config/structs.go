//nolint:lll
package config

import "time"

// Config represents the complete configuration for the seisan application.
// It covers every command (process, queue, serve) and is loaded from
// configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	ModelsDir      string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	DictionaryPath string `mapstructure:"dictionary_path" yaml:"dictionary_path" json:"dictionary_path"`
	LogLevel       string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose        bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Extraction pipeline
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`

	// OCR engines and the page renderer
	OCR OCRConfig `mapstructure:"ocr" yaml:"ocr" json:"ocr"`

	// LLM validator
	LLM LLMConfig `mapstructure:"llm" yaml:"llm" json:"llm"`

	// Batch processing
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`

	// HTTP server (serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// GPU configuration
	GPU GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// PipelineConfig contains the extraction and routing settings.
type PipelineConfig struct {
	DPI            int      `mapstructure:"dpi" yaml:"dpi" json:"dpi"`
	UseGPU         bool     `mapstructure:"use_gpu" yaml:"use_gpu" json:"use_gpu"`
	PrimaryEngine  string   `mapstructure:"primary_engine" yaml:"primary_engine" json:"primary_engine"`
	FallbackEngine string   `mapstructure:"fallback_engine" yaml:"fallback_engine" json:"fallback_engine"`
	Languages      []string `mapstructure:"languages" yaml:"languages" json:"languages"`

	// Routing
	ConfidenceThresholdAccept float64 `mapstructure:"confidence_threshold_accept" yaml:"confidence_threshold_accept" json:"confidence_threshold_accept"`
	ConfidenceThresholdQueue  float64 `mapstructure:"confidence_threshold_queue" yaml:"confidence_threshold_queue" json:"confidence_threshold_queue"`
	EnableLLMValidator        bool    `mapstructure:"enable_llm_validator" yaml:"enable_llm_validator" json:"enable_llm_validator"`
	QueuePath                 string  `mapstructure:"queue_path" yaml:"queue_path" json:"queue_path"`

	// Extraction rules
	YearFloor           int    `mapstructure:"year_floor" yaml:"year_floor" json:"year_floor"`
	SelfDenyVendorRegex string `mapstructure:"self_deny_vendor_regex" yaml:"self_deny_vendor_regex" json:"self_deny_vendor_regex"`
	YearShiftRepair     bool   `mapstructure:"year_shift_repair" yaml:"year_shift_repair" json:"year_shift_repair"`

	// Image preprocessing
	LiteMode          bool    `mapstructure:"lite_mode" yaml:"lite_mode" json:"lite_mode"`
	Force4WayRotation bool    `mapstructure:"force_4way_rotation" yaml:"force_4way_rotation" json:"force_4way_rotation"`
	SkewThresholdDeg  float64 `mapstructure:"skew_threshold_deg" yaml:"skew_threshold_deg" json:"skew_threshold_deg"`
	Sharpen           bool    `mapstructure:"sharpen" yaml:"sharpen" json:"sharpen"`

	// Alternative sources
	PreferTextLayer    bool    `mapstructure:"prefer_text_layer" yaml:"prefer_text_layer" json:"prefer_text_layer"`
	TextLayerThreshold float64 `mapstructure:"text_layer_threshold" yaml:"text_layer_threshold" json:"text_layer_threshold"`
	FilenameFallback   bool    `mapstructure:"filename_fallback" yaml:"filename_fallback" json:"filename_fallback"`
	StrictFilenameOnly bool    `mapstructure:"strict_filename_only" yaml:"strict_filename_only" json:"strict_filename_only"`

	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
}

// TimeoutsConfig contains the per-stage budgets.
type TimeoutsConfig struct {
	Preprocess time.Duration `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	OCR        time.Duration `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	Validator  time.Duration `mapstructure:"validator" yaml:"validator" json:"validator"`
}

// OCRConfig contains engine and renderer settings.
type OCRConfig struct {
	TesseractPath string `mapstructure:"tesseract_path" yaml:"tesseract_path" json:"tesseract_path"`
	TessdataDir   string `mapstructure:"tessdata_dir" yaml:"tessdata_dir" json:"tessdata_dir"`
	PSM           int    `mapstructure:"psm" yaml:"psm" json:"psm"`
	PdftoppmPath  string `mapstructure:"pdftoppm_path" yaml:"pdftoppm_path" json:"pdftoppm_path"`
	NumThreads    int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// LLMConfig contains the validator endpoint settings.
type LLMConfig struct {
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key" json:"-"`
	Model           string        `mapstructure:"model" yaml:"model" json:"model"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	Backoff         time.Duration `mapstructure:"backoff" yaml:"backoff" json:"backoff"`
	LenientOptional bool          `mapstructure:"lenient_optional" yaml:"lenient_optional" json:"lenient_optional"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers   int  `mapstructure:"workers" yaml:"workers" json:"workers"`
	Recursive bool `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}
