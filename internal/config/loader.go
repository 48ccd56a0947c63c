package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "seisan"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "SEISAN"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that cobra
// flag bindings apply.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on v.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the first config file found on the search paths, environment
// variables and defaults, then validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.LoadWithoutValidation()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithoutValidation is Load without the validation step.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.unmarshal()
}

// LoadWithFile loads configuration from a specific file path. An empty path
// falls back to Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation loads configuration from a specific file path without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile == "" {
		return l.LoadWithoutValidation()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	// viper leaves the key empty when only the env var is set
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		l.v.AddConfigPath(filepath.Join(configDir, "seisan"))
	} else if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "seisan"))
	}

	l.v.AddConfigPath("/etc/seisan")
}

// setupEnvironmentVariables maps pipeline.dpi to SEISAN_PIPELINE_DPI.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("models_dir", d.ModelsDir)
	l.v.SetDefault("dictionary_path", d.DictionaryPath)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("pipeline.dpi", d.Pipeline.DPI)
	l.v.SetDefault("pipeline.use_gpu", d.Pipeline.UseGPU)
	l.v.SetDefault("pipeline.primary_engine", d.Pipeline.PrimaryEngine)
	l.v.SetDefault("pipeline.fallback_engine", d.Pipeline.FallbackEngine)
	l.v.SetDefault("pipeline.languages", d.Pipeline.Languages)
	l.v.SetDefault("pipeline.confidence_threshold_accept", d.Pipeline.ConfidenceThresholdAccept)
	l.v.SetDefault("pipeline.confidence_threshold_queue", d.Pipeline.ConfidenceThresholdQueue)
	l.v.SetDefault("pipeline.enable_llm_validator", d.Pipeline.EnableLLMValidator)
	l.v.SetDefault("pipeline.queue_path", d.Pipeline.QueuePath)
	l.v.SetDefault("pipeline.year_floor", d.Pipeline.YearFloor)
	l.v.SetDefault("pipeline.self_deny_vendor_regex", d.Pipeline.SelfDenyVendorRegex)
	l.v.SetDefault("pipeline.year_shift_repair", d.Pipeline.YearShiftRepair)
	l.v.SetDefault("pipeline.lite_mode", d.Pipeline.LiteMode)
	l.v.SetDefault("pipeline.force_4way_rotation", d.Pipeline.Force4WayRotation)
	l.v.SetDefault("pipeline.skew_threshold_deg", d.Pipeline.SkewThresholdDeg)
	l.v.SetDefault("pipeline.sharpen", d.Pipeline.Sharpen)
	l.v.SetDefault("pipeline.prefer_text_layer", d.Pipeline.PreferTextLayer)
	l.v.SetDefault("pipeline.text_layer_threshold", d.Pipeline.TextLayerThreshold)
	l.v.SetDefault("pipeline.filename_fallback", d.Pipeline.FilenameFallback)
	l.v.SetDefault("pipeline.strict_filename_only", d.Pipeline.StrictFilenameOnly)
	l.v.SetDefault("pipeline.timeouts.preprocess", d.Pipeline.Timeouts.Preprocess)
	l.v.SetDefault("pipeline.timeouts.ocr", d.Pipeline.Timeouts.OCR)
	l.v.SetDefault("pipeline.timeouts.validator", d.Pipeline.Timeouts.Validator)

	l.v.SetDefault("ocr.tesseract_path", d.OCR.TesseractPath)
	l.v.SetDefault("ocr.tessdata_dir", d.OCR.TessdataDir)
	l.v.SetDefault("ocr.psm", d.OCR.PSM)
	l.v.SetDefault("ocr.pdftoppm_path", d.OCR.PdftoppmPath)
	l.v.SetDefault("ocr.num_threads", d.OCR.NumThreads)

	l.v.SetDefault("llm.base_url", d.LLM.BaseURL)
	l.v.SetDefault("llm.api_key", d.LLM.APIKey)
	l.v.SetDefault("llm.model", d.LLM.Model)
	l.v.SetDefault("llm.temperature", d.LLM.Temperature)
	l.v.SetDefault("llm.max_retries", d.LLM.MaxRetries)
	l.v.SetDefault("llm.backoff", d.LLM.Backoff)
	l.v.SetDefault("llm.lenient_optional", d.LLM.LenientOptional)

	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.recursive", d.Batch.Recursive)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	l.v.SetDefault("gpu.device", d.GPU.Device)
	l.v.SetDefault("gpu.memory_limit", d.GPU.MemoryLimit)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]interface{} {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes the defaults to filename (seisan.yaml
// when empty).
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
		paths = append(paths, filepath.Join(home, ".config", "seisan"))
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, "seisan"))
	}

	return append(paths, "/etc/seisan")
}
