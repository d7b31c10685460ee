package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	OCR     OCRConfig     `yaml:"ocr"`
	LLM     LLMConfig     `yaml:"llm"`
	Mapping MappingConfig `yaml:"mapping"`
	Store   StoreConfig   `yaml:"store"`
	Archive ArchiveConfig `yaml:"archive"`
	Logging LoggingConfig `yaml:"logging"`
}

// OCRConfig holds the PDF text/OCR toolchain configuration
type OCRConfig struct {
	Pdftotext  string `yaml:"pdftotext"`  // binary name or absolute path; default "pdftotext"
	Pdftoppm   string `yaml:"pdftoppm"`   // default "pdftoppm"
	Tesseract  string `yaml:"tesseract"`  // default "tesseract"
	Magick     string `yaml:"magick"`     // default "magick"; used only when Preprocess is on
	Language   string `yaml:"language"`   // default "por"
	DPI        int    `yaml:"dpi"`        // default 144 (2x the 72dpi page raster)
	MaxPages   int    `yaml:"max_pages"`  // 0 = no limit
	PSM        int    `yaml:"psm"`        // tesseract page segmentation mode; 0 = engine default
	OEM        int    `yaml:"oem"`        // tesseract engine mode; 0 = engine default
	Preprocess bool   `yaml:"preprocess"` // grayscale/normalize page images before OCR
}

// LLMConfig holds the model provider configuration
type LLMConfig struct {
	Provider    string   `yaml:"provider"` // "openai" | "gemini"
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"` // OpenAI-compatible endpoints only
	Model       string   `yaml:"model"`
	Temperature float32  `yaml:"temperature"`
	Timeout     Duration `yaml:"timeout"` // e.g. "60s"
	Enabled     bool     `yaml:"enabled"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "45s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// MappingConfig locates the persisted CFOP mapping table
type MappingConfig struct {
	CSVPath string `yaml:"csv_path"`
}

// StoreConfig holds the processing-history store configuration
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres" | "" (disabled)
	DSN    string `yaml:"dsn"`
}

// ArchiveConfig holds the source-document archive configuration
type ArchiveConfig struct {
	Backend string `yaml:"backend"` // "fs" | "minio" | "" (disabled)
	Dir     string `yaml:"dir"`     // fs backend root

	Endpoint  string `yaml:"endpoint"` // minio backend
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"` // "debug" | "info" | "warn" | "error"
}

// LoadConfig reads an optional YAML file, then applies environment overrides.
// A missing file is not an error; env-only configuration is supported. An
// optional .env file next to the process is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, NewAppError(CodeConfig, fmt.Sprintf("parse config %s", path), err)
			}
		} else if !os.IsNotExist(err) {
			return nil, NewAppError(CodeConfig, fmt.Sprintf("read config %s", path), err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		OCR: OCRConfig{
			Pdftotext: "pdftotext",
			Pdftoppm:  "pdftoppm",
			Tesseract: "tesseract",
			Magick:    "magick",
			Language:  "por",
			DPI:       144,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.0,
			Timeout:     Duration(60 * time.Second),
			Enabled:     true,
		},
		Mapping: MappingConfig{
			CSVPath: "data_sources/contas_por_cfop.csv",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.OCR.Pdftotext = getEnv("NFE_PDFTOTEXT", cfg.OCR.Pdftotext)
	cfg.OCR.Pdftoppm = getEnv("NFE_PDFTOPPM", cfg.OCR.Pdftoppm)
	cfg.OCR.Tesseract = getEnv("NFE_TESSERACT", cfg.OCR.Tesseract)
	cfg.OCR.Language = getEnv("NFE_OCR_LANG", cfg.OCR.Language)
	cfg.OCR.DPI = getEnvAsInt("NFE_OCR_DPI", cfg.OCR.DPI)
	cfg.OCR.MaxPages = getEnvAsInt("NFE_OCR_MAX_PAGES", cfg.OCR.MaxPages)

	cfg.LLM.Provider = getEnv("NFE_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.APIKey = getEnv("OPENAI_API_KEY", cfg.LLM.APIKey)
	if cfg.LLM.Provider == "gemini" {
		cfg.LLM.APIKey = getEnv("GEMINI_API_KEY", cfg.LLM.APIKey)
	}
	cfg.LLM.BaseURL = getEnv("OPENAI_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = getEnv("NFE_LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.Timeout = Duration(getEnvAsDuration("NFE_LLM_TIMEOUT", cfg.LLM.Timeout.Std()))
	cfg.LLM.Enabled = getEnvAsBool("NFE_LLM_ENABLED", cfg.LLM.Enabled)

	cfg.Mapping.CSVPath = getEnv("NFE_MAPPING_CSV", cfg.Mapping.CSVPath)

	cfg.Store.Driver = getEnv("NFE_STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.DSN = getEnv("NFE_STORE_DSN", cfg.Store.DSN)

	cfg.Archive.Backend = getEnv("NFE_ARCHIVE_BACKEND", cfg.Archive.Backend)
	cfg.Archive.Dir = getEnv("NFE_ARCHIVE_DIR", cfg.Archive.Dir)
	cfg.Archive.Endpoint = getEnv("MINIO_ENDPOINT", cfg.Archive.Endpoint)
	cfg.Archive.AccessKey = getEnv("MINIO_ACCESS_KEY", cfg.Archive.AccessKey)
	cfg.Archive.SecretKey = getEnv("MINIO_SECRET_KEY", cfg.Archive.SecretKey)
	cfg.Archive.Bucket = getEnv("MINIO_BUCKET", cfg.Archive.Bucket)
	cfg.Archive.UseSSL = getEnvAsBool("MINIO_USE_SSL", cfg.Archive.UseSSL)

	cfg.Logging.Level = getEnv("NFE_LOG_LEVEL", cfg.Logging.Level)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the parts of the configuration that cannot fail lazily.
func (c *Config) Validate() error {
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return NewAppError(CodeConfig, "llm enabled but no API key configured", ErrInvalidInput)
	}
	switch c.LLM.Provider {
	case "openai", "gemini", "":
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown llm provider %q", c.LLM.Provider), ErrInvalidInput)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "":
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown store driver %q", c.Store.Driver), ErrInvalidInput)
	}
	switch c.Archive.Backend {
	case "fs", "minio", "":
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown archive backend %q", c.Archive.Backend), ErrInvalidInput)
	}
	return nil
}
