package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"gend/internal/common/fsutil"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in Resolve.
type Config struct {
	Addr           string `json:"addr" yaml:"addr" toml:"addr"`
	ModelID        string `json:"model_id" yaml:"model_id" toml:"model_id"`
	ProjectID      string `json:"project_id" yaml:"project_id" toml:"project_id"`
	BucketName     string `json:"bucket_name" yaml:"bucket_name" toml:"bucket_name"`
	CacheDir       string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	SecretName     string `json:"secret_name" yaml:"secret_name" toml:"secret_name"`
	TokenFile      string `json:"token_file" yaml:"token_file" toml:"token_file"`
	MaxLengthLimit int    `json:"max_length_limit" yaml:"max_length_limit" toml:"max_length_limit"`
	// OriginBaseURL overrides the model registry endpoint. Empty means the
	// public Hugging Face Hub.
	OriginBaseURL string `json:"origin_base_url" yaml:"origin_base_url" toml:"origin_base_url"`
	// Timeouts in seconds. 0 disables the generate timeout; the load timeout
	// falls back to its default.
	LoadTimeoutSec     int    `json:"load_timeout_sec" yaml:"load_timeout_sec" toml:"load_timeout_sec"`
	GenerateTimeoutSec int    `json:"generate_timeout_sec" yaml:"generate_timeout_sec" toml:"generate_timeout_sec"`
	LogLevel           string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Defaults applied by Resolve for fields left unspecified.
const (
	DefaultAddr           = ":8080"
	DefaultCacheDir       = "/mnt/disks/model-cache"
	DefaultSecretName     = "huggingface-token"
	DefaultTokenFile      = ".hf_token"
	DefaultMaxLengthLimit = 2048
	DefaultLoadTimeoutSec = 1800
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil { return cfg, err }
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil { return cfg, err }
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil { return cfg, err }
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// FromEnv overlays recognized environment variables onto cfg.
// Environment values win over file values; flags win over both (see cmd/gend).
func FromEnv(cfg Config) Config {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("MODEL_ID"); v != "" {
		cfg.ModelID = v
	}
	if v := os.Getenv("PROJECT_ID"); v != "" {
		cfg.ProjectID = v
	}
	if v := os.Getenv("BUCKET_NAME"); v != "" {
		cfg.BucketName = v
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("SECRET_NAME"); v != "" {
		cfg.SecretName = v
	}
	if v := os.Getenv("GEND_TOKEN_FILE"); v != "" {
		cfg.TokenFile = v
	}
	if v := os.Getenv("GEND_MAX_LENGTH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxLengthLimit = n
		}
	}
	if v := os.Getenv("GEND_LOAD_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoadTimeoutSec = n
		}
	}
	if v := os.Getenv("GEND_GENERATE_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GenerateTimeoutSec = n
		}
	}
	if v := os.Getenv("GEND_ORIGIN_BASE_URL"); v != "" {
		cfg.OriginBaseURL = v
	}
	if v := os.Getenv("GEND_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg
}

// Resolve fills in defaults, expands '~' in paths, and validates required fields.
func Resolve(cfg Config) (Config, error) {
	if cfg.ModelID == "" {
		return cfg, fmt.Errorf("model id is required (MODEL_ID)")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir
	}
	if cfg.SecretName == "" {
		cfg.SecretName = DefaultSecretName
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = DefaultTokenFile
	}
	var err error
	if cfg.CacheDir, err = fsutil.ExpandHome(cfg.CacheDir); err != nil {
		return cfg, err
	}
	if cfg.TokenFile, err = fsutil.ExpandHome(cfg.TokenFile); err != nil {
		return cfg, err
	}
	if cfg.MaxLengthLimit <= 0 {
		cfg.MaxLengthLimit = DefaultMaxLengthLimit
	}
	if cfg.LoadTimeoutSec <= 0 {
		cfg.LoadTimeoutSec = DefaultLoadTimeoutSec
	}
	if cfg.GenerateTimeoutSec < 0 {
		cfg.GenerateTimeoutSec = 0
	}
	return cfg, nil
}
