package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config holds the settings shared by every command. Values come from, in
// increasing precedence: defaults, the TOML file, ODRLFRAG_* env vars, and
// command-line flags (applied by the caller).
type Config struct {
	// Analysis defaults
	Strategy   string        `toml:"strategy" validate:"oneof=activity gateway hybrid"` // ODRLFRAG_STRATEGY (default "gateway")
	Threshold  int           `toml:"threshold" validate:"gte=1,lte=1000"`               // ODRLFRAG_THRESHOLD (default 3)
	Mode       string        `toml:"mode" validate:"oneof=template llm"`                // ODRLFRAG_MODE (default "template")
	BPPolicy   string        `toml:"bp_policy"`                                         // ODRLFRAG_BP_POLICY (default "none")
	LLMURL     string        `toml:"llm_url" validate:"omitempty,url"`                  // ODRLFRAG_LLM_URL (empty = llm mode always falls back)
	LLMToken   string        `toml:"llm_token"`                                         // ODRLFRAG_LLM_TOKEN
	LLMModel   string        `toml:"llm_model"`                                         // ODRLFRAG_LLM_MODEL (default "gpt-4")
	LLMTimeout time.Duration `toml:"llm_timeout" validate:"gt=0"`                       // ODRLFRAG_LLM_TIMEOUT (default 30s)
	LogLevel   string        `toml:"log_level" validate:"oneof=debug info warn error"`  // ODRLFRAG_LOG_LEVEL (default "info")

	// RoleHierarchy maps a parent role to the roles it includes. File only.
	RoleHierarchy map[string][]string `toml:"role_hierarchy" validate:"omitempty,dive,keys,required,endkeys,dive,required"`

	// Outputs, all optional
	DatabaseURL      string `toml:"database_url"`       // ODRLFRAG_DATABASE_URL (empty = analyses are not stored)
	NATSURL          string `toml:"nats_url"`           // ODRLFRAG_NATS_URL (empty = no events)
	ExportDir        string `toml:"export_dir"`         // ODRLFRAG_EXPORT_DIR (writes JSONL exports to a directory)
	ExportS3Bucket   string `toml:"export_s3_bucket"`   // ODRLFRAG_EXPORT_S3_BUCKET (enables S3 export when set)
	ExportS3Endpoint string `toml:"export_s3_endpoint"` // ODRLFRAG_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ExportS3Region   string `toml:"export_s3_region"`   // ODRLFRAG_EXPORT_S3_REGION (default "us-east-1")
	ExportPrefix     string `toml:"export_prefix"`      // ODRLFRAG_EXPORT_PREFIX (key prefix for every destination, default "odrlfrag/")
	ExportGitRepo    string `toml:"export_git_repo"`    // ODRLFRAG_EXPORT_GIT_REPO (local clone that receives exports)
	ExportGitBranch  string `toml:"export_git_branch"`  // ODRLFRAG_EXPORT_GIT_BRANCH (default "main")
	MetricsTextfile  string `toml:"metrics_textfile"`   // ODRLFRAG_METRICS_TEXTFILE (node-exporter textfile path)
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Strategy:        "gateway",
		Threshold:       3,
		Mode:            "template",
		BPPolicy:        "none",
		LLMModel:        "gpt-4",
		LLMTimeout:      30 * time.Second,
		LogLevel:        "info",
		ExportS3Region:  "us-east-1",
		ExportPrefix:    "odrlfrag/",
		ExportGitBranch: "main",
	}
}

// DefaultPath is ODRLFRAG_CONFIG, or ~/.config/odrlfrag/config.toml.
func DefaultPath() string {
	if p := os.Getenv("ODRLFRAG_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "odrlfrag", "config.toml")
}

// Load builds the configuration. An explicit path must exist; with an empty
// path the default location is used when present.
func Load(path string) (*Config, error) {
	c := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		md, err := toml.DecodeFile(path, c)
		switch {
		case err != nil && (explicit || !errors.Is(err, fs.ErrNotExist)):
			return nil, fmt.Errorf("config file %s: %w", path, err)
		case err == nil && len(md.Undecoded()) > 0:
			return nil, fmt.Errorf("config file %s: unknown key %q", path, md.Undecoded()[0].String())
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	c.Strategy = envOrDefault("ODRLFRAG_STRATEGY", c.Strategy)
	c.Mode = envOrDefault("ODRLFRAG_MODE", c.Mode)
	c.BPPolicy = envOrDefault("ODRLFRAG_BP_POLICY", c.BPPolicy)
	c.LLMURL = envOrDefault("ODRLFRAG_LLM_URL", c.LLMURL)
	c.LLMToken = envOrDefault("ODRLFRAG_LLM_TOKEN", c.LLMToken)
	c.LLMModel = envOrDefault("ODRLFRAG_LLM_MODEL", c.LLMModel)
	c.LogLevel = envOrDefault("ODRLFRAG_LOG_LEVEL", c.LogLevel)
	c.DatabaseURL = envOrDefault("ODRLFRAG_DATABASE_URL", c.DatabaseURL)
	c.NATSURL = envOrDefault("ODRLFRAG_NATS_URL", c.NATSURL)
	c.ExportDir = envOrDefault("ODRLFRAG_EXPORT_DIR", c.ExportDir)
	c.ExportS3Bucket = envOrDefault("ODRLFRAG_EXPORT_S3_BUCKET", c.ExportS3Bucket)
	c.ExportS3Endpoint = envOrDefault("ODRLFRAG_EXPORT_S3_ENDPOINT", c.ExportS3Endpoint)
	c.ExportS3Region = envOrDefault("ODRLFRAG_EXPORT_S3_REGION", c.ExportS3Region)
	c.ExportPrefix = envOrDefault("ODRLFRAG_EXPORT_PREFIX", c.ExportPrefix)
	c.ExportGitRepo = envOrDefault("ODRLFRAG_EXPORT_GIT_REPO", c.ExportGitRepo)
	c.ExportGitBranch = envOrDefault("ODRLFRAG_EXPORT_GIT_BRANCH", c.ExportGitBranch)
	c.MetricsTextfile = envOrDefault("ODRLFRAG_METRICS_TEXTFILE", c.MetricsTextfile)

	if v := os.Getenv("ODRLFRAG_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ODRLFRAG_THRESHOLD: %w", err)
		}
		c.Threshold = n
	}
	if v := os.Getenv("ODRLFRAG_LLM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ODRLFRAG_LLM_TIMEOUT: %w", err)
		}
		c.LLMTimeout = d
	}
	return nil
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		return name
	})
	return v
}()

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("config: %s: invalid value %v (%s %s)", fe.Field(), fe.Value(), fe.Tag(), fe.Param())
	}
	return fmt.Errorf("config: %w", err)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
