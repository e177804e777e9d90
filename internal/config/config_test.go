package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// envVars lists every env var Load reads; they are cleared between tests.
var envVars = []string{
	"ODRLFRAG_CONFIG", "ODRLFRAG_STRATEGY", "ODRLFRAG_THRESHOLD", "ODRLFRAG_MODE",
	"ODRLFRAG_BP_POLICY", "ODRLFRAG_LLM_URL", "ODRLFRAG_LLM_TOKEN", "ODRLFRAG_LLM_MODEL",
	"ODRLFRAG_LLM_TIMEOUT", "ODRLFRAG_LOG_LEVEL", "ODRLFRAG_DATABASE_URL", "ODRLFRAG_NATS_URL",
	"ODRLFRAG_EXPORT_DIR", "ODRLFRAG_EXPORT_S3_BUCKET", "ODRLFRAG_EXPORT_S3_ENDPOINT",
	"ODRLFRAG_EXPORT_S3_REGION", "ODRLFRAG_EXPORT_PREFIX", "ODRLFRAG_EXPORT_GIT_REPO",
	"ODRLFRAG_EXPORT_GIT_BRANCH", "ODRLFRAG_METRICS_TEXTFILE",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
	// Keep the default path away from the real home directory.
	t.Setenv("HOME", t.TempDir())
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name         string
		file         string
		env          map[string]string
		wantErr      bool
		wantStrategy string
		wantThresh   int
		wantTimeout  time.Duration
		wantNATSURL  string
	}{
		{
			name:         "Defaults",
			wantStrategy: "gateway",
			wantThresh:   3,
			wantTimeout:  30 * time.Second,
		},
		{
			name:         "File",
			file:         "strategy = \"hybrid\"\nthreshold = 5\nllm_timeout = \"45s\"\nnats_url = \"nats://file:4222\"\n",
			wantStrategy: "hybrid",
			wantThresh:   5,
			wantTimeout:  45 * time.Second,
			wantNATSURL:  "nats://file:4222",
		},
		{
			name: "EnvOverridesFile",
			file: "strategy = \"hybrid\"\nthreshold = 5\n",
			env: map[string]string{
				"ODRLFRAG_STRATEGY":    "activity",
				"ODRLFRAG_LLM_TIMEOUT": "2s",
				"ODRLFRAG_NATS_URL":    "nats://localhost:4222",
			},
			wantStrategy: "activity",
			wantThresh:   5,
			wantTimeout:  2 * time.Second,
			wantNATSURL:  "nats://localhost:4222",
		},
		{
			name:    "InvalidStrategy",
			env:     map[string]string{"ODRLFRAG_STRATEGY": "random"},
			wantErr: true,
		},
		{
			name:    "InvalidThreshold",
			env:     map[string]string{"ODRLFRAG_THRESHOLD": "lots"},
			wantErr: true,
		},
		{
			name:    "ThresholdOutOfRange",
			file:    "threshold = 5000\n",
			wantErr: true,
		},
		{
			name:    "InvalidTimeout",
			env:     map[string]string{"ODRLFRAG_LLM_TIMEOUT": "soon"},
			wantErr: true,
		},
		{
			name:    "UnknownKey",
			file:    "strategyy = \"gateway\"\n",
			wantErr: true,
		},
		{
			name:    "InvalidLLMURL",
			env:     map[string]string{"ODRLFRAG_LLM_URL": "not a url"},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := ""
			if tc.file != "" {
				path = writeFile(t, tc.file)
			}

			cfg, err := Load(path)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Strategy != tc.wantStrategy {
				t.Errorf("Strategy = %q, want %q", cfg.Strategy, tc.wantStrategy)
			}
			if cfg.Threshold != tc.wantThresh {
				t.Errorf("Threshold = %d, want %d", cfg.Threshold, tc.wantThresh)
			}
			if cfg.LLMTimeout != tc.wantTimeout {
				t.Errorf("LLMTimeout = %v, want %v", cfg.LLMTimeout, tc.wantTimeout)
			}
			if cfg.NATSURL != tc.wantNATSURL {
				t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, tc.wantNATSURL)
			}
		})
	}
}

func TestLoad_RoleHierarchy(t *testing.T) {
	clearAllEnv(t)
	path := writeFile(t, `
[role_hierarchy]
"role:manager" = ["role:supervisor", "role:clerk"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.RoleHierarchy["role:manager"]; len(got) != 2 || got[1] != "role:clerk" {
		t.Errorf("RoleHierarchy = %v", cfg.RoleHierarchy)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	clearAllEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "missing.toml") {
		t.Errorf("err = %v, want error naming the file", err)
	}
}

func TestLoad_DefaultPathFromEnv(t *testing.T) {
	clearAllEnv(t)
	path := writeFile(t, "mode = \"llm\"\n")
	t.Setenv("ODRLFRAG_CONFIG", path)

	if got := DefaultPath(); got != path {
		t.Errorf("DefaultPath() = %q, want %q", got, path)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "llm" {
		t.Errorf("Mode = %q, want llm", cfg.Mode)
	}
}
