package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Retrieval.ChunkSize != 1000 || cfg.Retrieval.ChunkOverlap != 200 {
		t.Errorf("unexpected chunking defaults: %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.DenseWeight != 0.7 || cfg.Retrieval.LexicalWeight != 0.3 {
		t.Errorf("unexpected fusion defaults: %+v", cfg.Retrieval)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  http_port: 9000
retrieval:
  top_k: 10
llm:
  primary:
    name: custom
    model: some-model
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.HTTPPort != 9000 {
		t.Errorf("yaml override not applied: %d", cfg.Server.HTTPPort)
	}
	if cfg.Retrieval.TopK != 10 {
		t.Errorf("yaml override not applied: %d", cfg.Retrieval.TopK)
	}
	if cfg.LLM.Primary.Name != "custom" || cfg.LLM.Primary.Model != "some-model" {
		t.Errorf("yaml override not applied: %+v", cfg.LLM.Primary)
	}
	// 未覆盖的字段保持默认值
	if cfg.LLM.Backup.Name != "openai" {
		t.Errorf("default backup lost: %+v", cfg.LLM.Backup)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("PAPERQA_PRIMARY_API_KEY", "env-key")
	t.Setenv("PAPERQA_HTTP_PORT", "9001")
	t.Setenv("PAPERQA_TELEMETRY_ENABLED", "true")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.LLM.Primary.APIKey != "env-key" {
		t.Errorf("env override not applied: %q", cfg.LLM.Primary.APIKey)
	}
	if cfg.Server.HTTPPort != 9001 {
		t.Errorf("env override not applied: %d", cfg.Server.HTTPPort)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("env bool override not applied")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := NewLoader().WithConfigPath("/does/not/exist.yaml").Load()
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = -1 }},
		{"zero chunk size", func(c *Config) { c.Retrieval.ChunkSize = 0 }},
		{"overlap >= size", func(c *Config) { c.Retrieval.ChunkOverlap = c.Retrieval.ChunkSize }},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"negative weight", func(c *Config) { c.Retrieval.DenseWeight = -0.1 }},
		{"all weights zero", func(c *Config) {
			c.Retrieval.DenseWeight = 0
			c.Retrieval.LexicalWeight = 0
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
