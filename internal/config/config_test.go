package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultThenEnvOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok-123")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-xyz")
	t.Setenv("CHORUS_POSTGRES_DSN", "")

	cfg := Default()
	cfg.applyEnvOverrides()

	if cfg.Discord.Token != "tok-123" {
		t.Fatalf("got %q", cfg.Discord.Token)
	}
	if cfg.Providers.Anthropic.APIKey != "sk-ant-xyz" {
		t.Fatalf("got %q", cfg.Providers.Anthropic.APIKey)
	}
	if cfg.Database.Mode != "sqlite" {
		t.Fatalf("want default sqlite mode, got %q", cfg.Database.Mode)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json5"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agents.Defaults.Permissions != "standard" {
		t.Fatalf("got %q", cfg.Agents.Defaults.Permissions)
	}
}

func TestLoadParsesJSON5File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	content := `{
		// trailing comment, json5-style
		agents: { defaults: { permissions: "locked", model: "test-model" } },
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agents.Defaults.Permissions != "locked" || cfg.Agents.Defaults.Model != "test-model" {
		t.Fatalf("got %+v", cfg.Agents.Defaults)
	}
}

func TestSaveNeverPersistsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Discord.Token = "super-secret-token"
	cfg.Providers.Anthropic.APIKey = "sk-ant-secret"

	path := filepath.Join(t.TempDir(), "out.json")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytesContains(data, "super-secret-token") || bytesContains(data, "sk-ant-secret") {
		t.Fatalf("secret leaked into saved config: %s", data)
	}
}

func bytesContains(haystack []byte, needle string) bool {
	return len(needle) > 0 && (string(haystack) != "" && indexOf(string(haystack), needle) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestHomeDefaultsToDotChorusAgents(t *testing.T) {
	t.Setenv("CHORUS_HOME", "")
	home, _ := os.UserHomeDir()
	if got := Home(); got != filepath.Join(home, ".chorus-agents") {
		t.Fatalf("got %q", got)
	}
	t.Setenv("CHORUS_HOME", "/tmp/custom-home")
	if got := Home(); got != "/tmp/custom-home" {
		t.Fatalf("got %q", got)
	}
}
