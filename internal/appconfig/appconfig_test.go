// internal/appconfig/appconfig_test.go
package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestLoad verifies that a valid file is decoded over the defaults and that
// invalid JSON, schema violations and missing files are reported as errors.
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	valid := writeConfig(t, dir, "valid.json", `{
        "backend": "Parallel",
        "epochRounds": 5,
        "workloads": {"tensorShape": [64, 64], "image": "frog"}
    }`)

	cfg, err := Load(valid)
	if err != nil {
		t.Fatalf("Load() with valid config failed: %v", err)
	}
	if cfg.BackendName() != "parallel" {
		t.Fatalf("expected backend parallel, got %q", cfg.BackendName())
	}
	if cfg.EpochRounds != 5 || cfg.WarmupRounds != DefaultWarmupRounds || cfg.Seed != DefaultSeed {
		t.Fatalf("expected file values over defaults, got %+v", cfg)
	}
	if cfg.RequestTimeout() != 600*time.Second {
		t.Fatalf("expected default request timeout of 600s, got %v", cfg.RequestTimeout())
	}
	if cfg.Workloads.Image != "frog" || len(cfg.Workloads.TensorShape) != 2 {
		t.Fatalf("unexpected workloads %+v", cfg.Workloads)
	}
	if cfg.ConfigPath != valid {
		t.Fatalf("expected config path %q, got %q", valid, cfg.ConfigPath)
	}

	zeroWarmup := writeConfig(t, dir, "zero.json", `{"warmupRounds": 0}`)
	cfg, err = Load(zeroWarmup)
	if err != nil {
		t.Fatalf("Load() zero warmup: %v", err)
	}
	if cfg.WarmupRounds != 0 {
		t.Fatalf("explicit zero warmup replaced by default: %d", cfg.WarmupRounds)
	}

	invalidJSON := writeConfig(t, dir, "invalid.json", `{"backend": "cpu",`)
	if _, err := Load(invalidJSON); err == nil {
		t.Fatal("Load() with invalid JSON should have failed")
	}

	badSchema := writeConfig(t, dir, "schema.json", `{"epochRounds": 0, "workloads": {"image": "cat"}}`)
	_, err = Load(badSchema)
	if err == nil || !strings.Contains(err.Error(), "config failed validation") {
		t.Fatalf("expected schema failure, got %v", err)
	}

	unknownKey := writeConfig(t, dir, "unknown.json", `{"hosts": []}`)
	if _, err := Load(unknownKey); err == nil {
		t.Fatal("Load() with unknown key should have failed")
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("Load() with nonexistent file should have failed")
	}
}

func TestLoadLegacyFallback(t *testing.T) {
	dir := t.TempDir()
	prevDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prevDir) })

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "no configuration file found") {
		t.Fatalf("expected not-found error, got %v", err)
	}

	writeConfig(t, dir, legacyConfigPath, `{"seed": 7}`)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() legacy: %v", err)
	}
	if cfg.Seed != 7 || cfg.ConfigPath != legacyConfigPath {
		t.Fatalf("unexpected legacy config %+v", cfg)
	}
}

func TestAccessorDefaults(t *testing.T) {
	var cfg Config
	if cfg.LogFilePath() != DefaultLogFile {
		t.Fatalf("log file default: %q", cfg.LogFilePath())
	}
	if cfg.BackendName() != DefaultBackend {
		t.Fatalf("backend default: %q", cfg.BackendName())
	}
	if cfg.Listen() != DefaultListenAddr {
		t.Fatalf("listen default: %q", cfg.Listen())
	}
	if cfg.ExportDir() != "" {
		t.Fatalf("export should be disabled by default")
	}
	cfg.TimeoutSeconds = 5
	if cfg.RequestTimeout() != 5*time.Second {
		t.Fatalf("timeout: %v", cfg.RequestTimeout())
	}
}

func TestShowConfig(t *testing.T) {
	var buf bytes.Buffer
	ShowConfig(&buf, "", nil, Defaults())
	out := buf.String()
	if !strings.Contains(out, "No config file loaded") || !strings.Contains(out, "Epoch Rounds:    50") {
		t.Fatalf("unexpected fallback output:\n%s", out)
	}

	buf.Reset()
	cfg := Defaults()
	cfg.ExportPath = "reports"
	cfg.Workloads.Question = "Who?"
	ShowConfig(&buf, "config/config.json", &cfg, Config{})
	out = buf.String()
	for _, want := range []string{"Config file: config/config.json", "Export Path:     reports", `Question:        "Who?"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	path := filepath.Join("..", "..", "config", "config.example.json")
	if err := ValidateFile(path); err != nil {
		t.Fatalf("example config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load example config: %v", err)
	}
	if cfg.ExportDir() != DefaultExportDir || len(cfg.Workloads.TensorShape) != 3 {
		t.Fatalf("unexpected example config: %+v", cfg)
	}
}
