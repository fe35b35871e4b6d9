package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadHarnessConfig(t *testing.T) {
	path := writeConfig(t, "harness.json", `{
		"sheets_base_url": "http://sheets.internal:9000",
		"iou_threshold": 0.6,
		"rule_workers": 2,
		"poll_base_delay": "5s"
	}`)

	cfg, err := LoadHarnessConfig(path)
	if err != nil {
		t.Fatalf("LoadHarnessConfig: %v", err)
	}

	if got := cfg.GetSheetsBaseURL(); got != "http://sheets.internal:9000" {
		t.Errorf("GetSheetsBaseURL() = %q", got)
	}
	if got := cfg.GetIoUThreshold(); got != 0.6 {
		t.Errorf("GetIoUThreshold() = %v, want 0.6", got)
	}
	if got := cfg.GetRuleWorkers(); got != 2 {
		t.Errorf("GetRuleWorkers() = %d, want 2", got)
	}
	if got := cfg.GetPollBaseDelay(); got != 5*time.Second {
		t.Errorf("GetPollBaseDelay() = %v, want 5s", got)
	}

	// Omitted fields fall back to defaults.
	if got := cfg.GetCaseWorkers(); got != 4 {
		t.Errorf("GetCaseWorkers() default = %d, want 4", got)
	}
	if got := cfg.GetPollMaxDelay(); got != 30*time.Second {
		t.Errorf("GetPollMaxDelay() default = %v, want 30s", got)
	}
}

func TestLoadHarnessConfigRejectsNonJSON(t *testing.T) {
	path := writeConfig(t, "harness.yaml", "rule_workers: 2")
	if _, err := LoadHarnessConfig(path); err == nil {
		t.Error("expected error for non-json extension")
	}
}

func TestLoadHarnessConfigMissingFile(t *testing.T) {
	if _, err := LoadHarnessConfig("/nonexistent/harness.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadHarnessConfigBadJSON(t *testing.T) {
	path := writeConfig(t, "bad.json", "{not json")
	if _, err := LoadHarnessConfig(path); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestValidate(t *testing.T) {
	thr := func(v float64) *float64 { return &v }
	workers := func(v int) *int { return &v }
	dur := func(v string) *string { return &v }

	tests := []struct {
		name    string
		cfg     HarnessConfig
		wantErr bool
	}{
		{"empty config is valid", HarnessConfig{}, false},
		{"threshold above 1", HarnessConfig{IoUThreshold: thr(1.5)}, true},
		{"threshold zero", HarnessConfig{IoUThreshold: thr(0)}, true},
		{"threshold in range", HarnessConfig{IoUThreshold: thr(0.5)}, false},
		{"zero rule workers", HarnessConfig{RuleWorkers: workers(0)}, true},
		{"negative case workers", HarnessConfig{CaseWorkers: workers(-1)}, true},
		{"bad duration", HarnessConfig{RuleTimeout: dur("soon")}, true},
		{"good duration", HarnessConfig{RuleTimeout: dur("90s")}, false},
		{"negative frame rate", HarnessConfig{FrameRate: thr(-24)}, true},
		{"zero compression", HarnessConfig{Compression: thr(0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetDefaults(t *testing.T) {
	cfg := EmptyHarnessConfig()
	if cfg.GetIoUThreshold() != 0.5 {
		t.Errorf("default iou_threshold = %v", cfg.GetIoUThreshold())
	}
	if cfg.GetFrameRate() != 24.0 || cfg.GetCompression() != 2.5 {
		t.Errorf("default frame params = %v / %v", cfg.GetFrameRate(), cfg.GetCompression())
	}
	if cfg.GetRetryAttempts() != 5 {
		t.Errorf("default retry_attempts = %d", cfg.GetRetryAttempts())
	}
	if cfg.GetRuleTimeout() != 10*time.Minute {
		t.Errorf("default rule_timeout = %v", cfg.GetRuleTimeout())
	}
	if cfg.GetDBPath() != "visionproof.db" {
		t.Errorf("default db_path = %q", cfg.GetDBPath())
	}
}

func TestDurationFallbackOnParseError(t *testing.T) {
	bad := "not-a-duration"
	cfg := HarnessConfig{PollMaxDelay: &bad}
	if got := cfg.GetPollMaxDelay(); got != 30*time.Second {
		t.Errorf("unparseable duration should fall back, got %v", got)
	}
}
