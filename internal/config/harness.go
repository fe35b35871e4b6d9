// Package config loads harness settings from JSON with per-field
// fallback defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical harness defaults file.
// This is the single source of truth for all default settings.
const DefaultConfigPath = "config/harness.defaults.json"

// HarnessConfig represents the root configuration for a validation run.
// All fields are pointers so a partial JSON file only overrides what it
// names; the Get* methods supply defaults for everything else.
type HarnessConfig struct {
	// Collaborator endpoints
	SheetsBaseURL   *string `json:"sheets_base_url,omitempty"`
	VideoBaseURL    *string `json:"video_base_url,omitempty"`
	AnalysisBaseURL *string `json:"analysis_base_url,omitempty"`

	// Scoring params
	IoUThreshold *float64 `json:"iou_threshold,omitempty"`
	FrameRate    *float64 `json:"frame_rate,omitempty"`
	Compression  *float64 `json:"compression,omitempty"`

	// Concurrency params
	RuleWorkers *int `json:"rule_workers,omitempty"`
	CaseWorkers *int `json:"case_workers,omitempty"`

	// Polling params
	PollBaseDelay  *string `json:"poll_base_delay,omitempty"` // duration string like "2s"
	PollMultiplier *float64 `json:"poll_multiplier,omitempty"`
	PollMaxDelay   *string `json:"poll_max_delay,omitempty"`
	RuleTimeout    *string `json:"rule_timeout,omitempty"`

	// Retry params
	RetryAttempts *int    `json:"retry_attempts,omitempty"`
	RetryBase     *string `json:"retry_base,omitempty"`

	// Persistence
	DBPath    *string `json:"db_path,omitempty"`
	RulesPath *string `json:"rules_path,omitempty"`
}

// EmptyHarnessConfig returns a HarnessConfig with all fields set to nil.
// Use LoadHarnessConfig to load actual values from the defaults file.
func EmptyHarnessConfig() *HarnessConfig {
	return &HarnessConfig{}
}

// LoadHarnessConfig loads a HarnessConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON retain their defaults,
// so partial configs are safe.
func LoadHarnessConfig(path string) (*HarnessConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyHarnessConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *HarnessConfig) Validate() error {
	if c.IoUThreshold != nil {
		if *c.IoUThreshold <= 0 || *c.IoUThreshold > 1 {
			return fmt.Errorf("iou_threshold must be in (0, 1], got %f", *c.IoUThreshold)
		}
	}

	if c.RuleWorkers != nil && *c.RuleWorkers < 1 {
		return fmt.Errorf("rule_workers must be positive, got %d", *c.RuleWorkers)
	}

	if c.CaseWorkers != nil && *c.CaseWorkers < 1 {
		return fmt.Errorf("case_workers must be positive, got %d", *c.CaseWorkers)
	}

	if c.FrameRate != nil && *c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %f", *c.FrameRate)
	}

	if c.Compression != nil && *c.Compression <= 0 {
		return fmt.Errorf("compression must be positive, got %f", *c.Compression)
	}

	for name, v := range map[string]*string{
		"poll_base_delay": c.PollBaseDelay,
		"poll_max_delay":  c.PollMaxDelay,
		"rule_timeout":    c.RuleTimeout,
		"retry_base":      c.RetryBase,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	return nil
}

func (c *HarnessConfig) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}

// GetSheetsBaseURL returns the test-case source endpoint or the default.
func (c *HarnessConfig) GetSheetsBaseURL() string {
	if c.SheetsBaseURL == nil {
		return "http://localhost:8090"
	}
	return *c.SheetsBaseURL
}

// GetVideoBaseURL returns the video store endpoint or the default.
func (c *HarnessConfig) GetVideoBaseURL() string {
	if c.VideoBaseURL == nil {
		return "http://localhost:8091"
	}
	return *c.VideoBaseURL
}

// GetAnalysisBaseURL returns the analysis service endpoint or the default.
func (c *HarnessConfig) GetAnalysisBaseURL() string {
	if c.AnalysisBaseURL == nil {
		return "http://localhost:8092"
	}
	return *c.AnalysisBaseURL
}

// GetIoUThreshold returns the iou_threshold value or the default.
func (c *HarnessConfig) GetIoUThreshold() float64 {
	if c.IoUThreshold == nil {
		return 0.5
	}
	return *c.IoUThreshold
}

// GetFrameRate returns the source frame rate or the default.
func (c *HarnessConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return 24.0
	}
	return *c.FrameRate
}

// GetCompression returns the temporal compression factor or the default.
// Effective frame rate for timestamp-to-frame conversion is
// frame_rate / compression.
func (c *HarnessConfig) GetCompression() float64 {
	if c.Compression == nil {
		return 2.5
	}
	return *c.Compression
}

// GetRuleWorkers returns the rule-level pool width or the default.
func (c *HarnessConfig) GetRuleWorkers() int {
	if c.RuleWorkers == nil {
		return 3
	}
	return *c.RuleWorkers
}

// GetCaseWorkers returns the per-rule case pool width or the default.
func (c *HarnessConfig) GetCaseWorkers() int {
	if c.CaseWorkers == nil {
		return 4
	}
	return *c.CaseWorkers
}

// GetPollBaseDelay returns the initial poll interval or the default.
func (c *HarnessConfig) GetPollBaseDelay() time.Duration {
	return c.duration(c.PollBaseDelay, 2*time.Second)
}

// GetPollMultiplier returns the poll backoff multiplier or the default.
func (c *HarnessConfig) GetPollMultiplier() float64 {
	if c.PollMultiplier == nil {
		return 1.5
	}
	return *c.PollMultiplier
}

// GetPollMaxDelay returns the poll interval cap or the default.
func (c *HarnessConfig) GetPollMaxDelay() time.Duration {
	return c.duration(c.PollMaxDelay, 30*time.Second)
}

// GetRuleTimeout returns the per-rule deadline or the default.
func (c *HarnessConfig) GetRuleTimeout() time.Duration {
	return c.duration(c.RuleTimeout, 10*time.Minute)
}

// GetRetryAttempts returns the transient-error attempt cap or the default.
func (c *HarnessConfig) GetRetryAttempts() int {
	if c.RetryAttempts == nil {
		return 5
	}
	return *c.RetryAttempts
}

// GetRetryBase returns the initial retry delay or the default.
func (c *HarnessConfig) GetRetryBase() time.Duration {
	return c.duration(c.RetryBase, 200*time.Millisecond)
}

// GetDBPath returns the run-history database path or the default.
func (c *HarnessConfig) GetDBPath() string {
	if c.DBPath == nil {
		return "visionproof.db"
	}
	return *c.DBPath
}

// GetRulesPath returns the rule catalogue path or the default.
func (c *HarnessConfig) GetRulesPath() string {
	if c.RulesPath == nil {
		return "config/rules.yaml"
	}
	return *c.RulesPath
}
