// Package config holds the tunable settings of a deployment: model
// selection and the classification/quality thresholds. Settings persist
// as a JSON file and merge over defaults so partial files stay valid
// across upgrades. API keys are never persisted; providers read them
// from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Settings is the persisted configuration.
type Settings struct {
	Model               string  `json:"model"`
	QualityThreshold    int     `json:"quality_threshold"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	Concurrency         int     `json:"concurrency"`
	MaxRegulations      int     `json:"max_regulations_to_check"`
	AutoSaveReports     bool    `json:"auto_save_reports"`
}

// Defaults returns the out-of-the-box settings.
func Defaults() Settings {
	return Settings{
		Model:               "openai:gpt-4o",
		QualityThreshold:    40,
		ConfidenceThreshold: 0.70,
		Concurrency:         4,
		MaxRegulations:      50,
		AutoSaveReports:     true,
	}
}

// Load reads settings from path, merging over defaults. A missing file
// is not an error: defaults apply. Environment variables override both.
func Load(path string) (Settings, error) {
	s := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// keep defaults
	case err != nil:
		return s, fmt.Errorf("reading settings: %w", err)
	default:
		// Unmarshal over the defaults struct: absent keys keep defaults.
		if err := json.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parsing settings %s: %w", path, err)
		}
	}

	s.Model = getenv("ARCCS_MODEL", s.Model)
	s.QualityThreshold = getenvInt("ARCCS_QUALITY_THRESHOLD", s.QualityThreshold)
	s.ConfidenceThreshold = getenvFloat("ARCCS_CONFIDENCE_THRESHOLD", s.ConfidenceThreshold)
	s.Concurrency = getenvInt("ARCCS_CONCURRENCY", s.Concurrency)

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Save writes settings to path as indented JSON.
func (s Settings) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// Validate checks ranges. Violations are configuration errors: callers
// must refuse to start any batch work on them.
func (s Settings) Validate() error {
	if s.QualityThreshold < 0 || s.QualityThreshold > 100 {
		return fmt.Errorf("quality_threshold %d out of range [0,100]", s.QualityThreshold)
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold %g out of range [0,1]", s.ConfidenceThreshold)
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", s.Concurrency)
	}
	if s.MaxRegulations < 1 {
		return fmt.Errorf("max_regulations_to_check must be >= 1, got %d", s.MaxRegulations)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.Atoi(v); err == nil {
			return out
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.ParseFloat(v, 64); err == nil {
			return out
		}
	}
	return def
}
