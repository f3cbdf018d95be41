// Package config loads service settings from the environment and pipeline
// tuning parameters from a JSON file. Tuning fields are pointers so a
// partial file only overrides what it names; the Get* methods supply
// defaults for the rest.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Tuning defaults.
const (
	DefaultModelSize        = 640.0
	DefaultProcessNoise     = 50.0
	DefaultMeasurementNoise = 4.0
	DefaultMinDeltaSeconds  = 1.0 / 240.0
	DefaultMaxDeltaSeconds  = 0.5
)

// Tuning holds the pipeline's tunable parameters. Nil fields fall back to
// the package defaults.
type Tuning struct {
	// Detector model input size (square, pixels).
	ModelSize *float64 `json:"model_size,omitempty"`

	// Estimator noise intensities.
	ProcessNoise     *float64 `json:"process_noise,omitempty"`
	MeasurementNoise *float64 `json:"measurement_noise,omitempty"`

	// Finite-difference dt clamp bounds (seconds).
	MinDeltaSeconds *float64 `json:"min_delta_seconds,omitempty"`
	MaxDeltaSeconds *float64 `json:"max_delta_seconds,omitempty"`
}

// EmptyTuning returns a Tuning with every field unset, i.e. all defaults.
func EmptyTuning() *Tuning {
	return &Tuning{}
}

// LoadTuning loads tuning from a JSON file. Fields omitted from the file
// keep their defaults, so partial configs are safe.
func LoadTuning(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuning()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that set fields carry usable values.
func (t *Tuning) Validate() error {
	if t.ModelSize != nil && *t.ModelSize <= 0 {
		return fmt.Errorf("model_size must be positive, got %f", *t.ModelSize)
	}
	if t.ProcessNoise != nil && *t.ProcessNoise <= 0 {
		return fmt.Errorf("process_noise must be positive, got %f", *t.ProcessNoise)
	}
	if t.MeasurementNoise != nil && *t.MeasurementNoise <= 0 {
		return fmt.Errorf("measurement_noise must be positive, got %f", *t.MeasurementNoise)
	}
	if t.MinDeltaSeconds != nil && *t.MinDeltaSeconds <= 0 {
		return fmt.Errorf("min_delta_seconds must be positive, got %f", *t.MinDeltaSeconds)
	}
	if t.MaxDeltaSeconds != nil && *t.MaxDeltaSeconds <= 0 {
		return fmt.Errorf("max_delta_seconds must be positive, got %f", *t.MaxDeltaSeconds)
	}
	if t.MinDeltaSeconds != nil && t.MaxDeltaSeconds != nil && *t.MinDeltaSeconds >= *t.MaxDeltaSeconds {
		return fmt.Errorf("min_delta_seconds (%f) must be below max_delta_seconds (%f)",
			*t.MinDeltaSeconds, *t.MaxDeltaSeconds)
	}
	return nil
}

// GetModelSize returns the configured model size or the default.
func (t *Tuning) GetModelSize() float64 {
	if t.ModelSize != nil {
		return *t.ModelSize
	}
	return DefaultModelSize
}

// GetProcessNoise returns the configured process noise or the default.
func (t *Tuning) GetProcessNoise() float64 {
	if t.ProcessNoise != nil {
		return *t.ProcessNoise
	}
	return DefaultProcessNoise
}

// GetMeasurementNoise returns the configured measurement noise or the default.
func (t *Tuning) GetMeasurementNoise() float64 {
	if t.MeasurementNoise != nil {
		return *t.MeasurementNoise
	}
	return DefaultMeasurementNoise
}

// GetMinDeltaSeconds returns the configured dt lower clamp or the default.
func (t *Tuning) GetMinDeltaSeconds() float64 {
	if t.MinDeltaSeconds != nil {
		return *t.MinDeltaSeconds
	}
	return DefaultMinDeltaSeconds
}

// GetMaxDeltaSeconds returns the configured dt upper clamp or the default.
func (t *Tuning) GetMaxDeltaSeconds() float64 {
	if t.MaxDeltaSeconds != nil {
		return *t.MaxDeltaSeconds
	}
	return DefaultMaxDeltaSeconds
}

// Service holds process-level settings, loaded from the environment. A
// .env file in the working directory is honoured when present.
type Service struct {
	ListenAddr string
	DBPath     string
}

// LoadService reads service settings from the environment, after loading a
// .env file if one exists.
func LoadService() Service {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	svc := Service{
		ListenAddr: ":8080",
		DBPath:     "speedframe.db",
	}
	if v := os.Getenv("SPEEDFRAME_LISTEN"); v != "" {
		svc.ListenAddr = v
	}
	if v := os.Getenv("SPEEDFRAME_DB"); v != "" {
		svc.DBPath = v
	}
	return svc
}
