package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// effective flattens a Tuning into the values the pipeline would actually
// use, defaults applied.
type effective struct {
	ModelSize        float64
	ProcessNoise     float64
	MeasurementNoise float64
	MinDeltaSeconds  float64
	MaxDeltaSeconds  float64
}

func flatten(t *Tuning) effective {
	return effective{
		ModelSize:        t.GetModelSize(),
		ProcessNoise:     t.GetProcessNoise(),
		MeasurementNoise: t.GetMeasurementNoise(),
		MinDeltaSeconds:  t.GetMinDeltaSeconds(),
		MaxDeltaSeconds:  t.GetMaxDeltaSeconds(),
	}
}

func writeTuningFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write tuning file: %v", err)
	}
	return path
}

func TestEmptyTuningUsesDefaults(t *testing.T) {
	want := effective{
		ModelSize:        DefaultModelSize,
		ProcessNoise:     DefaultProcessNoise,
		MeasurementNoise: DefaultMeasurementNoise,
		MinDeltaSeconds:  DefaultMinDeltaSeconds,
		MaxDeltaSeconds:  DefaultMaxDeltaSeconds,
	}
	if diff := cmp.Diff(want, flatten(EmptyTuning())); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTuningPartialOverride(t *testing.T) {
	path := writeTuningFile(t, "tuning.json", `{"model_size": 512, "process_noise": 10}`)

	cfg, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning failed: %v", err)
	}

	want := effective{
		ModelSize:        512,
		ProcessNoise:     10,
		MeasurementNoise: DefaultMeasurementNoise,
		MinDeltaSeconds:  DefaultMinDeltaSeconds,
		MaxDeltaSeconds:  DefaultMaxDeltaSeconds,
	}
	if diff := cmp.Diff(want, flatten(cfg)); diff != "" {
		t.Errorf("partial override mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTuningRejectsNonJSONExtension(t *testing.T) {
	path := writeTuningFile(t, "tuning.yaml", `{}`)
	if _, err := LoadTuning(path); err == nil {
		t.Error("non-.json extension should be rejected")
	}
}

func TestLoadTuningRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"negative model size", `{"model_size": -1}`},
		{"zero process noise", `{"process_noise": 0}`},
		{"zero measurement noise", `{"measurement_noise": 0}`},
		{"inverted clamp bounds", `{"min_delta_seconds": 1.0, "max_delta_seconds": 0.1}`},
		{"malformed json", `{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTuningFile(t, "tuning.json", tc.content)
			if _, err := LoadTuning(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadServiceEnvOverrides(t *testing.T) {
	t.Setenv("SPEEDFRAME_LISTEN", ":9999")
	t.Setenv("SPEEDFRAME_DB", "/tmp/alt.db")

	svc := LoadService()
	if svc.ListenAddr != ":9999" {
		t.Errorf("listen addr: got %q, want :9999", svc.ListenAddr)
	}
	if svc.DBPath != "/tmp/alt.db" {
		t.Errorf("db path: got %q, want /tmp/alt.db", svc.DBPath)
	}
}
