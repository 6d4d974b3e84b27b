package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultReconConfig(t *testing.T) {
	cfg := DefaultReconConfig()

	if cfg.ReferenceStation == nil || *cfg.ReferenceStation != 501 {
		t.Errorf("Expected ReferenceStation 501, got %v", cfg.ReferenceStation)
	}
	if cfg.ReferenceDetector == nil || *cfg.ReferenceDetector != 2 {
		t.Errorf("Expected ReferenceDetector 2, got %v", cfg.ReferenceDetector)
	}
	if cfg.DetectorBinWidth == nil || *cfg.DetectorBinWidth != 2.5 {
		t.Errorf("Expected DetectorBinWidth 2.5, got %v", cfg.DetectorBinWidth)
	}

	if cfg.GetReferenceStation() != 501 {
		t.Errorf("GetReferenceStation() = %d, want 501", cfg.GetReferenceStation())
	}
	if cfg.GetReferenceDetector() != 1 {
		t.Errorf("GetReferenceDetector() = %d, want 1 (0-based)", cfg.GetReferenceDetector())
	}
	if cfg.GetProgressInterval() != 2*time.Second {
		t.Errorf("GetProgressInterval() = %v, want 2s", cfg.GetProgressInterval())
	}
	if cfg.GetAPITimeout() != 30*time.Second {
		t.Errorf("GetAPITimeout() = %v, want 30s", cfg.GetAPITimeout())
	}
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	cfg := &ReconConfig{}

	if cfg.GetReferenceStation() != 501 {
		t.Errorf("GetReferenceStation() = %d, want 501", cfg.GetReferenceStation())
	}
	if cfg.GetStationBins() != 50 {
		t.Errorf("GetStationBins() = %d, want 50", cfg.GetStationBins())
	}
	if cfg.GetCacheDir() != "station-data" {
		t.Errorf("GetCacheDir() = %q, want station-data", cfg.GetCacheDir())
	}
}

func TestLoadReconConfig_Partial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recon.json")
	content := `{"reference_station": 8001, "station_bins": 80}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadReconConfig(path)
	if err != nil {
		t.Fatalf("LoadReconConfig failed: %v", err)
	}

	// overridden fields
	if cfg.GetReferenceStation() != 8001 {
		t.Errorf("GetReferenceStation() = %d, want 8001", cfg.GetReferenceStation())
	}
	if cfg.GetStationBins() != 80 {
		t.Errorf("GetStationBins() = %d, want 80", cfg.GetStationBins())
	}
	// untouched fields fall back to defaults
	if cfg.GetDetectorBinWidth() != 2.5 {
		t.Errorf("GetDetectorBinWidth() = %f, want 2.5", cfg.GetDetectorBinWidth())
	}
}

func TestLoadReconConfig_Errors(t *testing.T) {
	if _, err := LoadReconConfig("no-extension"); err == nil {
		t.Error("expected error for non-json path")
	}
	if _, err := LoadReconConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"reference_detector": 7}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadReconConfig(path); err == nil {
		t.Error("expected validation error for reference_detector 7")
	}
}

func TestDetectorEdges(t *testing.T) {
	cfg := DefaultReconConfig()
	edges := cfg.DetectorEdges()

	if len(edges) != 80 {
		t.Fatalf("expected 80 edges, got %d", len(edges))
	}
	if edges[0] != -98.75 {
		t.Errorf("first edge = %f, want -98.75", edges[0])
	}
	if last := edges[len(edges)-1]; last != 98.75 {
		t.Errorf("last edge = %f, want 98.75", last)
	}
}
