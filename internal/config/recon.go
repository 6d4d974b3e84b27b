// Package config loads reconstruction parameters from JSON. All fields are
// pointers so a partial config file only overrides what it names; the Get*
// methods supply the conventional defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReconConfig represents the root configuration for reconstruction runs.
type ReconConfig struct {
	// Calibration params
	ReferenceStation  *int     `json:"reference_station,omitempty"`
	ReferenceDetector *int     `json:"reference_detector,omitempty"` // 1-based detector number
	DetectorBinWidth  *float64 `json:"detector_bin_width_ns,omitempty"`
	DetectorWindow    *float64 `json:"detector_window_ns,omitempty"`
	StationBins       *int     `json:"station_bins,omitempty"`

	// Diagnostics
	PlotDir          *string `json:"plot_dir,omitempty"`
	ProgressInterval *string `json:"progress_interval,omitempty"` // duration string like "2s"

	// Station-network API
	APIBaseURL *string `json:"api_base_url,omitempty"`
	APITimeout *string `json:"api_timeout,omitempty"` // duration string like "30s"
	CacheDir   *string `json:"cache_dir,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultReconConfig returns a ReconConfig with every field set to its
// conventional default.
func DefaultReconConfig() *ReconConfig {
	return &ReconConfig{
		ReferenceStation:  ptrInt(501),
		ReferenceDetector: ptrInt(2),
		DetectorBinWidth:  ptrFloat64(2.5),
		DetectorWindow:    ptrFloat64(100),
		StationBins:       ptrInt(50),
		PlotDir:           ptrString(""),
		ProgressInterval:  ptrString("2s"),
		APIBaseURL:        ptrString(""),
		APITimeout:        ptrString("30s"),
		CacheDir:          ptrString("station-data"),
	}
}

// LoadReconConfig loads a ReconConfig from a JSON file. Fields omitted from
// the JSON file retain their default values, so partial configs are safe.
func LoadReconConfig(path string) (*ReconConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	cfg := &ReconConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *ReconConfig) Validate() error {
	if c.ReferenceDetector != nil {
		if *c.ReferenceDetector < 1 || *c.ReferenceDetector > 4 {
			return fmt.Errorf("reference_detector must be between 1 and 4, got %d", *c.ReferenceDetector)
		}
	}
	if c.DetectorBinWidth != nil && *c.DetectorBinWidth <= 0 {
		return fmt.Errorf("detector_bin_width_ns must be positive, got %f", *c.DetectorBinWidth)
	}
	if c.DetectorWindow != nil && *c.DetectorWindow <= 0 {
		return fmt.Errorf("detector_window_ns must be positive, got %f", *c.DetectorWindow)
	}
	if c.StationBins != nil && *c.StationBins < 2 {
		return fmt.Errorf("station_bins must be at least 2, got %d", *c.StationBins)
	}
	if c.ProgressInterval != nil && *c.ProgressInterval != "" {
		if _, err := time.ParseDuration(*c.ProgressInterval); err != nil {
			return fmt.Errorf("invalid progress_interval '%s': %w", *c.ProgressInterval, err)
		}
	}
	if c.APITimeout != nil && *c.APITimeout != "" {
		if _, err := time.ParseDuration(*c.APITimeout); err != nil {
			return fmt.Errorf("invalid api_timeout '%s': %w", *c.APITimeout, err)
		}
	}
	return nil
}

func (c *ReconConfig) GetReferenceStation() int {
	if c.ReferenceStation == nil {
		return 501 // default
	}
	return *c.ReferenceStation
}

// GetReferenceDetector returns the 0-based reference detector slot.
func (c *ReconConfig) GetReferenceDetector() int {
	if c.ReferenceDetector == nil {
		return 1 // detector 2
	}
	return *c.ReferenceDetector - 1
}

func (c *ReconConfig) GetDetectorBinWidth() float64 {
	if c.DetectorBinWidth == nil {
		return 2.5 // default
	}
	return *c.DetectorBinWidth
}

func (c *ReconConfig) GetDetectorWindow() float64 {
	if c.DetectorWindow == nil {
		return 100 // default
	}
	return *c.DetectorWindow
}

func (c *ReconConfig) GetStationBins() int {
	if c.StationBins == nil {
		return 50 // default
	}
	return *c.StationBins
}

func (c *ReconConfig) GetPlotDir() string {
	if c.PlotDir == nil {
		return ""
	}
	return *c.PlotDir
}

func (c *ReconConfig) GetProgressInterval() time.Duration {
	if c.ProgressInterval == nil || *c.ProgressInterval == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.ProgressInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

func (c *ReconConfig) GetAPIBaseURL() string {
	if c.APIBaseURL == nil {
		return ""
	}
	return *c.APIBaseURL
}

func (c *ReconConfig) GetAPITimeout() time.Duration {
	if c.APITimeout == nil || *c.APITimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.APITimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func (c *ReconConfig) GetCacheDir() string {
	if c.CacheDir == nil {
		return "station-data"
	}
	return *c.CacheDir
}

// DetectorEdges builds the detector histogram bin edges from the configured
// window and bin width, on a half-bin offset so zero lands on a bin center.
func (c *ReconConfig) DetectorEdges() []float64 {
	width := c.GetDetectorBinWidth()
	window := c.GetDetectorWindow()
	var edges []float64
	for edge := -window + width/2; edge < window; edge += width {
		edges = append(edges, edge)
	}
	return edges
}
