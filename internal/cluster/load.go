package cluster

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

type clusterFile struct {
	Revision string    `json:"revision"`
	Stations []Station `json:"stations"`
}

// LoadFile reads a cluster geometry snapshot from a JSON file.
func LoadFile(path string) (*Cluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cluster file: %w", err)
	}
	var cf clusterFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse cluster file %s: %w", path, err)
	}
	if cf.Revision == "" {
		return nil, fmt.Errorf("cluster file %s has no revision", path)
	}
	return New(cf.Revision, cf.Stations...)
}

// GPSStation is a station position as published by the network API.
type GPSStation struct {
	Number    int
	Latitude  float64
	Longitude float64
	Altitude  float64
}

const earthRadius = 6.371e6 // meters

// defaultArm approximates the detector layout when only a station's GPS
// position is known.
const defaultArm = 5.0

// FromGPS builds a cluster from GPS positions, projected onto a local flat
// frame centered on the first station (equirectangular, fine at the few-km
// scale of a cluster). Detectors are laid out in the standard diamond since
// the API does not publish per-detector survey data.
func FromGPS(revision string, stations []GPSStation) (*Cluster, error) {
	if len(stations) == 0 {
		return nil, fmt.Errorf("cluster %q has no stations", revision)
	}
	lat0 := stations[0].Latitude * math.Pi / 180
	lon0 := stations[0].Longitude * math.Pi / 180
	alt0 := stations[0].Altitude

	built := make([]Station, len(stations))
	for i, s := range stations {
		lat := s.Latitude * math.Pi / 180
		lon := s.Longitude * math.Pi / 180
		center := Position{
			X: earthRadius * (lon - lon0) * math.Cos(lat0),
			Y: earthRadius * (lat - lat0),
			Z: s.Altitude - alt0,
		}
		built[i] = DiamondStation(s.Number, center, defaultArm)
	}
	return New(revision, built...)
}
