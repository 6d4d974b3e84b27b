// Package cluster models the geometry of a detector network: stations with
// four scintillator detectors each, positioned in a local flat coordinate
// frame. Reconstruction treats a cluster as an immutable snapshot; a change
// in station composition is a new cluster with a new revision.
package cluster

import (
	"fmt"
	"math"
	"sort"
)

// Position is a point in the cluster's local frame, meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Station is one four-detector measurement station.
type Station struct {
	Number    int         `json:"number"`
	Altitude  float64     `json:"altitude"`
	Detectors [4]Position `json:"detectors"`
}

// Center returns the mean detector position, used as the station's
// representative location when solving coincidences.
func (s Station) Center() Position {
	var c Position
	for _, d := range s.Detectors {
		c.X += d.X
		c.Y += d.Y
		c.Z += d.Z
	}
	c.X /= 4
	c.Y /= 4
	c.Z /= 4
	return c
}

// DiamondStation lays out four detectors in the standard diamond pattern
// around a center: one ahead, one behind, two on the flanks, arm meters from
// the center. Used for seeded geometry in tests and simulations.
func DiamondStation(number int, center Position, arm float64) Station {
	return Station{
		Number:   number,
		Altitude: center.Z,
		Detectors: [4]Position{
			{X: center.X, Y: center.Y + arm, Z: center.Z},
			{X: center.X, Y: center.Y - arm, Z: center.Z},
			{X: center.X - arm, Y: center.Y, Z: center.Z},
			{X: center.X + arm, Y: center.Y, Z: center.Z},
		},
	}
}

// Cluster is an ordered, immutable set of stations keyed by station number.
type Cluster struct {
	revision string
	stations []Station
	byNumber map[int]Station
}

// New builds a cluster from the given stations. Station numbers must be
// unique. Stations are kept in ascending number order regardless of input
// order so per-run output schemas are stable.
func New(revision string, stations ...Station) (*Cluster, error) {
	if len(stations) == 0 {
		return nil, fmt.Errorf("cluster %q has no stations", revision)
	}
	byNumber := make(map[int]Station, len(stations))
	ordered := make([]Station, len(stations))
	copy(ordered, stations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })
	for _, s := range ordered {
		if _, dup := byNumber[s.Number]; dup {
			return nil, fmt.Errorf("cluster %q has duplicate station %d", revision, s.Number)
		}
		byNumber[s.Number] = s
	}
	return &Cluster{revision: revision, stations: ordered, byNumber: byNumber}, nil
}

// Revision identifies the geometry snapshot this cluster represents.
func (c *Cluster) Revision() string { return c.revision }

// Stations returns the stations in ascending number order.
func (c *Cluster) Stations() []Station {
	out := make([]Station, len(c.stations))
	copy(out, c.stations)
	return out
}

// Numbers returns the station numbers in ascending order.
func (c *Cluster) Numbers() []int {
	out := make([]int, len(c.stations))
	for i, s := range c.stations {
		out[i] = s.Number
	}
	return out
}

// Get looks up a station by number.
func (c *Cluster) Get(number int) (Station, bool) {
	s, ok := c.byNumber[number]
	return s, ok
}

// RPhiZ returns the horizontal separation r, bearing phi and height
// difference z from station a to station b.
func (c *Cluster) RPhiZ(a, b int) (r, phi, z float64, err error) {
	sa, ok := c.byNumber[a]
	if !ok {
		return 0, 0, 0, fmt.Errorf("station %d not in cluster %q", a, c.revision)
	}
	sb, ok := c.byNumber[b]
	if !ok {
		return 0, 0, 0, fmt.Errorf("station %d not in cluster %q", b, c.revision)
	}
	ca, cb := sa.Center(), sb.Center()
	dx, dy, dz := cb.X-ca.X, cb.Y-ca.Y, cb.Z-ca.Z
	return math.Hypot(dx, dy), math.Atan2(dy, dx), dz, nil
}

// DistanceBetween returns the horizontal distance between two stations,
// which bounds the physically possible arrival-time difference and therefore
// sizes the station-offset search window.
func (c *Cluster) DistanceBetween(a, b int) (float64, error) {
	r, _, _, err := c.RPhiZ(a, b)
	return r, err
}
