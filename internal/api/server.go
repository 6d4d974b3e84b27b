// Package api exposes stored reconstruction results over HTTP: JSON listings
// for stations and coincidences, a sky-map debug chart, Prometheus metrics
// and the database admin routes.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skyfront-data/shower.report/internal/monitoring"
	"github.com/skyfront-data/shower.report/internal/recon"
	"github.com/skyfront-data/shower.report/internal/recondb"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db *recondb.DB
}

func NewServer(db *recondb.DB) *Server {
	return &Server{db: db}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/reconstructions/events", s.listEventReconstructions)
	mux.HandleFunc("/api/reconstructions/coincidences", s.listCoincidenceReconstructions)
	mux.HandleFunc("/api/offsets", s.showDetectorOffsets)
	mux.HandleFunc("/debug/skymap", s.handleSkymap)
	mux.Handle("/metrics", promhttp.Handler())
	s.db.AttachAdminRoutes(mux)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// stationParam parses the required station query parameter.
func (s *Server) stationParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	station, err := strconv.Atoi(r.URL.Query().Get("station"))
	if err != nil || station <= 0 {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'station' parameter")
		return 0, false
	}
	return station, true
}

type eventReconstructionAPI struct {
	EventID      int64   `json:"event_id"`
	ExtTimestamp uint64  `json:"ext_timestamp"`
	MinN         float64 `json:"min_n"`
	Zenith       float64 `json:"zenith"`
	Azimuth      float64 `json:"azimuth"`
	Detectors    []int   `json:"detectors"`
}

type coincidenceReconstructionAPI struct {
	CoincidenceID int64   `json:"coincidence_id"`
	ExtTimestamp  uint64  `json:"ext_timestamp"`
	Zenith        float64 `json:"zenith"`
	Azimuth       float64 `json:"azimuth"`
	Stations      []int   `json:"stations"`
}

func (s *Server) listEventReconstructions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	station, ok := s.stationParam(w, r)
	if !ok {
		return
	}

	store := recondb.NewEventStore(s.db, station)
	exists, err := store.HasReconstructions()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to check reconstructions: %v", err))
		return
	}
	if !exists {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("No reconstructions for station %d", station))
		return
	}

	results, err := store.Reconstructions()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve reconstructions: %v", err))
		return
	}

	rows := make([]eventReconstructionAPI, len(results))
	for i, res := range results {
		row := eventReconstructionAPI{
			EventID:      res.EventID,
			ExtTimestamp: res.ExtTimestamp,
			MinN:         res.MinN,
			Zenith:       res.Zenith,
			Azimuth:      res.Azimuth,
			Detectors:    []int{},
		}
		for d, set := range res.D {
			if set {
				row.Detectors = append(row.Detectors, d+1)
			}
		}
		rows[i] = row
	}
	json.NewEncoder(w).Encode(rows)
}

func (s *Server) listCoincidenceReconstructions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	store := recondb.NewCoincidenceStore(s.db)
	exists, err := store.HasReconstructions()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to check reconstructions: %v", err))
		return
	}
	if !exists {
		s.writeJSONError(w, http.StatusNotFound, "No coincidence reconstructions")
		return
	}

	results, err := store.Reconstructions()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve reconstructions: %v", err))
		return
	}

	rows := make([]coincidenceReconstructionAPI, len(results))
	for i, res := range results {
		stations := res.StationNumbers
		if stations == nil {
			stations = []int{}
		}
		rows[i] = coincidenceReconstructionAPI{
			CoincidenceID: res.CoincidenceID,
			ExtTimestamp:  res.ExtTimestamp,
			Zenith:        res.Zenith,
			Azimuth:       res.Azimuth,
			Stations:      stations,
		}
	}
	json.NewEncoder(w).Encode(rows)
}

func (s *Server) showDetectorOffsets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	station, ok := s.stationParam(w, r)
	if !ok {
		return
	}

	store := recondb.NewEventStore(s.db, station)
	runID, offsets, found, err := store.LatestDetectorOffsets()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve offsets: %v", err))
		return
	}
	if !found {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("No calibration recorded for station %d", station))
		return
	}

	json.NewEncoder(w).Encode(struct {
		Station int                `json:"station"`
		RunID   string             `json:"run_id"`
		Offsets recon.OffsetVector `json:"offsets"`
	}{Station: station, RunID: runID, Offsets: offsets})
}
