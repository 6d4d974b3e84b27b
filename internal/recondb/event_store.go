package recondb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/skyfront-data/shower.report/internal/recon"
)

// EventStore reads a station's events and persists its single-station
// reconstruction results. The output table is named after the station so
// several stations can be reconstructed into the same database.
type EventStore struct {
	db      *DB
	station int
}

func NewEventStore(db *DB, station int) *EventStore {
	return &EventStore{db: db, station: station}
}

// Name returns the reconstruction output table for this store's station.
func (s *EventStore) Name() string {
	return fmt.Sprintf("reconstructions_s%d", s.station)
}

// AddEvent inserts one raw station event.
func (s *EventStore) AddEvent(stationNumber int, e recon.Event) error {
	_, err := s.db.Exec(
		`INSERT INTO events (
			station, event_id, timestamp, ext_timestamp, t_trigger,
			t1, t2, t3, t4, n1, n2, n3, n4
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stationNumber, e.EventID, e.Timestamp, int64(e.ExtTimestamp), e.TTrigger,
		e.T[0], e.T[1], e.T[2], e.T[3],
		e.N[0], e.N[1], e.N[2], e.N[3],
	)
	if err != nil {
		return fmt.Errorf("insert event %d for station %d: %w", e.EventID, stationNumber, err)
	}
	return nil
}

// StationEvents returns a station's full event set in trigger order.
func (s *EventStore) StationEvents(stationNumber int) ([]recon.Event, error) {
	rows, err := s.db.Query(
		`SELECT event_id, timestamp, ext_timestamp, t_trigger,
			t1, t2, t3, t4, n1, n2, n3, n4
		FROM events WHERE station = ? ORDER BY ext_timestamp`, stationNumber)
	if err != nil {
		return nil, fmt.Errorf("query events for station %d: %w", stationNumber, err)
	}
	defer rows.Close()

	var events []recon.Event
	for rows.Next() {
		var e recon.Event
		var ext int64
		if err := rows.Scan(
			&e.EventID, &e.Timestamp, &ext, &e.TTrigger,
			&e.T[0], &e.T[1], &e.T[2], &e.T[3],
			&e.N[0], &e.N[1], &e.N[2], &e.N[3],
		); err != nil {
			return nil, err
		}
		e.ExtTimestamp = uint64(ext)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *EventStore) HasReconstructions() (bool, error) {
	return s.db.Contains(s.Name())
}

func (s *EventStore) ClearReconstructions() error {
	return s.db.Remove(s.Name())
}

func (s *EventStore) CreateReconstructions() error {
	exists, err := s.db.Contains(s.Name())
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrTableExists, s.Name())
	}
	_, err = s.db.Exec(fmt.Sprintf(`
		CREATE TABLE %s (
			event_id          BIGINT PRIMARY KEY,
			ext_timestamp     BIGINT,
			min_n             DOUBLE,
			zenith            DOUBLE,
			azimuth           DOUBLE,
			d1                BOOLEAN NOT NULL DEFAULT 0,
			d2                BOOLEAN NOT NULL DEFAULT 0,
			d3                BOOLEAN NOT NULL DEFAULT 0,
			d4                BOOLEAN NOT NULL DEFAULT 0
		)`, s.Name()))
	return err
}

func (s *EventStore) AppendReconstruction(r recon.EventResult) error {
	_, err := s.db.Exec(fmt.Sprintf(
		`INSERT INTO %s (event_id, ext_timestamp, min_n, zenith, azimuth, d1, d2, d3, d4)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.Name()),
		r.EventID, int64(r.ExtTimestamp), r.MinN, r.Zenith, r.Azimuth,
		r.D[0], r.D[1], r.D[2], r.D[3],
	)
	if err != nil {
		return fmt.Errorf("insert reconstruction for event %d: %w", r.EventID, err)
	}
	return nil
}

// StoreDetectorOffsets records the offsets used by a reconstruction run so
// results stay traceable to their calibration.
func (s *EventStore) StoreDetectorOffsets(runID string, offsets recon.OffsetVector) error {
	_, err := s.db.Exec(
		`INSERT INTO detector_offsets (run_id, station, o1, o2, o3, o4) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, s.station, offsets[0], offsets[1], offsets[2], offsets[3],
	)
	if err != nil {
		return fmt.Errorf("insert detector offsets for station %d: %w", s.station, err)
	}
	return nil
}

// LatestDetectorOffsets returns the most recently stored offsets for this
// store's station, or ok=false when no run has been recorded.
func (s *EventStore) LatestDetectorOffsets() (runID string, offsets recon.OffsetVector, ok bool, err error) {
	row := s.db.QueryRow(
		`SELECT run_id, o1, o2, o3, o4 FROM detector_offsets
		WHERE station = ? ORDER BY created DESC, rowid DESC LIMIT 1`, s.station)
	if err := row.Scan(&runID, &offsets[0], &offsets[1], &offsets[2], &offsets[3]); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", recon.OffsetVector{}, false, nil
		}
		return "", recon.OffsetVector{}, false, err
	}
	return runID, offsets, true, nil
}

// Reconstructions returns this station's stored results in event order.
func (s *EventStore) Reconstructions() ([]recon.EventResult, error) {
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT event_id, ext_timestamp, min_n, zenith, azimuth, d1, d2, d3, d4
		FROM %s ORDER BY event_id`, s.Name()))
	if err != nil {
		return nil, fmt.Errorf("query reconstructions for station %d: %w", s.station, err)
	}
	defer rows.Close()

	var results []recon.EventResult
	for rows.Next() {
		var r recon.EventResult
		var ext int64
		if err := rows.Scan(
			&r.EventID, &ext, &r.MinN, &r.Zenith, &r.Azimuth,
			&r.D[0], &r.D[1], &r.D[2], &r.D[3],
		); err != nil {
			return nil, err
		}
		r.ExtTimestamp = uint64(ext)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
