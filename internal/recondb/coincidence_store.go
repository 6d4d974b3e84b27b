package recondb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skyfront-data/shower.report/internal/recon"
)

const coincidenceTable = "coincidence_reconstructions"

// CoincidenceStore reads stored coincidences and persists multi-station
// reconstruction results. The output table carries one participation column
// per cluster station (s501, s502, ...), so its schema is generated from the
// cluster's station set at creation time.
type CoincidenceStore struct {
	db *DB
}

func NewCoincidenceStore(db *DB) *CoincidenceStore {
	return &CoincidenceStore{db: db}
}

func (s *CoincidenceStore) Name() string {
	return coincidenceTable
}

// AddCoincidence inserts a coincidence and links it to the participating
// station events, which must already be stored.
func (s *CoincidenceStore) AddCoincidence(c recon.Coincidence, events []recon.StationEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO coincidences (
			id, timestamp, ext_timestamp,
			reference_x, reference_y, reference_zenith, reference_azimuth,
			reference_size, reference_energy
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Timestamp, int64(c.ExtTimestamp),
		c.ReferenceX, c.ReferenceY, c.ReferenceZenith, c.ReferenceAzimuth,
		c.ReferenceSize, c.ReferenceEnergy,
	)
	if err != nil {
		return fmt.Errorf("insert coincidence %d: %w", c.ID, err)
	}
	for _, ev := range events {
		_, err := s.db.Exec(
			`INSERT INTO coincidence_events (coincidence_id, station, event_id) VALUES (?, ?, ?)`,
			c.ID, ev.StationNumber, ev.EventID,
		)
		if err != nil {
			return fmt.Errorf("link coincidence %d to station %d event %d: %w",
				c.ID, ev.StationNumber, ev.EventID, err)
		}
	}
	return nil
}

// AllCoincidences returns every stored coincidence in id order.
func (s *CoincidenceStore) AllCoincidences() ([]recon.Coincidence, error) {
	return s.queryCoincidences(
		`SELECT id, timestamp, ext_timestamp,
			reference_x, reference_y, reference_zenith, reference_azimuth,
			reference_size, reference_energy
		FROM coincidences ORDER BY id`)
}

// CoincidencesBetween returns the coincidences with an event from every one
// of the given stations.
func (s *CoincidenceStore) CoincidencesBetween(stationNumbers []int) ([]recon.Coincidence, error) {
	if len(stationNumbers) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT c.id, c.timestamp, c.ext_timestamp,
			c.reference_x, c.reference_y, c.reference_zenith, c.reference_azimuth,
			c.reference_size, c.reference_energy
		FROM coincidences c
		WHERE c.id IN (
			SELECT coincidence_id FROM coincidence_events
			WHERE station IN (%s)
			GROUP BY coincidence_id
			HAVING COUNT(DISTINCT station) = %d
		)
		ORDER BY c.id`,
		placeholders(len(stationNumbers)), len(stationNumbers))
	return s.queryCoincidences(query, intArgs(stationNumbers)...)
}

func (s *CoincidenceStore) queryCoincidences(query string, args ...any) ([]recon.Coincidence, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query coincidences: %w", err)
	}
	defer rows.Close()

	var out []recon.Coincidence
	for rows.Next() {
		var c recon.Coincidence
		var ext int64
		if err := rows.Scan(
			&c.ID, &c.Timestamp, &ext,
			&c.ReferenceX, &c.ReferenceY, &c.ReferenceZenith, &c.ReferenceAzimuth,
			&c.ReferenceSize, &c.ReferenceEnergy,
		); err != nil {
			return nil, err
		}
		c.ExtTimestamp = uint64(ext)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// AllEvents returns the station events of each coincidence, one group per
// coincidence, in the same order as the input.
func (s *CoincidenceStore) AllEvents(coincidences []recon.Coincidence) ([][]recon.StationEvent, error) {
	return s.eventGroups(coincidences, nil)
}

// EventsFromStations is AllEvents restricted to the given stations.
func (s *CoincidenceStore) EventsFromStations(coincidences []recon.Coincidence, stationNumbers []int) ([][]recon.StationEvent, error) {
	return s.eventGroups(coincidences, stationNumbers)
}

func (s *CoincidenceStore) eventGroups(coincidences []recon.Coincidence, stationNumbers []int) ([][]recon.StationEvent, error) {
	query := `SELECT ce.station, e.event_id, e.timestamp, e.ext_timestamp, e.t_trigger,
			e.t1, e.t2, e.t3, e.t4, e.n1, e.n2, e.n3, e.n4
		FROM coincidence_events ce
		JOIN events e ON e.station = ce.station AND e.event_id = ce.event_id
		WHERE ce.coincidence_id = ?`
	var extra []any
	if len(stationNumbers) > 0 {
		query += fmt.Sprintf(" AND ce.station IN (%s)", placeholders(len(stationNumbers)))
		extra = intArgs(stationNumbers)
	}
	query += " ORDER BY ce.station"

	groups := make([][]recon.StationEvent, len(coincidences))
	for i, c := range coincidences {
		args := append([]any{c.ID}, extra...)
		rows, err := s.db.Query(query, args...)
		if err != nil {
			return nil, fmt.Errorf("query events for coincidence %d: %w", c.ID, err)
		}
		for rows.Next() {
			var ev recon.StationEvent
			var ext int64
			if err := rows.Scan(
				&ev.StationNumber, &ev.EventID, &ev.Timestamp, &ext, &ev.TTrigger,
				&ev.T[0], &ev.T[1], &ev.T[2], &ev.T[3],
				&ev.N[0], &ev.N[1], &ev.N[2], &ev.N[3],
			); err != nil {
				rows.Close()
				return nil, err
			}
			ev.ExtTimestamp = uint64(ext)
			groups[i] = append(groups[i], ev)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return groups, nil
}

func (s *CoincidenceStore) HasReconstructions() (bool, error) {
	return s.db.Contains(coincidenceTable)
}

func (s *CoincidenceStore) ClearReconstructions() error {
	return s.db.Remove(coincidenceTable)
}

// CreateReconstructions creates the output table with one participation
// column per station.
func (s *CoincidenceStore) CreateReconstructions(stationNumbers []int) error {
	exists, err := s.db.Contains(coincidenceTable)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrTableExists, coincidenceTable)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `CREATE TABLE %s (
		id                BIGINT PRIMARY KEY,
		ext_timestamp     BIGINT,
		zenith            DOUBLE,
		azimuth           DOUBLE,
		reference_x       DOUBLE,
		reference_y       DOUBLE,
		reference_zenith  DOUBLE,
		reference_azimuth DOUBLE,
		reference_size    DOUBLE,
		reference_energy  DOUBLE`, coincidenceTable)
	for _, n := range stationNumbers {
		fmt.Fprintf(&b, ",\n\t\ts%d BOOLEAN NOT NULL DEFAULT 0", n)
	}
	b.WriteString("\n\t)")

	_, err = s.db.Exec(b.String())
	return err
}

func (s *CoincidenceStore) AppendReconstruction(r recon.CoincidenceResult) error {
	columns := []string{
		"id", "ext_timestamp", "zenith", "azimuth",
		"reference_x", "reference_y", "reference_zenith", "reference_azimuth",
		"reference_size", "reference_energy",
	}
	args := []any{
		r.CoincidenceID, int64(r.ExtTimestamp), r.Zenith, r.Azimuth,
		r.ReferenceX, r.ReferenceY, r.ReferenceZenith, r.ReferenceAzimuth,
		r.ReferenceSize, r.ReferenceEnergy,
	}
	for _, n := range r.StationNumbers {
		columns = append(columns, fmt.Sprintf("s%d", n))
		args = append(args, true)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		coincidenceTable, strings.Join(columns, ", "), placeholders(len(columns)))
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("insert reconstruction for coincidence %d: %w", r.CoincidenceID, err)
	}
	return nil
}

// Reconstructions returns the stored results in id order. Participation
// flags are read back through the table's generated column set.
func (s *CoincidenceStore) Reconstructions() ([]recon.CoincidenceResult, error) {
	stations, err := s.participationColumns()
	if err != nil {
		return nil, err
	}

	columns := []string{
		"id", "ext_timestamp", "zenith", "azimuth",
		"reference_x", "reference_y", "reference_zenith", "reference_azimuth",
		"reference_size", "reference_energy",
	}
	for _, n := range stations {
		columns = append(columns, fmt.Sprintf("s%d", n))
	}

	rows, err := s.db.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY id",
		strings.Join(columns, ", "), coincidenceTable))
	if err != nil {
		return nil, fmt.Errorf("query coincidence reconstructions: %w", err)
	}
	defer rows.Close()

	var results []recon.CoincidenceResult
	for rows.Next() {
		var r recon.CoincidenceResult
		var ext int64
		flags := make([]bool, len(stations))
		dest := []any{
			&r.CoincidenceID, &ext, &r.Zenith, &r.Azimuth,
			&r.ReferenceX, &r.ReferenceY, &r.ReferenceZenith, &r.ReferenceAzimuth,
			&r.ReferenceSize, &r.ReferenceEnergy,
		}
		for i := range flags {
			dest = append(dest, &flags[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		r.ExtTimestamp = uint64(ext)
		for i, set := range flags {
			if set {
				r.StationNumbers = append(r.StationNumbers, stations[i])
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// participationColumns reads the s<number> columns back out of the output
// table schema, ascending.
func (s *CoincidenceStore) participationColumns() ([]int, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", coincidenceTable))
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", coincidenceTable, err)
	}
	defer rows.Close()

	var stations []int
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		if !strings.HasPrefix(name, "s") {
			continue
		}
		if n, err := strconv.Atoi(name[1:]); err == nil {
			stations = append(stations, n)
		}
	}
	return stations, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func intArgs(ns []int) []any {
	args := make([]any, len(ns))
	for i, n := range ns {
		args[i] = n
	}
	return args
}
