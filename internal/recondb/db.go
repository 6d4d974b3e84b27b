// Package recondb stores station events, coincidences and reconstruction
// results in a single sqlite file. Input tables (events, coincidences,
// coincidence_events, detector_offsets) are part of the base schema; output
// tables are created per run because their column sets depend on the station
// or cluster being reconstructed.
package recondb

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/skyfront-data/shower.report/internal/monitoring"
)

// ErrTableExists is returned when a reconstruction output table is created
// over an existing one without clearing it first.
var ErrTableExists = errors.New("table already exists")

type DB struct {
	*sql.DB

	path string
}

// NewDB opens (or creates) the sqlite database at path and ensures the base
// schema. Timestamps are stored as signed integers; extended timestamps are
// nanoseconds since the GPS epoch and fit int64 for any realistic date.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			station           INTEGER NOT NULL,
			event_id          BIGINT NOT NULL,
			timestamp         BIGINT,
			ext_timestamp     BIGINT,
			t_trigger         DOUBLE,
			t1                DOUBLE,
			t2                DOUBLE,
			t3                DOUBLE,
			t4                DOUBLE,
			n1                DOUBLE,
			n2                DOUBLE,
			n3                DOUBLE,
			n4                DOUBLE,
			PRIMARY KEY (station, event_id)
		);
		CREATE TABLE IF NOT EXISTS coincidences (
			id                BIGINT PRIMARY KEY,
			timestamp         BIGINT,
			ext_timestamp     BIGINT,
			reference_x       DOUBLE,
			reference_y       DOUBLE,
			reference_zenith  DOUBLE,
			reference_azimuth DOUBLE,
			reference_size    DOUBLE,
			reference_energy  DOUBLE
		);
		CREATE TABLE IF NOT EXISTS coincidence_events (
			coincidence_id    BIGINT NOT NULL,
			station           INTEGER NOT NULL,
			event_id          BIGINT NOT NULL,
			FOREIGN KEY(coincidence_id) REFERENCES coincidences(id)
		);
		CREATE INDEX IF NOT EXISTS coincidence_events_by_coincidence
			ON coincidence_events (coincidence_id);
		CREATE TABLE IF NOT EXISTS detector_offsets (
			run_id            TEXT NOT NULL,
			station           INTEGER NOT NULL,
			o1                DOUBLE,
			o2                DOUBLE,
			o3                DOUBLE,
			o4                DOUBLE,
			created           TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{DB: db, path: path}, nil
}

// Contains reports whether a table of the given name exists.
func (db *DB) Contains(table string) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return count > 0, nil
}

// Remove drops a table if it exists.
func (db *DB) Remove(table string) error {
	_, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", table))
	return err
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Reconstruction DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer os.Remove(backupPath)

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeFile(w, r, backupPath)
	}))
}
