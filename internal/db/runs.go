package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id is not in the database.
var ErrRunNotFound = errors.New("run not found")

// Run is one execution of a world.
type Run struct {
	ID        uuid.UUID     `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	TimeStep  time.Duration `json:"time_step"`
	// Config is the JSON the world was built from.
	Config string `json:"config"`
}

// DeviceInfo describes a device taking part in a run.
type DeviceInfo struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Shape string    `json:"shape"`
	SizeX float64   `json:"size_x"`
	SizeY float64   `json:"size_y"`
}

// CreateRun inserts r. A nil id is replaced with a new one, which is
// returned.
func (db *DB) CreateRun(r Run) (uuid.UUID, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Config == "" {
		r.Config = "{}"
	}
	_, err := db.Exec(
		`INSERT INTO runs (run_id, started_at, time_step_ns, config_json) VALUES (?, ?, ?, ?)`,
		r.ID.String(), r.StartedAt.UTC(), int64(r.TimeStep), r.Config,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create run: %w", err)
	}
	return r.ID, nil
}

// EndRun records when a run finished.
func (db *DB) EndRun(id uuid.UUID, endedAt time.Time) error {
	res, err := db.Exec(`UPDATE runs SET ended_at = ? WHERE run_id = ?`, endedAt.UTC(), id.String())
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// AddDevice records a device as part of run.
func (db *DB) AddDevice(run uuid.UUID, d DeviceInfo) error {
	_, err := db.Exec(
		`INSERT INTO devices (run_id, device_id, name, shape, size_x, size_y) VALUES (?, ?, ?, ?, ?, ?)`,
		run.String(), d.ID.String(), d.Name, d.Shape, d.SizeX, d.SizeY,
	)
	if err != nil {
		return fmt.Errorf("add device: %w", err)
	}
	return nil
}

// Devices lists the devices of a run in the order they were added.
func (db *DB) Devices(run uuid.UUID) ([]DeviceInfo, error) {
	rows, err := db.Query(
		`SELECT device_id, name, shape, size_x, size_y FROM devices WHERE run_id = ? ORDER BY rowid`,
		run.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []DeviceInfo
	for rows.Next() {
		var d DeviceInfo
		var id string
		if err := rows.Scan(&id, &d.Name, &d.Shape, &d.SizeX, &d.SizeY); err != nil {
			return nil, err
		}
		if d.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad device id %q: %w", id, err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// GetRun returns one run.
func (db *DB) GetRun(id uuid.UUID) (*Run, error) {
	row := db.QueryRow(
		`SELECT run_id, started_at, ended_at, time_step_ns, config_json FROM runs WHERE run_id = ?`,
		id.String(),
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return r, err
}

// Runs lists every run, newest first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(
		`SELECT run_id, started_at, ended_at, time_step_ns, config_json FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recently started run.
func (db *DB) LatestRun() (*Run, error) {
	runs, err := db.Runs()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return &runs[0], nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*Run, error) {
	var (
		r     Run
		id    string
		ended sql.NullTime
		step  int64
	)
	if err := s.Scan(&id, &r.StartedAt, &ended, &step, &r.Config); err != nil {
		return nil, err
	}
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad run id %q: %w", id, err)
	}
	if ended.Valid {
		t := ended.Time
		r.EndedAt = &t
	}
	r.TimeStep = time.Duration(step)
	return &r, nil
}
