package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/robosim/internal/geom"
	"github.com/banshee-data/robosim/internal/position"
)

// Sample is a device's state at one step of a run.
type Sample struct {
	DeviceID uuid.UUID     `json:"device_id"`
	SimTime  time.Duration `json:"sim_time"`
	Cycles   uint64        `json:"cycles"`
	Pose     geom.Pose     `json:"pose"`
	Odometry geom.Pose     `json:"odometry"`
	Speed    float64       `json:"speed"`
	TurnRate float64       `json:"turn_rate"`
	Stall    bool          `json:"stall"`
}

// SampleFromState converts a device state taken at simulated time now.
func SampleFromState(now time.Duration, s position.State) Sample {
	return Sample{
		DeviceID: s.ID,
		SimTime:  now,
		Cycles:   s.Cycles,
		Pose:     s.Pose,
		Odometry: s.Odometry,
		Speed:    s.Command.Speed,
		TurnRate: s.Command.TurnRate,
		Stall:    s.Stall,
	}
}

// RecordSamples inserts samples for run in one transaction.
func (db *DB) RecordSamples(run uuid.UUID, samples []Sample) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO samples (
		run_id, device_id, sim_time_ns, cycles, x, y, theta,
		odo_x, odo_y, odo_theta, speed, turn_rate, stall
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		stall := 0
		if s.Stall {
			stall = 1
		}
		if _, err := stmt.Exec(
			run.String(), s.DeviceID.String(), int64(s.SimTime), int64(s.Cycles),
			s.Pose.X, s.Pose.Y, s.Pose.Theta,
			s.Odometry.X, s.Odometry.Y, s.Odometry.Theta,
			s.Speed, s.TurnRate, stall,
		); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// Samples returns the samples of one device in a run in time order.
func (db *DB) Samples(run, device uuid.UUID) ([]Sample, error) {
	rows, err := db.Query(`SELECT sim_time_ns, cycles, x, y, theta, odo_x, odo_y, odo_theta, speed, turn_rate, stall
		FROM samples WHERE run_id = ? AND device_id = ? ORDER BY sim_time_ns`,
		run.String(), device.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		s := Sample{DeviceID: device}
		var simTime, cycles int64
		var stall int
		if err := rows.Scan(&simTime, &cycles,
			&s.Pose.X, &s.Pose.Y, &s.Pose.Theta,
			&s.Odometry.X, &s.Odometry.Y, &s.Odometry.Theta,
			&s.Speed, &s.TurnRate, &stall,
		); err != nil {
			return nil, err
		}
		s.SimTime = time.Duration(simTime)
		s.Cycles = uint64(cycles)
		s.Stall = stall != 0
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// SampleCount returns the number of samples stored for all runs.
func (db *DB) SampleCount() (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM samples`).Scan(&n)
	return n, err
}
