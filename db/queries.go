package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/pool-controller/internal/model"
)

// fixed width so changed_at sorts lexicographically
const eventTimeLayout = "2006-01-02T15:04:05.000000Z"

type Settings struct {
	Mode      model.Mode
	Params    model.ControlParams
	UpdatedAt time.Time
}

type ActuatorEvent struct {
	ID        int64            `json:"id"`
	CycleID   string           `json:"cycle_id"`
	Actuator  model.ActuatorID `json:"actuator"`
	State     bool             `json:"state"`
	Mode      model.Mode       `json:"mode"`
	Source    string           `json:"source"`
	ChangedAt time.Time        `json:"changed_at"`
}

// GetSettings retrieves the persisted operation mode and control parameters.
func GetSettings(db *sql.DB) (Settings, error) {
	var s Settings
	var mode, updatedAt string
	p := &s.Params

	err := db.QueryRow(`SELECT operation_mode, pool_max_temperature, solar_min_temperature, hysteresis, timer_start_hour, timer_start_minute, timer_end_hour, timer_end_minute, updated_at FROM settings WHERE id = 1`).
		Scan(&mode, &p.PoolMaxTemperature, &p.SolarMinTemperature, &p.Hysteresis,
			&p.Timer.Start.Hour, &p.Timer.Start.Minute, &p.Timer.End.Hour, &p.Timer.End.Minute, &updatedAt)
	if err != nil {
		return s, fmt.Errorf("failed to get settings: %w", err)
	}
	s.Mode = model.Mode(mode)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return s, nil
}

// GetOperationMode retrieves only the persisted mode.
func GetOperationMode(db *sql.DB) (model.Mode, error) {
	var mode string
	if err := db.QueryRow(`SELECT operation_mode FROM settings WHERE id = 1`).Scan(&mode); err != nil {
		return model.ModeManual, fmt.Errorf("failed to get operation mode: %w", err)
	}
	return model.Mode(mode), nil
}

// GetRecentActuatorEvents returns up to limit events, newest first.
func GetRecentActuatorEvents(db *sql.DB, limit int) ([]ActuatorEvent, error) {
	rows, err := db.Query(`SELECT id, cycle_id, actuator, state, mode, source, changed_at FROM actuator_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query actuator events: %w", err)
	}
	defer rows.Close()

	var events []ActuatorEvent
	for rows.Next() {
		var e ActuatorEvent
		var actuator, mode, changedAt string
		if err := rows.Scan(&e.ID, &e.CycleID, &actuator, &e.State, &mode, &e.Source, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan actuator event: %w", err)
		}
		e.Actuator = model.ActuatorID(actuator)
		e.Mode = model.Mode(mode)
		e.ChangedAt, _ = time.Parse(eventTimeLayout, changedAt)
		events = append(events, e)
	}
	return events, rows.Err()
}
