package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/pool-controller/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction. Safe after commit.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func UpdateOperationMode(db *sql.DB, mode model.Mode) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if err := UpdateOperationModeWithTx(tx, mode); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

func UpdateOperationModeWithTx(tx *sql.Tx, mode model.Mode) error {
	res, err := tx.Exec(`UPDATE settings SET operation_mode = ?, updated_at = ? WHERE id = 1`, string(mode), time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("update operation mode: %w", err)
	}
	return expectOneRow(res)
}

func UpdateControlParams(db *sql.DB, p model.ControlParams) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if err := UpdateControlParamsWithTx(tx, p); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

func UpdateControlParamsWithTx(tx *sql.Tx, p model.ControlParams) error {
	res, err := tx.Exec(`UPDATE settings SET pool_max_temperature = ?, solar_min_temperature = ?, hysteresis = ?, timer_start_hour = ?, timer_start_minute = ?, timer_end_hour = ?, timer_end_minute = ?, updated_at = ? WHERE id = 1`,
		p.PoolMaxTemperature, p.SolarMinTemperature, p.Hysteresis,
		p.Timer.Start.Hour, p.Timer.Start.Minute, p.Timer.End.Hour, p.Timer.End.Minute,
		time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("update control params: %w", err)
	}
	return expectOneRow(res)
}

// InsertActuatorEvents records applied edges in one transaction.
func InsertActuatorEvents(db *sql.DB, events []ActuatorEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	for _, e := range events {
		_, err = tx.Exec(`INSERT INTO actuator_events (cycle_id, actuator, state, mode, source, changed_at) VALUES (?, ?, ?, ?, ?, ?)`,
			e.CycleID, string(e.Actuator), e.State, string(e.Mode), e.Source, e.ChangedAt.UTC().Format(eventTimeLayout))
		if err != nil {
			RollbackTransaction(tx)
			return fmt.Errorf("insert actuator event: %w", err)
		}
	}
	return CommitTransaction(tx)
}

// PruneActuatorEvents deletes events older than cutoff.
func PruneActuatorEvents(db *sql.DB, cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM actuator_events WHERE changed_at < ?`, cutoff.UTC().Format(eventTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune actuator events: %w", err)
	}
	return res.RowsAffected()
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("settings row missing (updated %d rows)", n)
	}
	return nil
}
