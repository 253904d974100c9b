package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/internal/model"
)

//go:embed schema.sql
var schema string

// Open opens the sqlite database at path and applies the schema.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; the controller is the only heavy user
	conn.SetMaxOpenConns(1)

	if err := ApplySchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func ApplySchema(conn *sql.DB) error {
	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SeedSettings inserts the defaults unless a settings row already exists.
// Returns true when the row was created.
func SeedSettings(conn *sql.DB, mode model.Mode, p model.ControlParams) (bool, error) {
	tx, err := StartTransaction(conn)
	if err != nil {
		return false, err
	}
	defer RollbackTransaction(tx)

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM settings`).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count settings: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	_, err = tx.Exec(`INSERT INTO settings (id, operation_mode, pool_max_temperature, solar_min_temperature, hysteresis, timer_start_hour, timer_start_minute, timer_end_hour, timer_end_minute, updated_at) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(mode), p.PoolMaxTemperature, p.SolarMinTemperature, p.Hysteresis,
		p.Timer.Start.Hour, p.Timer.Start.Minute, p.Timer.End.Hour, p.Timer.End.Minute,
		time.Now().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("failed to insert settings: %w", err)
	}

	if err := CommitTransaction(tx); err != nil {
		return false, err
	}

	log.Info().Str("mode", string(mode)).Msg("Settings seeded from config defaults")
	return true, nil
}
