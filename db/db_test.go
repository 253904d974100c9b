package db

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/pool-controller/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	conn, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func defaultParams() model.ControlParams {
	return model.ControlParams{
		PoolMaxTemperature:  75.5,
		SolarMinTemperature: 100,
		Hysteresis:          1,
		Timer: model.TimerWindow{
			Start: model.TimeOfDay{Hour: 10, Minute: 30},
			End:   model.TimeOfDay{Hour: 17, Minute: 30},
		},
	}
}

func TestSeedSettingsOnlyOnce(t *testing.T) {
	conn := setupTestDB(t)

	created, err := SeedSettings(conn, model.ModeManual, defaultParams())
	require.NoError(t, err)
	assert.True(t, created)

	other := defaultParams()
	other.Hysteresis = 3
	created, err = SeedSettings(conn, model.ModeBoost, other)
	require.NoError(t, err)
	assert.False(t, created)

	s, err := GetSettings(conn)
	require.NoError(t, err)
	assert.Equal(t, model.ModeManual, s.Mode)
	assert.Equal(t, defaultParams(), s.Params)
	assert.WithinDuration(t, time.Now(), s.UpdatedAt, 5*time.Second)
}

func TestGetSettingsMissingRow(t *testing.T) {
	conn := setupTestDB(t)

	_, err := GetSettings(conn)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUpdateModeAndParams(t *testing.T) {
	conn := setupTestDB(t)
	_, err := SeedSettings(conn, model.ModeManual, defaultParams())
	require.NoError(t, err)

	require.NoError(t, UpdateOperationMode(conn, model.ModeTimer))
	mode, err := GetOperationMode(conn)
	require.NoError(t, err)
	assert.Equal(t, model.ModeTimer, mode)

	p := defaultParams()
	p.PoolMaxTemperature = 82
	p.Timer = model.TimerWindow{Start: model.TimeOfDay{Hour: 22}, End: model.TimeOfDay{Hour: 6}}
	require.NoError(t, UpdateControlParams(conn, p))

	s, err := GetSettings(conn)
	require.NoError(t, err)
	assert.Equal(t, p, s.Params)
	assert.Equal(t, model.ModeTimer, s.Mode)
}

func TestUpdateWithoutSeedFails(t *testing.T) {
	conn := setupTestDB(t)

	assert.Error(t, UpdateOperationMode(conn, model.ModeBoost))
	assert.Error(t, UpdateControlParams(conn, defaultParams()))
}

func TestActuatorEventsRoundTrip(t *testing.T) {
	conn := setupTestDB(t)
	base := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, InsertActuatorEvents(conn, []ActuatorEvent{
		{CycleID: "a", Actuator: model.SolarPump, State: true, Mode: model.ModeAutomatic, Source: "cycle", ChangedAt: base},
		{CycleID: "b", Actuator: model.SolarPump, State: false, Mode: model.ModeAutomatic, Source: "cycle", ChangedAt: base.Add(time.Hour)},
		{CycleID: "c", Actuator: model.PoolLights, State: true, Mode: model.ModeManual, Source: "api", ChangedAt: base.Add(2 * time.Hour)},
	}))

	events, err := GetRecentActuatorEvents(conn, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.PoolLights, events[0].Actuator)
	assert.Equal(t, "api", events[0].Source)
	assert.True(t, events[0].ChangedAt.Equal(base.Add(2*time.Hour)))
	assert.False(t, events[1].State)

	n, err := PruneActuatorEvents(conn, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	events, err = GetRecentActuatorEvents(conn, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestInsertNoEvents(t *testing.T) {
	conn := setupTestDB(t)
	assert.NoError(t, InsertActuatorEvents(conn, nil))
}
