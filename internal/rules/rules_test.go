package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/pool-controller/internal/model"
)

func params() model.ControlParams {
	return model.ControlParams{
		PoolMaxTemperature:  75,
		SolarMinTemperature: 60,
		Hysteresis:          1,
		Timer: model.TimerWindow{
			Start: model.TimeOfDay{Hour: 10, Minute: 30},
			End:   model.TimeOfDay{Hour: 17, Minute: 30},
		},
	}
}

func snapshot(pool, solar float64) model.Snapshot {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	return model.Snapshot{
		Pool:  model.Reading{Value: pool, Valid: true, Timestamp: now},
		Solar: model.Reading{Value: solar, Valid: true, Timestamp: now},
		Now:   now,
	}
}

func solarCmd(on bool) []model.ActuatorCommand {
	return []model.ActuatorCommand{{Target: model.SolarPump, Desired: on}}
}

func TestManualProducesNothing(t *testing.T) {
	r := NewManual()
	assert.Empty(t, r.Evaluate(snapshot(70, 90), params()))
	assert.Equal(t, model.ModeManual, r.Mode())
}

func TestAutomatic(t *testing.T) {
	tests := []struct {
		name     string
		pool     float64
		solar    float64
		expected []model.ActuatorCommand
	}{
		{"solar clearly warmer", 70, 80, solarCmd(true)},
		{"pool over max plus band", 76, 95, solarCmd(false)},
		{"pool in max band does not start", 75.5, 95, nil},
		{"solar below minimum", 50, 59, solarCmd(false)},
		{"solar inside differential band", 70, 70.5, nil},
		{"solar equals pool holds", 70, 70, nil},
		{"solar below pool", 70, 69.9, solarCmd(false)},
		{"differential exactly hysteresis", 70, 71, solarCmd(true)},
	}

	r := NewAutomatic(model.SolarPump)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, r.Evaluate(snapshot(tc.pool, tc.solar), params()))
		})
	}
}

func TestAutomaticSafetyOverrideSequence(t *testing.T) {
	r := NewAutomatic(model.SolarPump)
	p := params()

	assert.Equal(t, solarCmd(true), r.Evaluate(snapshot(70, 80), p))
	assert.Equal(t, solarCmd(false), r.Evaluate(snapshot(76, 80), p))
	assert.Equal(t, solarCmd(false), r.Evaluate(snapshot(76, 120), p))
}

func TestAutomaticHoldsOnInvalidReading(t *testing.T) {
	r := NewAutomatic(model.SolarPump)

	s := snapshot(70, 80)
	s.Pool.Valid = false
	assert.Empty(t, r.Evaluate(s, params()))

	s = snapshot(80, 80)
	s.Solar.Valid = false
	assert.Empty(t, r.Evaluate(s, params()))
}

func TestBoostIgnoresTemperature(t *testing.T) {
	r := NewBoost(model.PoolPump, model.SolarPump)
	s := snapshot(0, 0)
	s.Pool.Valid = false

	assert.Equal(t, []model.ActuatorCommand{
		{Target: model.PoolPump, Desired: true},
		{Target: model.SolarPump, Desired: true},
	}, r.Evaluate(s, params()))
}

func TestTimer(t *testing.T) {
	r := NewTimer(model.PoolPump, model.SolarPump)

	tests := []struct {
		hour, minute int
		on           bool
	}{
		{10, 29, false},
		{10, 30, true},
		{14, 0, true},
		{17, 30, true},
		{17, 31, false},
		{2, 0, false},
	}

	for _, tc := range tests {
		s := snapshot(70, 70)
		s.Now = time.Date(2024, 7, 1, tc.hour, tc.minute, 0, 0, time.UTC)
		s.Pool.Valid = false

		cmds := r.Evaluate(s, params())
		assert.Len(t, cmds, 2)
		for _, c := range cmds {
			assert.Equal(t, tc.on, c.Desired, "%02d:%02d %s", tc.hour, tc.minute, c.Target)
		}
	}
}

func TestDefaultsCoverEveryMode(t *testing.T) {
	seen := map[model.Mode]bool{}
	for _, r := range Defaults() {
		seen[r.Mode()] = true
		assert.NotEmpty(t, r.Name())
	}
	for _, m := range model.Modes {
		assert.True(t, seen[m], string(m))
	}
}
