package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2024, 6, 1, h, m, 0, 0, time.UTC)
}

func TestTimerWindowBoundaries(t *testing.T) {
	w := TimerWindow{Start: TimeOfDay{10, 30}, End: TimeOfDay{17, 30}}

	assert.True(t, w.Contains(at(10, 30)))
	assert.True(t, w.Contains(at(17, 30)))
	assert.False(t, w.Contains(at(10, 29)))
	assert.False(t, w.Contains(at(17, 31)))
	assert.True(t, w.Contains(at(12, 0)))
}

func TestTimerWindowWrapsMidnight(t *testing.T) {
	w := TimerWindow{Start: TimeOfDay{22, 0}, End: TimeOfDay{6, 0}}

	assert.True(t, w.Contains(at(23, 0)))
	assert.True(t, w.Contains(at(0, 0)))
	assert.True(t, w.Contains(at(6, 0)))
	assert.True(t, w.Contains(at(22, 0)))
	assert.False(t, w.Contains(at(12, 0)))
	assert.False(t, w.Contains(at(6, 1)))
	assert.False(t, w.Contains(at(21, 59)))
}

func TestTimerWindowCoverage(t *testing.T) {
	tests := []struct {
		name     string
		window   TimerWindow
		expected int
	}{
		{"daytime", TimerWindow{TimeOfDay{10, 30}, TimeOfDay{17, 30}}, 7*60 + 1},
		{"single minute", TimerWindow{TimeOfDay{8, 0}, TimeOfDay{8, 0}}, 1},
		{"overnight", TimerWindow{TimeOfDay{22, 0}, TimeOfDay{6, 0}}, 8*60 + 1},
		{"whole day", TimerWindow{TimeOfDay{0, 0}, TimeOfDay{23, 59}}, 24 * 60},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			base := at(0, 0)
			count := 0
			for i := 0; i < 24*60; i++ {
				now := base.Add(time.Duration(i) * time.Minute)
				in := tc.window.Contains(now)
				if in {
					count++
				}
				// same wall-clock minute one day later
				assert.Equal(t, in, tc.window.Contains(now.AddDate(0, 0, 1)))
			}
			assert.Equal(t, tc.expected, count)
		})
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"manu": ModeManual, "Manual": ModeManual,
		"auto": ModeAutomatic, "automatic": ModeAutomatic,
		"boost": ModeBoost, " timer ": ModeTimer,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("turbo")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func validParams() ControlParams {
	return ControlParams{
		PoolMaxTemperature:  75.5,
		SolarMinTemperature: 100,
		Hysteresis:          1,
		Timer:               TimerWindow{TimeOfDay{10, 30}, TimeOfDay{17, 30}},
	}
}

func TestControlParamsValidate(t *testing.T) {
	require.NoError(t, validParams().Validate())

	tests := []struct {
		name   string
		mutate func(p *ControlParams)
	}{
		{"negative hysteresis", func(p *ControlParams) { p.Hysteresis = -0.5 }},
		{"hysteresis too wide", func(p *ControlParams) { p.Hysteresis = 11 }},
		{"nan pool max", func(p *ControlParams) { p.PoolMaxTemperature = math.NaN() }},
		{"solar min too high", func(p *ControlParams) { p.SolarMinTemperature = 130 }},
		{"start hour", func(p *ControlParams) { p.Timer.Start.Hour = 24 }},
		{"end minute", func(p *ControlParams) { p.Timer.End.Minute = 60 }},
		{"negative minute", func(p *ControlParams) { p.Timer.Start.Minute = -1 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
		})
	}
}

func TestZeroHysteresisIsValid(t *testing.T) {
	p := validParams()
	p.Hysteresis = 0
	assert.NoError(t, p.Validate())
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("07:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 7, Minute: 5}, got)

	got, err = ParseTimeOfDay(" 23:59 ")
	require.NoError(t, err)
	assert.Equal(t, "23:59", got.String())

	for _, bad := range []string{"", "noon", "24:00", "12:60", "-1:00"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}
