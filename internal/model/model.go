package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type Mode string

const (
	ModeManual    Mode = "manu"
	ModeAutomatic Mode = "auto"
	ModeBoost     Mode = "boost"
	ModeTimer     Mode = "timer"
)

// Modes lists every operation mode in a stable order.
var Modes = []Mode{ModeManual, ModeAutomatic, ModeBoost, ModeTimer}

var ErrUnknownMode = errors.New("unknown operation mode")

// ParseMode accepts the short mode names and their long forms.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manu", "manual":
		return ModeManual, nil
	case "auto", "automatic":
		return ModeAutomatic, nil
	case "boost":
		return ModeBoost, nil
	case "timer":
		return ModeTimer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

type ActuatorID string

const (
	PoolPump    ActuatorID = "pool-pump"
	SolarPump   ActuatorID = "solar-pump"
	PoolLights  ActuatorID = "pool-lights"
	PoolHeater  ActuatorID = "pool-heater"
	PoolSuction ActuatorID = "pool-suction"
	PoolReturn  ActuatorID = "pool-return"
)

// CirculationActuators are the relays that rules are allowed to drive.
var CirculationActuators = []ActuatorID{PoolPump, SolarPump}

type SensorID string

const (
	SensorPool  SensorID = "pool"
	SensorSolar SensorID = "solar"
)

// Reading is the last known value of a temperature source, in °F.
type Reading struct {
	Value     float64   `json:"value"`
	Valid     bool      `json:"valid"`
	Timestamp time.Time `json:"timestamp"`
}

// ContactState is the debounced level of a contact input such as the
// water-flow switch.
type ContactState struct {
	Open bool `json:"open"`
	// Known is false until the input has been stable for one debounce period.
	Known bool      `json:"known"`
	Since time.Time `json:"since"`
}

// Snapshot is everything a rule may look at during one cycle.
type Snapshot struct {
	Pool  Reading
	Solar Reading
	Now   time.Time
}

type ActuatorCommand struct {
	Target  ActuatorID `json:"target"`
	Desired bool       `json:"desired"`
}

type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay reads "HH:MM" in 24-hour form.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &t.Hour, &t.Minute); err != nil {
		return t, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	if !t.valid() {
		return t, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

// TimerWindow is a daily window, inclusive at both ends. A start later than
// the end wraps past midnight.
type TimerWindow struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// Contains reports whether the wall-clock time of now lies inside the window,
// at minute resolution.
func (w TimerWindow) Contains(now time.Time) bool {
	m := now.Hour()*60 + now.Minute()
	start, end := w.Start.minutes(), w.End.minutes()

	if start <= end {
		return m >= start && m <= end
	}
	return m >= start || m <= end
}

func (w TimerWindow) Validate() error {
	if !w.Start.valid() {
		return fmt.Errorf("timer start %d:%d out of range", w.Start.Hour, w.Start.Minute)
	}
	if !w.End.valid() {
		return fmt.Errorf("timer end %d:%d out of range", w.End.Hour, w.End.Minute)
	}
	return nil
}

func (w TimerWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}

var ErrInvalidParams = errors.New("invalid control parameters")

// ControlParams are shared by every rule and replaced only as a whole.
type ControlParams struct {
	PoolMaxTemperature  float64     `json:"pool_max_temperature"`
	SolarMinTemperature float64     `json:"solar_min_temperature"`
	Hysteresis          float64     `json:"hysteresis"`
	Timer               TimerWindow `json:"timer"`
}

// Validate rejects non-finite values and anything outside the settable ranges.
func (p ControlParams) Validate() error {
	check := func(name string, v, lo, hi float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not a number", ErrInvalidParams, name)
		}
		if v < lo || v > hi {
			return fmt.Errorf("%w: %s %.2f outside [%.0f, %.0f]", ErrInvalidParams, name, v, lo, hi)
		}
		return nil
	}

	if err := check("pool_max_temperature", p.PoolMaxTemperature, 0, 100); err != nil {
		return err
	}
	if err := check("solar_min_temperature", p.SolarMinTemperature, 0, 120); err != nil {
		return err
	}
	if err := check("hysteresis", p.Hysteresis, 0, 10); err != nil {
		return err
	}
	if err := p.Timer.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
