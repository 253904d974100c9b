package rules

import (
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/internal/model"
)

// Rule is one operation mode's control strategy. Evaluate must be pure: an
// empty result means "leave every actuator as it is".
type Rule interface {
	Mode() model.Mode
	Name() string
	Evaluate(snap model.Snapshot, params model.ControlParams) []model.ActuatorCommand
}

type Manual struct{}

func NewManual() *Manual { return &Manual{} }

func (*Manual) Mode() model.Mode { return model.ModeManual }
func (*Manual) Name() string     { return "manual" }

func (*Manual) Evaluate(model.Snapshot, model.ControlParams) []model.ActuatorCommand {
	return nil
}

// Automatic runs the solar pump on the solar/pool differential.
type Automatic struct {
	solarPump model.ActuatorID
}

func NewAutomatic(solarPump model.ActuatorID) *Automatic {
	return &Automatic{solarPump: solarPump}
}

func (*Automatic) Mode() model.Mode { return model.ModeAutomatic }
func (*Automatic) Name() string     { return "automatic" }

func (a *Automatic) Evaluate(snap model.Snapshot, p model.ControlParams) []model.ActuatorCommand {
	if !snap.Pool.Valid || !snap.Solar.Valid {
		log.Debug().
			Bool("pool_valid", snap.Pool.Valid).
			Bool("solar_valid", snap.Solar.Valid).
			Msg("Automatic rule holding: temperature reading invalid")
		return nil
	}

	pool := snap.Pool.Value
	solar := snap.Solar.Value
	off := []model.ActuatorCommand{{Target: a.solarPump, Desired: false}}

	// overheat protection wins over everything else
	if Decide(pool, p.PoolMaxTemperature, p.Hysteresis) == Rise {
		log.Debug().Float64("pool_temp", pool).Float64("pool_max", p.PoolMaxTemperature).Msg("Pool satisfied")
		return off
	}

	if solar < p.SolarMinTemperature {
		log.Debug().Float64("solar_temp", solar).Float64("solar_min", p.SolarMinTemperature).Msg("Solar below minimum")
		return off
	}

	if pool < p.PoolMaxTemperature && Decide(solar, pool, p.Hysteresis) == Rise {
		return []model.ActuatorCommand{{Target: a.solarPump, Desired: true}}
	}

	// off on parity, no band
	if Decide(solar, pool, 0) == Fall {
		return off
	}

	return nil
}

// Boost forces every circulation actuator on.
type Boost struct {
	targets []model.ActuatorID
}

func NewBoost(targets ...model.ActuatorID) *Boost {
	return &Boost{targets: targets}
}

func (*Boost) Mode() model.Mode { return model.ModeBoost }
func (*Boost) Name() string     { return "boost" }

func (b *Boost) Evaluate(model.Snapshot, model.ControlParams) []model.ActuatorCommand {
	return setAll(b.targets, true)
}

// Timer runs circulation only inside the configured daily window.
type Timer struct {
	targets []model.ActuatorID
}

func NewTimer(targets ...model.ActuatorID) *Timer {
	return &Timer{targets: targets}
}

func (*Timer) Mode() model.Mode { return model.ModeTimer }
func (*Timer) Name() string     { return "timer" }

func (t *Timer) Evaluate(snap model.Snapshot, p model.ControlParams) []model.ActuatorCommand {
	return setAll(t.targets, p.Timer.Contains(snap.Now))
}

func setAll(targets []model.ActuatorID, desired bool) []model.ActuatorCommand {
	cmds := make([]model.ActuatorCommand, 0, len(targets))
	for _, id := range targets {
		cmds = append(cmds, model.ActuatorCommand{Target: id, Desired: desired})
	}
	return cmds
}

// Defaults builds the four standard rules wired to the pool and solar pumps.
func Defaults() []Rule {
	return []Rule{
		NewManual(),
		NewAutomatic(model.SolarPump),
		NewBoost(model.CirculationActuators...),
		NewTimer(model.CirculationActuators...),
	}
}
