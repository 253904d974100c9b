package modecontroller

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/internal/model"
	"github.com/thatsimonsguy/pool-controller/internal/rules"
)

var (
	ErrModeNotRegistered = errors.New("operation mode has no registered rule")
	ErrUnknownActuator   = errors.New("unknown actuator")
)

// TemperatureSource returns the last known reading without blocking.
type TemperatureSource interface {
	Read() model.Reading
}

// Actuator is a relay or other on/off output. Set must not block on slow I/O.
type Actuator interface {
	Set(on bool) error
}

type Options struct {
	Mode      model.Mode
	Params    model.ControlParams
	Sources   map[model.SensorID]TemperatureSource
	Actuators map[model.ActuatorID]Actuator
	Rules     []rules.Rule
}

// Controller owns the rules and the shared parameters and applies the active
// rule once per RunCycle. All methods are safe for concurrent use; cycles are
// serialised by a single mutex.
type Controller struct {
	mu sync.Mutex

	mode          model.Mode
	rules         map[model.Mode]rules.Rule
	params        model.ControlParams
	sources       map[model.SensorID]TemperatureSource
	actuators     map[model.ActuatorID]Actuator
	lastCommanded map[model.ActuatorID]bool
	lastCycle     time.Time
	lastReadings  map[model.SensorID]model.Reading
}

type CycleResult struct {
	Mode     model.Mode
	Snapshot model.Snapshot
	// Readings holds every configured sensor, not only the two rules use.
	Readings map[model.SensorID]model.Reading
	Applied  []model.ActuatorCommand
	Failed   []model.ActuatorCommand
	// Held is true when the active rule returned no commands.
	Held bool
}

type Status struct {
	Mode          model.Mode                       `json:"mode"`
	Params        model.ControlParams              `json:"params"`
	LastCommanded map[model.ActuatorID]bool        `json:"last_commanded"`
	LastCycle     time.Time                        `json:"last_cycle"`
	Readings      map[model.SensorID]model.Reading `json:"readings"`
	Contacts      map[string]model.ContactState    `json:"contacts,omitempty"`
}

// New builds a controller and registers opts.Rules. Invalid initial mode or
// params are an assembly error and are returned rather than silently fixed.
func New(opts Options) (*Controller, error) {
	c := &Controller{
		rules:         make(map[model.Mode]rules.Rule),
		sources:       opts.Sources,
		actuators:     opts.Actuators,
		lastCommanded: make(map[model.ActuatorID]bool),
	}
	if c.sources == nil {
		c.sources = map[model.SensorID]TemperatureSource{}
	}
	if c.actuators == nil {
		c.actuators = map[model.ActuatorID]Actuator{}
	}

	for _, r := range opts.Rules {
		if err := c.Register(r); err != nil {
			return nil, err
		}
	}
	if err := c.SetParams(opts.Params); err != nil {
		return nil, err
	}
	if err := c.SetMode(opts.Mode); err != nil {
		return nil, err
	}
	return c, nil
}

// Register adds a rule for its mode. Commands may only target actuators the
// controller knows about, which is checked when the rule runs.
func (c *Controller) Register(r rules.Rule) error {
	if r == nil {
		return errors.New("nil rule")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.rules[r.Mode()]; exists {
		return fmt.Errorf("rule for mode %s already registered", r.Mode())
	}
	c.rules[r.Mode()] = r
	return nil
}

// SetMode selects the rule for the next cycle. It never evaluates.
func (c *Controller) SetMode(requested model.Mode) error {
	mode, err := model.ParseMode(string(requested))
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rules[mode]; !ok {
		return fmt.Errorf("%w: %s", ErrModeNotRegistered, mode)
	}
	if c.mode != mode {
		log.Info().Str("from", string(c.mode)).Str("to", string(mode)).Msg("Operation mode changed")
	}
	c.mode = mode
	return nil
}

// SetParams replaces all parameters at once or not at all.
func (c *Controller) SetParams(p model.ControlParams) error {
	if err := p.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.params != p {
		log.Info().
			Float64("pool_max", p.PoolMaxTemperature).
			Float64("solar_min", p.SolarMinTemperature).
			Float64("hysteresis", p.Hysteresis).
			Str("timer", p.Timer.String()).
			Msg("Control parameters updated")
	}
	c.params = p
	return nil
}

func (c *Controller) ActiveMode() model.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) Params() model.ControlParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// LastCommanded returns a copy of the last state sent to each actuator.
func (c *Controller) LastCommanded() map[model.ActuatorID]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLastCommanded()
}

func (c *Controller) copyLastCommanded() map[model.ActuatorID]bool {
	out := make(map[model.ActuatorID]bool, len(c.lastCommanded))
	for k, v := range c.lastCommanded {
		out[k] = v
	}
	return out
}

// RunCycle snapshots every source, evaluates the active rule, and drives only
// the actuators whose desired state differs from what was last commanded.
func (c *Controller) RunCycle(now time.Time) CycleResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	readings := make(map[model.SensorID]model.Reading, len(c.sources)+2)
	for id := range c.sources {
		readings[id] = c.read(id)
	}
	for _, id := range []model.SensorID{model.SensorPool, model.SensorSolar} {
		if _, ok := readings[id]; !ok {
			readings[id] = model.Reading{}
		}
	}

	snap := model.Snapshot{
		Pool:  readings[model.SensorPool],
		Solar: readings[model.SensorSolar],
		Now:   now,
	}
	c.lastReadings = readings
	c.lastCycle = now

	result := CycleResult{Mode: c.mode, Snapshot: snap, Readings: copyReadings(readings)}

	rule, ok := c.rules[c.mode]
	if !ok {
		// unreachable through SetMode, kept so a zero Controller cannot panic
		result.Held = true
		return result
	}

	cmds := rule.Evaluate(snap, c.params)

	log.Debug().
		Str("mode", string(c.mode)).
		Float64("pool_temp", snap.Pool.Value).
		Bool("pool_valid", snap.Pool.Valid).
		Float64("solar_temp", snap.Solar.Value).
		Bool("solar_valid", snap.Solar.Valid).
		Int("commands", len(cmds)).
		Msg("Evaluated operation mode rule")

	if len(cmds) == 0 {
		result.Held = true
		return result
	}

	for _, cmd := range cmds {
		last, known := c.lastCommanded[cmd.Target]
		if known && last == cmd.Desired {
			continue
		}
		if err := c.drive(cmd); err != nil {
			log.Warn().Err(err).Str("actuator", string(cmd.Target)).Bool("desired", cmd.Desired).Msg("Actuator command failed")
			result.Failed = append(result.Failed, cmd)
			continue
		}
		result.Applied = append(result.Applied, cmd)
	}

	return result
}

// SetActuator is the manual path: drive one actuator directly, regardless of
// the active mode.
func (c *Controller) SetActuator(id model.ActuatorID, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drive(model.ActuatorCommand{Target: id, Desired: on})
}

func (c *Controller) drive(cmd model.ActuatorCommand) error {
	act, ok := c.actuators[cmd.Target]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownActuator, cmd.Target)
	}
	if err := act.Set(cmd.Desired); err != nil {
		return fmt.Errorf("set %s to %v: %w", cmd.Target, cmd.Desired, err)
	}
	c.lastCommanded[cmd.Target] = cmd.Desired
	log.Info().Str("actuator", string(cmd.Target)).Bool("on", cmd.Desired).Str("mode", string(c.mode)).Msg("Actuator switched")
	return nil
}

func (c *Controller) read(id model.SensorID) model.Reading {
	src, ok := c.sources[id]
	if !ok || src == nil {
		return model.Reading{}
	}
	return src.Read()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Mode:          c.mode,
		Params:        c.params,
		LastCommanded: c.copyLastCommanded(),
		LastCycle:     c.lastCycle,
		Readings:      c.statusReadings(),
	}
}

func (c *Controller) statusReadings() map[model.SensorID]model.Reading {
	if c.lastReadings == nil {
		return map[model.SensorID]model.Reading{
			model.SensorPool:  {},
			model.SensorSolar: {},
		}
	}
	return copyReadings(c.lastReadings)
}

func copyReadings(in map[model.SensorID]model.Reading) map[model.SensorID]model.Reading {
	out := make(map[model.SensorID]model.Reading, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Actuators lists the ids the controller can drive, sorted.
func (c *Controller) Actuators() []model.ActuatorID {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]model.ActuatorID, 0, len(c.actuators))
	for id := range c.actuators {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
