package modecontroller

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/db"
	"github.com/thatsimonsguy/pool-controller/internal/datadog"
	"github.com/thatsimonsguy/pool-controller/internal/model"
	"github.com/thatsimonsguy/pool-controller/internal/mqtt"
)

const pruneEvery = time.Hour

// ContactSource reports the debounced state of contact inputs.
type ContactSource interface {
	States() map[string]model.ContactState
}

type RunnerOptions struct {
	// DB holds the persisted settings and actuation history. Optional.
	DB *sql.DB
	// Publisher receives status and actuator edges. Optional.
	Publisher mqtt.Publisher
	Interval  time.Duration
	// Retention bounds the actuation history; zero keeps everything.
	Retention time.Duration
	// Contacts adds contact inputs to the status. Optional.
	Contacts ContactSource
}

// Runner drives the controller on a fixed interval and fans each cycle out
// to the settings store, actuation history, metrics and MQTT. It is also the
// write path for mode, parameter and relay changes coming from the API and
// MQTT, so every change is persisted before the next cycle sees it.
type Runner struct {
	// mu serialises cycles with mode, parameter and relay writes so a cycle
	// never reloads settings while a write is between controller and store.
	mu sync.Mutex

	ctrl      *Controller
	db        *sql.DB
	publisher mqtt.Publisher
	contacts  ContactSource
	interval  time.Duration
	retention time.Duration

	newCycleID func() string
	saveMode   func(*sql.DB, model.Mode) error
	saveParams func(*sql.DB, model.ControlParams) error
	lastPrune  time.Time
}

func NewRunner(ctrl *Controller, opts RunnerOptions) *Runner {
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Runner{
		ctrl:       ctrl,
		db:         opts.DB,
		publisher:  opts.Publisher,
		interval:   interval,
		retention:  opts.Retention,
		contacts:   opts.Contacts,
		newCycleID: uuid.NewString,
		saveMode:   db.UpdateOperationMode,
		saveParams: db.UpdateControlParams,
	}
}

// Run ticks immediately and then once per interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	log.Info().Dur("interval", r.interval).Str("mode", string(r.ctrl.ActiveMode())).Msg("Starting operation mode loop")

	r.Tick(time.Now())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Operation mode loop stopped")
			return
		case now := <-ticker.C:
			r.Tick(now)
		}
	}
}

// Tick runs exactly one cycle.
func (r *Runner) Tick(now time.Time) CycleResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.syncSettings()

	res := r.ctrl.RunCycle(now)

	if len(res.Applied) > 0 {
		cycleID := r.newCycleID()
		r.recordEdges(cycleID, res.Mode, "cycle", res.Applied, now)
	}
	if res.Held {
		log.Debug().Str("mode", string(res.Mode)).Msg("Rule held, no actuator changes")
	}

	r.emitMetrics(res)
	r.publishTemperatures(res)
	r.publishStatus()
	r.prune(now)
	return res
}

// syncSettings pulls mode and params from the store so out-of-process
// writers (the debug CLI) reach the running loop.
func (r *Runner) syncSettings() {
	if r.db == nil {
		return
	}
	s, err := db.GetSettings(r.db)
	if err != nil {
		log.Warn().Err(err).Msg("Could not load settings, keeping current")
		return
	}

	if s.Mode != r.ctrl.ActiveMode() {
		if err := r.ctrl.SetMode(s.Mode); err != nil {
			log.Warn().Err(err).Str("mode", string(s.Mode)).Msg("Ignoring stored operation mode")
		}
	}
	if s.Params != r.ctrl.Params() {
		if err := r.ctrl.SetParams(s.Params); err != nil {
			log.Warn().Err(err).Msg("Ignoring stored control parameters")
		}
	}
}

// SetMode validates and applies mode, then persists it. A failed write
// restores the previous mode.
func (r *Runner) SetMode(mode model.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.ctrl.ActiveMode()
	if err := r.ctrl.SetMode(mode); err != nil {
		return err
	}
	if r.db == nil {
		return nil
	}
	if err := r.saveMode(r.db, r.ctrl.ActiveMode()); err != nil {
		if rbErr := r.ctrl.SetMode(prev); rbErr != nil {
			log.Error().Err(rbErr).Str("mode", string(prev)).Msg("Failed to restore operation mode")
		}
		return fmt.Errorf("persist operation mode: %w", err)
	}
	r.publishStatus()
	return nil
}

func (r *Runner) Params() model.ControlParams {
	return r.ctrl.Params()
}

// SetParams validates and applies p, then persists it.
func (r *Runner) SetParams(p model.ControlParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.ctrl.Params()
	if err := r.ctrl.SetParams(p); err != nil {
		return err
	}
	if r.db == nil {
		return nil
	}
	if err := r.saveParams(r.db, p); err != nil {
		if rbErr := r.ctrl.SetParams(prev); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to restore control parameters")
		}
		return fmt.Errorf("persist control params: %w", err)
	}
	r.publishStatus()
	return nil
}

// SetRelay switches one relay directly and records the edge.
func (r *Runner) SetRelay(id model.ActuatorID, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ctrl.SetActuator(id, on); err != nil {
		return err
	}
	cmd := model.ActuatorCommand{Target: id, Desired: on}
	r.recordEdges(r.newCycleID(), r.ctrl.ActiveMode(), "manual", []model.ActuatorCommand{cmd}, time.Now())
	r.publishStatus()
	return nil
}

func (r *Runner) Status() Status {
	st := r.ctrl.Status()
	if r.contacts != nil {
		st.Contacts = r.contacts.States()
	}
	return st
}

// ContactChanged publishes a debounced contact edge as soon as it settles.
func (r *Runner) ContactChanged(id string, open bool) {
	datadog.BoolGauge("contact.open", open, "contact:"+id)
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishContact(id, open); err != nil {
		log.Warn().Err(err).Str("contact", id).Msg("Failed to publish contact state")
	}
	r.publishStatus()
}

func (r *Runner) Actuators() []model.ActuatorID {
	return r.ctrl.Actuators()
}

func (r *Runner) recordEdges(cycleID string, mode model.Mode, source string, cmds []model.ActuatorCommand, now time.Time) {
	if r.db != nil {
		events := make([]db.ActuatorEvent, 0, len(cmds))
		for _, cmd := range cmds {
			events = append(events, db.ActuatorEvent{
				CycleID:   cycleID,
				Actuator:  cmd.Target,
				State:     cmd.Desired,
				Mode:      mode,
				Source:    source,
				ChangedAt: now,
			})
		}
		if err := db.InsertActuatorEvents(r.db, events); err != nil {
			log.Error().Err(err).Str("cycle_id", cycleID).Msg("Failed to record actuator events")
		}
	}

	if r.publisher == nil {
		return
	}
	for _, cmd := range cmds {
		if err := r.publisher.PublishRelay(cmd.Target, cmd.Desired); err != nil {
			log.Warn().Err(err).Str("actuator", string(cmd.Target)).Msg("Failed to publish relay state")
		}
		err := r.publisher.PublishEvent(mqtt.Event{
			Timestamp: now,
			CycleID:   cycleID,
			Actuator:  cmd.Target,
			On:        cmd.Desired,
			Mode:      mode,
			Source:    source,
		})
		if err != nil {
			log.Warn().Err(err).Str("actuator", string(cmd.Target)).Msg("Failed to publish actuator event")
		}
	}
}

func (r *Runner) emitMetrics(res CycleResult) {
	for id, reading := range res.Readings {
		datadog.BoolGauge("sensor.valid", reading.Valid, "sensor:"+string(id))
		if reading.Valid {
			datadog.Gauge("temperature", reading.Value, "sensor:"+string(id))
		}
	}

	for id, on := range r.ctrl.LastCommanded() {
		datadog.BoolGauge("relay.on", on, "relay:"+string(id))
	}
	for _, m := range model.Modes {
		datadog.BoolGauge("operation_mode", m == res.Mode, "mode:"+string(m))
	}
	datadog.Gauge("cycle.failed_commands", float64(len(res.Failed)))

	if r.contacts != nil {
		for id, st := range r.contacts.States() {
			if st.Known {
				datadog.BoolGauge("contact.open", st.Open, "contact:"+id)
			}
		}
	}
}

func (r *Runner) publishTemperatures(res CycleResult) {
	if r.publisher == nil {
		return
	}
	for id, reading := range res.Readings {
		if err := r.publisher.PublishTemperature(id, reading); err != nil {
			log.Warn().Err(err).Str("sensor", string(id)).Msg("Failed to publish temperature")
		}
	}
}

func (r *Runner) publishStatus() {
	if r.publisher == nil {
		return
	}
	payload, err := json.Marshal(r.Status())
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode status")
		return
	}
	if err := r.publisher.PublishStatus(payload); err != nil {
		log.Warn().Err(err).Msg("Failed to publish status")
	}
}

func (r *Runner) prune(now time.Time) {
	if r.db == nil || r.retention <= 0 || now.Sub(r.lastPrune) < pruneEvery {
		return
	}
	r.lastPrune = now

	n, err := db.PruneActuatorEvents(r.db, now.Add(-r.retention))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to prune actuator events")
		return
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("Pruned actuator history")
	}
}
