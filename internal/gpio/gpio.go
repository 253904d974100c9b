// Package gpio drives the controller's relay outputs and reads its contact
// inputs. A Driver moves raw pin levels; a Relay maps on/off onto a pin and
// its polarity so the mode controller can treat it as an actuator.
package gpio

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/internal/config"
	"github.com/thatsimonsguy/pool-controller/internal/model"
)

// Driver writes and reads raw pin levels (true = high).
type Driver interface {
	// Setup claims pin as an output at the given level.
	Setup(pin int, high bool) error
	// SetupInput claims pin as an input with the internal pull-up.
	SetupInput(pin int) error
	Write(pin int, high bool) error
	Read(pin int) (bool, error)
	Close() error
}

var safeMode bool

// SetSafeMode suppresses every relay write while enabled.
func SetSafeMode(enabled bool) {
	safeMode = enabled
}

func SafeMode() bool {
	return safeMode
}

type Relay struct {
	ID         model.ActuatorID
	Pin        int
	ActiveHigh bool

	driver Driver
}

func NewRelay(id model.ActuatorID, pin int, activeHigh bool, driver Driver) *Relay {
	return &Relay{ID: id, Pin: pin, ActiveHigh: activeHigh, driver: driver}
}

func (r *Relay) level(on bool) bool {
	return on == r.ActiveHigh
}

// Set energises (on) or releases the relay.
func (r *Relay) Set(on bool) error {
	if safeMode {
		log.Info().
			Str("relay", string(r.ID)).
			Bool("on", on).
			Msg("Safe mode: relay write suppressed")
		return nil
	}
	if err := r.driver.Write(r.Pin, r.level(on)); err != nil {
		return fmt.Errorf("relay %s (GPIO %d): %w", r.ID, r.Pin, err)
	}
	return nil
}

// Get reports whether the relay is currently energised. Read errors
// report off.
func (r *Relay) Get() bool {
	high, err := r.driver.Read(r.Pin)
	if err != nil {
		log.Error().Err(err).Str("relay", string(r.ID)).Int("pin", r.Pin).Msg("Failed to read relay level")
		return false
	}
	return high == r.ActiveHigh
}

// NewRelays builds one relay per configured pin, sorted by id, and drives
// each to its inactive level unless safe mode is on.
func NewRelays(driver Driver, pins map[string]config.RelayPin) ([]*Relay, error) {
	names := make([]string, 0, len(pins))
	for name := range pins {
		names = append(names, name)
	}
	sort.Strings(names)

	relays := make([]*Relay, 0, len(names))
	for _, name := range names {
		p := pins[name]
		r := NewRelay(model.ActuatorID(name), p.Pin, p.ActiveHigh, driver)
		if !safeMode {
			if err := driver.Setup(r.Pin, r.level(false)); err != nil {
				return nil, fmt.Errorf("failed to set up relay %s (GPIO %d): %w", name, p.Pin, err)
			}
		}
		relays = append(relays, r)
	}

	log.Info().Int("count", len(relays)).Bool("safe_mode", safeMode).Msg("Relays initialized")
	return relays, nil
}

// AllOff releases every relay, returning the first error after trying all.
func AllOff(relays []*Relay) error {
	var first error
	for _, r := range relays {
		if err := r.Set(false); err != nil {
			log.Error().Err(err).Str("relay", string(r.ID)).Msg("Failed to release relay")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// NewDriver picks the configured driver implementation.
func NewDriver(cfg config.Config) (Driver, error) {
	switch cfg.RelayDriver {
	case "pinctrl":
		return NewPinctrlDriver(), nil
	case "gpiocdev":
		return NewCdevDriver(cfg.GPIOChip)
	default:
		return nil, fmt.Errorf("unknown relay driver %q", cfg.RelayDriver)
	}
}
