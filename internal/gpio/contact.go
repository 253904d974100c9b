package gpio

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/internal/config"
	"github.com/thatsimonsguy/pool-controller/internal/model"
)

// ContactChangeFunc is called after a contact settles in a new state,
// including the first stable state after startup.
type ContactChangeFunc func(id string, open bool)

type contactInput struct {
	id  string
	pin int

	baselined    bool
	open         bool
	since        time.Time
	pending      bool
	pendingOpen  bool
	pendingSince time.Time
	failing      bool
}

// ContactMonitor samples pulled-up contact inputs and debounces them. A high
// level reads as open.
type ContactMonitor struct {
	mu       sync.Mutex
	driver   Driver
	inputs   []*contactInput
	debounce time.Duration
	interval time.Duration
	onChange ContactChangeFunc
}

func NewContactMonitor(driver Driver, pins map[string]config.Contact, debounce, interval time.Duration) (*ContactMonitor, error) {
	ids := make([]string, 0, len(pins))
	for id := range pins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	m := &ContactMonitor{driver: driver, debounce: debounce, interval: interval}
	for _, id := range ids {
		pin := pins[id].Pin
		if err := driver.SetupInput(pin); err != nil {
			return nil, fmt.Errorf("failed to set up contact %s (GPIO %d): %w", id, pin, err)
		}
		m.inputs = append(m.inputs, &contactInput{id: id, pin: pin})
	}

	log.Info().Int("count", len(m.inputs)).Dur("debounce", debounce).Msg("Contact inputs initialized")
	return m, nil
}

func (m *ContactMonitor) OnChange(fn ContactChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Start samples every interval until ctx ends.
func (m *ContactMonitor) Start(ctx context.Context) {
	if len(m.inputs) == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.Poll(now)
			}
		}
	}()
}

type contactChange struct {
	id   string
	open bool
}

// Poll samples each input once.
func (m *ContactMonitor) Poll(now time.Time) {
	m.mu.Lock()
	var changes []contactChange
	for _, in := range m.inputs {
		high, err := m.driver.Read(in.pin)
		if err != nil {
			if !in.failing {
				log.Warn().Err(err).Str("contact", in.id).Int("pin", in.pin).Msg("Failed to read contact input")
			}
			in.failing = true
			continue
		}
		in.failing = false

		if in.sample(high, now, m.debounce) {
			changes = append(changes, contactChange{id: in.id, open: in.open})
		}
	}
	fn := m.onChange
	m.mu.Unlock()

	for _, c := range changes {
		log.Info().Str("contact", c.id).Bool("open", c.open).Msg("Contact changed")
		if fn != nil {
			fn(c.id, c.open)
		}
	}
}

// sample feeds one raw level and reports whether the stable state changed.
func (in *contactInput) sample(open bool, now time.Time, debounce time.Duration) bool {
	if in.baselined && open == in.open {
		in.pending = false
		return false
	}
	if !in.pending || in.pendingOpen != open {
		in.pending = true
		in.pendingOpen = open
		in.pendingSince = now
		if debounce > 0 {
			return false
		}
	}
	if now.Sub(in.pendingSince) < debounce {
		return false
	}

	in.baselined = true
	in.open = open
	in.since = now
	in.pending = false
	return true
}

// States returns the debounced state of every contact.
func (m *ContactMonitor) States() map[string]model.ContactState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]model.ContactState, len(m.inputs))
	for _, in := range m.inputs {
		out[in.id] = model.ContactState{Open: in.open, Known: in.baselined, Since: in.since}
	}
	return out
}
