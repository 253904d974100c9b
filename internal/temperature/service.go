package temperature

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/internal/config"
	"github.com/thatsimonsguy/pool-controller/internal/model"
	"github.com/thatsimonsguy/pool-controller/internal/notifications"
)

// Notifier interface for sending notifications
type Notifier interface {
	Send(title, message string) error
}

// ReadFunc reads one sensor by its device path and returns °F.
type ReadFunc func(devicePath string) (float64, error)

type sensorState struct {
	path     string
	reading  model.Reading
	failures int
	lost     bool
	stale    bool
	filter   *spikeFilter
}

// Service polls the 1-Wire sensors in the background and keeps the latest
// reading of each. Readers get validity and staleness via Source. Readings
// that fail, jump implausibly, or go stale are reported invalid.
type Service struct {
	mutex   sync.Mutex
	sensors map[model.SensorID]*sensorState

	pollInterval time.Duration
	staleAfter   time.Duration
	maxFailures  int
	retries      int
	retryDelay   time.Duration
	busDelay     time.Duration
	maxDelta     float64
	maxAnomalies int

	read     ReadFunc
	notifier Notifier
	now      func() time.Time
}

func NewService(cfg config.Config) *Service {
	paths := make(map[model.SensorID]string, len(cfg.Sensors))
	for id, s := range cfg.Sensors {
		paths[model.SensorID(id)] = filepath.Join(cfg.W1DevicesPath, s.Bus)
	}

	s := newService(paths, ReadW1, &realNotifier{})
	s.pollInterval = cfg.PollInterval()
	s.staleAfter = cfg.SensorStaleAfter()
	s.maxFailures = cfg.SensorMaxFailures
	s.maxDelta = cfg.AnomalyMaxDelta
	s.maxAnomalies = cfg.AnomalyMaxCount
	return s
}

// TestDeps holds test dependencies
type TestDeps struct {
	Read     ReadFunc
	Notifier Notifier
	Now      func() time.Time

	// MaxDelta enables the spike filter when positive.
	MaxDelta     float64
	MaxAnomalies int
}

// NewServiceForTest creates a service with injectable dependencies and no
// retry or bus delays. The spike filter is off unless deps.MaxDelta is set.
func NewServiceForTest(paths map[model.SensorID]string, staleAfter time.Duration, maxFailures int, deps TestDeps) *Service {
	s := newService(paths, deps.Read, deps.Notifier)
	s.staleAfter = staleAfter
	s.maxFailures = maxFailures
	s.retryDelay = 0
	s.busDelay = 0
	s.maxDelta = deps.MaxDelta
	s.maxAnomalies = deps.MaxAnomalies
	if deps.Now != nil {
		s.now = deps.Now
	}
	return s
}

func newService(paths map[model.SensorID]string, read ReadFunc, notifier Notifier) *Service {
	sensors := make(map[model.SensorID]*sensorState, len(paths))
	for id, p := range paths {
		sensors[id] = &sensorState{path: p}
	}
	return &Service{
		sensors:      sensors,
		pollInterval: 30 * time.Second,
		staleAfter:   90 * time.Second,
		maxFailures:  5,
		retries:      3,
		retryDelay:   2 * time.Second,
		busDelay:     500 * time.Millisecond,
		maxDelta:     10,
		maxAnomalies: 6,
		read:         read,
		notifier:     notifier,
		now:          time.Now,
	}
}

type realNotifier struct{}

func (r *realNotifier) Send(title, message string) error {
	return notifications.Send(title, message)
}

// Start polls once immediately and then every poll interval until ctx ends.
func (s *Service) Start(ctx context.Context) {
	go func() {
		log.Info().Dur("interval", s.pollInterval).Msg("Starting temperature reading service")
		s.Poll()

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Temperature reading service stopped")
				return
			case <-ticker.C:
				s.Poll()
			}
		}
	}()
}

func (s *Service) ids() []model.SensorID {
	ids := make([]model.SensorID, 0, len(s.sensors))
	for id := range s.sensors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Poll reads every sensor once, sequentially.
func (s *Service) Poll() {
	for i, id := range s.ids() {
		// one-wire bus does not like back to back conversions
		if i > 0 && s.busDelay > 0 {
			time.Sleep(s.busDelay)
		}

		s.mutex.Lock()
		path := s.sensors[id].path
		s.mutex.Unlock()

		temp, err := s.readWithRetries(path, s.retries)
		s.record(id, temp, err, s.now())
	}
}

func (s *Service) readWithRetries(path string, retries int) (float64, error) {
	temp, err := s.read(path)
	for attempt := 0; err != nil && attempt < retries; attempt++ {
		if s.retryDelay > 0 {
			time.Sleep(s.retryDelay)
		}
		temp, err = s.read(path)
	}
	return temp, err
}

func (s *Service) record(id model.SensorID, temp float64, err error, now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	st := s.sensors[id]
	if err != nil {
		st.failures++
		// keep the last value for display but never let it drive a decision
		st.reading = model.Reading{Value: st.reading.Value, Valid: false, Timestamp: now}
		log.Warn().Err(err).Str("sensor", string(id)).Int("failures", st.failures).Msg("Temperature read failed")

		if st.failures >= s.maxFailures && !st.lost {
			st.lost = true
			s.notify("Pool Sensor Failure",
				fmt.Sprintf("[%s sensor lost] %d consecutive failed reads: %v", id, st.failures, err))
		}
		return
	}

	if st.filter == nil {
		st.filter = newSpikeFilter(id, s.maxDelta, s.maxAnomalies)
	}
	switch st.filter.process(temp) {
	case verdictRejected:
		st.reading = model.Reading{Value: temp, Valid: false, Timestamp: now}
		log.Warn().
			Str("sensor", string(id)).
			Float64("temp", temp).
			Float64("last_good", st.filter.lastGood).
			Msg("Temperature reading rejected as anomalous")
		return
	case verdictDisabled:
		st.reading = model.Reading{Value: temp, Valid: false, Timestamp: now}
		log.Error().
			Str("sensor", string(id)).
			Float64("temp", temp).
			Float64("last_good", st.filter.lastGood).
			Int("anomalies", st.filter.anomalies).
			Msg("Sensor disabled after repeated anomalous readings")
		s.notify("Pool Sensor Failure",
			fmt.Sprintf("[%s sensor disabled] %.1f°F (%d anomalies, last good: %.1f°F)", id, temp, st.filter.anomalies, st.filter.lastGood))
		return
	case verdictRecovered:
		log.Info().Str("sensor", string(id)).Float64("temp", temp).Msg("Sensor re-enabled")
		s.notify("Pool Sensor Recovery", fmt.Sprintf("[%s sensor re-enabled] %.1f°F", id, temp))
	}

	st.reading = model.Reading{Value: temp, Valid: true, Timestamp: now}
	if st.lost {
		s.notify("Pool Sensor Recovery", fmt.Sprintf("[%s sensor recovered] %.1f°F", id, temp))
		log.Info().Str("sensor", string(id)).Float64("temp", temp).Msg("Sensor recovered")
	}
	st.failures = 0
	st.lost = false

	log.Debug().Str("sensor", string(id)).Float64("temp", temp).Msg("Temperature reading accepted")
}

func (s *Service) notify(title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(title, message); err != nil {
		log.Error().Err(err).Str("title", title).Msg("Failed to send sensor notification")
	}
}

// Reading returns the latest reading for id, invalidated once stale.
func (s *Service) Reading(id model.SensorID) model.Reading {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	st, ok := s.sensors[id]
	if !ok {
		return model.Reading{}
	}
	r := st.reading
	age := s.now().Sub(r.Timestamp)
	if !r.Valid || age <= s.staleAfter {
		st.stale = false
		return r
	}

	if !st.stale {
		st.stale = true
		log.Warn().Str("sensor", string(id)).Dur("age", age).Msg("Temperature reading is stale")
	}
	r.Valid = false
	return r
}

// IDs lists the configured sensors, sorted.
func (s *Service) IDs() []model.SensorID {
	return s.ids()
}

func (s *Service) GetAllReadings() map[model.SensorID]model.Reading {
	out := make(map[model.SensorID]model.Reading, len(s.sensors))
	for _, id := range s.ids() {
		out[id] = s.Reading(id)
	}
	return out
}

// Source is a single sensor view that satisfies the controller's
// temperature source interface.
type Source struct {
	svc *Service
	id  model.SensorID
}

func (s *Service) Source(id model.SensorID) *Source {
	return &Source{svc: s, id: id}
}

func (src *Source) Read() model.Reading {
	return src.svc.Reading(src.id)
}
