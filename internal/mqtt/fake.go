package mqtt

import (
	"sync"

	"github.com/thatsimonsguy/pool-controller/internal/model"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	Statuses [][]byte
	Relays   map[model.ActuatorID]bool
	Events   []Event
	Temps    map[model.SensorID]model.Reading
	Contacts map[string]bool

	// PublishError, if set, is returned by every publish call.
	PublishError error

	Handler CommandHandler
	Closed  bool
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{
		Relays:   map[model.ActuatorID]bool{},
		Temps:    map[model.SensorID]model.Reading{},
		Contacts: map[string]bool{},
	}
}

func (f *FakePublisher) PublishStatus(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Statuses = append(f.Statuses, payload)
	return nil
}

func (f *FakePublisher) PublishRelay(id model.ActuatorID, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Relays[id] = on
	return nil
}

func (f *FakePublisher) PublishEvent(event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Events = append(f.Events, event)
	return nil
}

func (f *FakePublisher) PublishTemperature(id model.SensorID, r model.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Temps[id] = r
	return nil
}

func (f *FakePublisher) PublishContact(id string, open bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Contacts[id] = open
	return nil
}

// Contact returns the last published state of a contact input.
func (f *FakePublisher) Contact(id string) (open, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	open, ok = f.Contacts[id]
	return open, ok
}

// Temperature returns the last published reading for a sensor.
func (f *FakePublisher) Temperature(id model.SensorID) (model.Reading, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.Temps[id]
	return r, ok
}

func (f *FakePublisher) Subscribe(h CommandHandler) error {
	f.mu.Lock()
	f.Handler = h
	f.mu.Unlock()
	return nil
}

// Deliver simulates a broker message on topic.
func (f *FakePublisher) Deliver(topics Topics, topic string, payload []byte) error {
	f.mu.Lock()
	h := f.Handler
	f.mu.Unlock()
	return HandleCommand(h, topics, topic, payload)
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

func (f *FakePublisher) LastStatus() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Statuses) == 0 {
		return nil
	}
	return f.Statuses[len(f.Statuses)-1]
}
