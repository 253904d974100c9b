package gpio

import (
	"fmt"
	"sync"
)

// FakeDriver is an in-memory Driver for tests and bench runs.
type FakeDriver struct {
	mu     sync.Mutex
	levels map[int]bool
	writes []Write
	inputs map[int]bool

	// WriteErrors fails writes to the listed pins.
	WriteErrors map[int]error
	// ReadErrors fails reads of the listed pins.
	ReadErrors map[int]error
	Closed     bool
}

type Write struct {
	Pin  int
	High bool
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		levels:      map[int]bool{},
		inputs:      map[int]bool{},
		WriteErrors: map[int]error{},
		ReadErrors:  map[int]error{},
	}
}

func (f *FakeDriver) Setup(pin int, high bool) error {
	return f.Write(pin, high)
}

// SetupInput marks pin as an input; it idles high like a pulled-up line.
func (f *FakeDriver) SetupInput(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs[pin] = true
	f.levels[pin] = true
	return nil
}

// SetLevel drives an input pin from the outside.
func (f *FakeDriver) SetLevel(pin int, high bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[pin] = high
}

func (f *FakeDriver) IsInput(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[pin]
}

func (f *FakeDriver) Write(pin int, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.WriteErrors[pin]; err != nil {
		return err
	}
	f.levels[pin] = high
	f.writes = append(f.writes, Write{Pin: pin, High: high})
	return nil
}

func (f *FakeDriver) Read(pin int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ReadErrors[pin]; err != nil {
		return false, err
	}
	high, ok := f.levels[pin]
	if !ok {
		return false, fmt.Errorf("pin %d not configured", pin)
	}
	return high, nil
}

func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Level returns the last written level of pin.
func (f *FakeDriver) Level(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

func (f *FakeDriver) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}
