//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// CdevDriver drives pins through the Linux GPIO character device.
// Lines are requested on first use and held until Close.
type CdevDriver struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

func NewCdevDriver(chipName string) (*CdevDriver, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &CdevDriver{chip: chip, lines: map[int]*gpiocdev.Line{}}, nil
}

func toValue(high bool) int {
	if high {
		return 1
	}
	return 0
}

func (d *CdevDriver) Setup(pin int, high bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if line, ok := d.lines[pin]; ok {
		return line.Reconfigure(gpiocdev.AsOutput(toValue(high)))
	}
	line, err := d.chip.RequestLine(pin, gpiocdev.AsOutput(toValue(high)))
	if err != nil {
		return fmt.Errorf("request pin %d: %w", pin, err)
	}
	d.lines[pin] = line
	return nil
}

func (d *CdevDriver) SetupInput(pin int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if line, ok := d.lines[pin]; ok {
		return line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp)
	}
	line, err := d.chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return fmt.Errorf("request input pin %d: %w", pin, err)
	}
	d.lines[pin] = line
	return nil
}

func (d *CdevDriver) Write(pin int, high bool) error {
	d.mu.Lock()
	line, ok := d.lines[pin]
	d.mu.Unlock()
	if !ok {
		return d.Setup(pin, high)
	}
	if err := line.SetValue(toValue(high)); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

func (d *CdevDriver) Read(pin int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	line, ok := d.lines[pin]
	if !ok {
		var err error
		line, err = d.chip.RequestLine(pin, gpiocdev.AsIs)
		if err != nil {
			return false, fmt.Errorf("request pin %d: %w", pin, err)
		}
		d.lines[pin] = line
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v == 1, nil
}

func (d *CdevDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for pin, line := range d.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	d.lines = map[int]*gpiocdev.Line{}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
