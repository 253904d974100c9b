//go:build !linux

package gpio

import "errors"

// CdevDriver is not available on non-Linux platforms.
type CdevDriver struct{}

func NewCdevDriver(chipName string) (*CdevDriver, error) {
	return nil, errors.New("gpio: character device not supported on this platform (requires Linux)")
}

func (d *CdevDriver) Setup(pin int, high bool) error {
	return errors.New("gpio: not supported")
}

func (d *CdevDriver) SetupInput(pin int) error {
	return errors.New("gpio: not supported")
}

func (d *CdevDriver) Write(pin int, high bool) error {
	return errors.New("gpio: not supported")
}

func (d *CdevDriver) Read(pin int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

func (d *CdevDriver) Close() error {
	return nil
}
