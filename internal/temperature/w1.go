package temperature

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrCRC          = errors.New("w1 crc check failed")
	ErrDisconnected = errors.New("sensor disconnected")
	ErrPowerOnValue = errors.New("sensor returned power-on reset value")
)

// DS18B20 sentinel values in milli-degrees C.
const (
	disconnectedMilliC = -127000
	powerOnMilliC      = 85000
)

// ReadW1 reads a DS18B20 w1_slave file under devicePath and returns °F.
func ReadW1(devicePath string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(devicePath, "w1_slave"))
	if err != nil {
		return 0, fmt.Errorf("failed to read sensor data: %w", err)
	}
	return parseW1Slave(string(data))
}

func parseW1Slave(data string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(data), "\n")
	if len(lines) < 2 || !strings.Contains(lines[1], "t=") {
		return 0, fmt.Errorf("temperature data missing or malformed: %q", data)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrCRC
	}

	parts := strings.Split(lines[1], "t=")
	if len(parts) != 2 {
		return 0, fmt.Errorf("could not parse temperature line: %q", lines[1])
	}

	milliC, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("failed to convert temperature to int: %w", err)
	}
	switch milliC {
	case disconnectedMilliC:
		return 0, ErrDisconnected
	case powerOnMilliC:
		return 0, ErrPowerOnValue
	}

	// F = C × 9/5 + 32
	tempC := float64(milliC) / 1000.0
	return tempC*9.0/5.0 + 32.0, nil
}
