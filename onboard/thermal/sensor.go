package thermal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fantastic4/urov/calcs"
)

const (
	// A cycle re-reads a not ready record up to READ_MAX_RETRIES times,
	// spaced READ_RETRY_DELAY apart, before giving up on the cycle.
	READ_MAX_RETRIES = 5
	READ_RETRY_DELAY = 200 * time.Millisecond

	W1_DEVICE_DIR  = "/sys/bus/w1/devices"
	W1_DEVICE_GLOB = "28*"
	W1_SLAVE_FILE  = "w1_slave"
)

var (
	ERR_NO_SENSOR   = errors.New("no temperature sensor detected")
	ERR_NOT_READY   = errors.New("sensor record not ready")
	ERR_MAX_RETRIES = errors.New("sensor not ready after maximum retries")
)

// Reading is a single temperature sample.
type Reading struct {
	Timestamp  time.Time
	Celsius    float64
	Fahrenheit float64
}

// Source yields raw therm records. The real implementation reads the one
// wire sysfs file; the simulator and tests script their own.
type Source interface {
	ReadRaw() (lines []string, err error)
}

// W1Sensor reads a DS18B20 style device through the w1 sysfs interface.
type W1Sensor struct {
	devicePath string
}

// FindW1Sensor locates the first one wire therm device under baseDir.
// An empty baseDir searches the standard sysfs location.
func FindW1Sensor(baseDir string) (s *W1Sensor, err error) {
	if baseDir == "" {
		baseDir = W1_DEVICE_DIR
	}

	matches, err := filepath.Glob(filepath.Join(baseDir, W1_DEVICE_GLOB))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ERR_NO_SENSOR
	}

	return &W1Sensor{devicePath: filepath.Join(matches[0], W1_SLAVE_FILE)}, nil
}

func (s *W1Sensor) ReadRaw() (lines []string, err error) {
	raw, err := os.ReadFile(s.devicePath)
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimRight(string(raw), "\n"), "\n"), nil
}

// ParseRecord extracts the temperature from a two line w1_slave record.
// Line one must end in YES before the value on line two can be trusted.
func ParseRecord(lines []string) (c float64, err error) {
	if len(lines) < 2 {
		return 0, fmt.Errorf("short sensor record (%d lines)", len(lines))
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ERR_NOT_READY
	}

	pos := strings.LastIndex(lines[1], "t=")
	if pos < 0 {
		return 0, errors.New("sensor record missing t= field")
	}

	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][pos+2:]))
	if err != nil {
		return 0, fmt.Errorf("bad temperature value: %w", err)
	}

	return calcs.MilliCToC(milli), nil
}

// ReadTemp polls src until it produces a ready record and converts the
// result. Only a not ready record is retried; anything else fails the
// cycle immediately for the caller to log and skip.
func ReadTemp(src Source) (c, f float64, err error) {
	for attempt := 1; attempt <= READ_MAX_RETRIES; attempt++ {
		var lines []string
		lines, err = src.ReadRaw()
		if err == nil {
			c, err = ParseRecord(lines)
		}

		if err == nil {
			return c, calcs.CToF(c), nil
		}
		if !errors.Is(err, ERR_NOT_READY) {
			return 0, 0, err
		}

		if attempt < READ_MAX_RETRIES {
			time.Sleep(READ_RETRY_DELAY)
		}
	}

	return 0, 0, ERR_MAX_RETRIES
}
