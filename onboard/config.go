package onboard

import (
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver"
	"github.com/fantastic4/urov/onboard/drive"
	"github.com/fantastic4/urov/onboard/pigpio"
	"github.com/fantastic4/urov/onboard/thermal"
	"gopkg.in/yaml.v2"
)

// CONFIG_SCHEMA is the constraint a rig config must satisfy before the
// daemon will drive hardware with it.
const CONFIG_SCHEMA = "~1.0"

// Duration lets rig configs carry values like "2s" or "500ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}

	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

type RovConfig struct {
	Schema string

	Pigpio struct {
		Addr       string
		MinVersion uint32 `yaml:"min_version"`
	}

	Motors struct {
		PortHorizontal      uint32 `yaml:"port_horizontal"`
		PortVertical        uint32 `yaml:"port_vertical"`
		StarboardHorizontal uint32 `yaml:"starboard_horizontal"`
		StarboardVertical   uint32 `yaml:"starboard_vertical"`
	}

	Thermal struct {
		DeviceDir      string   `yaml:"device_dir"`
		LogPath        string   `yaml:"log_path"`
		SamplePeriod   Duration `yaml:"sample_period"`
		FlushThreshold int      `yaml:"flush_threshold"`
	}

	Mqtt struct {
		ObstacleTopic  string `yaml:"obstacle_topic"`
		TelemetryTopic string `yaml:"telemetry_topic"`
	}
}

// LoadConfig reads a rig config from disk, fills the gaps with defaults
// and refuses configs written for another schema.
func LoadConfig(path string) (config *RovConfig, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read rig config: %w", err)
	}

	config = new(RovConfig)
	if err = yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("unable to parse rig config: %w", err)
	}

	config.applyDefaults()

	if err = config.CheckSchema(); err != nil {
		return nil, err
	}

	if err = config.CheckMotors(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *RovConfig) applyDefaults() {
	if c.Pigpio.Addr == "" {
		c.Pigpio.Addr = pigpio.DEFAULT_ADDR
	}
	if c.Thermal.DeviceDir == "" {
		c.Thermal.DeviceDir = thermal.W1_DEVICE_DIR
	}
	if c.Thermal.LogPath == "" {
		c.Thermal.LogPath = "temperature_log.csv"
	}
	if c.Thermal.SamplePeriod.Duration <= 0 {
		c.Thermal.SamplePeriod.Duration = thermal.DEFAULT_SAMPLE_INTERVAL
	}
	if c.Thermal.FlushThreshold <= 0 {
		c.Thermal.FlushThreshold = thermal.FLUSH_THRESHOLD
	}
	if c.Mqtt.ObstacleTopic == "" {
		c.Mqtt.ObstacleTopic = "urov/ranging/obstacle"
	}
	if c.Mqtt.TelemetryTopic == "" {
		c.Mqtt.TelemetryTopic = "urov/telemetry/state"
	}
}

// CheckSchema ensures the config was written for a schema this build
// understands.
func (c *RovConfig) CheckSchema() error {
	v, err := semver.NewVersion(c.Schema)
	if err != nil {
		return fmt.Errorf("rig config schema %q is not a version: %v", c.Schema, err)
	}

	constraint, err := semver.NewConstraint(CONFIG_SCHEMA)
	if err != nil {
		return err
	}

	if !constraint.Check(v) {
		return fmt.Errorf("rig config schema %s is unsupported, require %s", c.Schema, CONFIG_SCHEMA)
	}

	return nil
}

// CheckMotors ensures every drive channel has its own GPIO pin. Pin
// zero counts as unset.
func (c *RovConfig) CheckMotors() error {
	seen := make(map[uint32]drive.Channel)
	for channel, pin := range c.MotorPins() {
		if pin == 0 {
			return fmt.Errorf("rig config has no GPIO pin for the %s motor", drive.Channel(channel))
		}
		if other, ok := seen[pin]; ok {
			return fmt.Errorf("rig config assigns GPIO %d to both %s and %s motors", pin, other, drive.Channel(channel))
		}
		seen[pin] = drive.Channel(channel)
	}

	return nil
}

// MotorPins returns the configured GPIO pins in channel order, ready to
// hand to the drive controller.
func (c *RovConfig) MotorPins() [drive.NUM_CHANNELS]uint32 {
	return [drive.NUM_CHANNELS]uint32{
		drive.PORT_HORIZONTAL:      c.Motors.PortHorizontal,
		drive.PORT_VERTICAL:        c.Motors.PortVertical,
		drive.STARBOARD_HORIZONTAL: c.Motors.StarboardHorizontal,
		drive.STARBOARD_VERTICAL:   c.Motors.StarboardVertical,
	}
}
