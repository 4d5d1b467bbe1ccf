package onboard

import (
	"context"
	"fmt"

	"github.com/fantastic4/urov/logging"
	"github.com/fantastic4/urov/onboard/drive"
	"github.com/fantastic4/urov/onboard/pigpio"
	"github.com/fantastic4/urov/onboard/thermal"
	"github.com/sirupsen/logrus"
)

// Vehicle is the command surface of the robot as seen by the operator
// facing layers. Every operation returns a short status line for display
// plus an error when hardware misbehaved; an error never means the
// vehicle has stopped accepting commands.
type Vehicle interface {
	Forward() (string, error)
	Ascend() (string, error)
	TurnLeft() (string, error)
	TurnRight() (string, error)
	Stop() (string, error)
	SetSpeed(widthUs int) (string, error)
	Press(control drive.Control) (string, error)
	Release(control drive.Control) (string, error)
	SaveTemperatureLog() (string, error)
	State() VehicleState
}

// VehicleState is a point in time snapshot for display and telemetry.
type VehicleState struct {
	Speed      int     `json:"speed"`
	Obstacle   bool    `json:"obstacle"`
	SensorOK   bool    `json:"sensor_ok"`
	HasReading bool    `json:"has_reading"`
	Celsius    float64 `json:"temp_c"`
	Fahrenheit float64 `json:"temp_f"`
	Buffered   int     `json:"buffered"`
}

// Rov assembles the drive and thermal subsystems over a shared actuator
// bus and owns their lifecycles.
type Rov struct {
	Drive     *drive.Controller
	Input     *drive.InputRouter
	Interlock *drive.Interlock
	Sampler   *thermal.Sampler
	Buffer    *thermal.LogBuffer

	pig *pigpio.Client
	sim *PoolModel
	log *logrus.Entry
}

// NewRov builds the vehicle against real hardware. An unreachable or too
// old pigpio daemon is fatal; a missing temperature probe is not.
func NewRov(config *RovConfig, log *logrus.Logger) (r *Rov, err error) {
	pig, err := pigpio.NewClient(config.Pigpio.Addr)
	if err != nil {
		return nil, err
	}

	if config.Pigpio.MinVersion > 0 {
		version, err := pig.Version()
		if err != nil {
			pig.Close()
			return nil, err
		}
		if version < config.Pigpio.MinVersion {
			pig.Close()
			return nil, fmt.Errorf("pigpiod version %d is too old, require at least %d", version, config.Pigpio.MinVersion)
		}
	}

	var src thermal.Source
	if sensor, err := thermal.FindW1Sensor(config.Thermal.DeviceDir); err != nil {
		logging.Component(log, "thermal").WithError(err).Warn("temperature probe unavailable, sampling disabled")
	} else {
		src = sensor
	}

	r = assembleRov(config, pig, src, log)
	r.pig = pig
	return r, nil
}

// assembleRov wires the pieces shared by the hardware and simulated
// vehicles.
func assembleRov(config *RovConfig, bus drive.ActuatorBus, src thermal.Source, log *logrus.Logger) (r *Rov) {
	r = new(Rov)
	r.log = logging.Component(log, "rov")
	r.Interlock = new(drive.Interlock)
	r.Drive = drive.NewController(bus, config.MotorPins(), r.Interlock, logging.Component(log, "drive"))
	r.Input = drive.NewInputRouter(r.Drive)
	r.Buffer = thermal.NewLogBuffer(config.Thermal.LogPath, config.Thermal.FlushThreshold)
	r.Sampler = thermal.NewSampler(src, r.Buffer, config.Thermal.SamplePeriod.Duration, logging.Component(log, "thermal"))
	return
}

// Start launches the background loops. They run until ctx is cancelled.
func (r *Rov) Start(ctx context.Context) {
	go r.Sampler.Run(ctx)
	if r.sim != nil {
		go r.sim.Run(ctx)
	}
}

// Shutdown idles the motors, saves any buffered readings and releases
// the hardware link.
func (r *Rov) Shutdown() {
	if _, err := r.Drive.Stop(); err != nil {
		r.log.WithError(err).Error("unable to idle motors on shutdown")
	}

	if status, err := r.Buffer.Flush(); err != nil {
		r.log.WithError(err).Warn("unable to save buffered readings on shutdown")
	} else {
		r.log.Info(status)
	}

	if r.pig != nil {
		if err := r.pig.Close(); err != nil {
			r.log.WithError(err).Warn("error closing pigpiod connection")
		}
	}
}

func (r *Rov) Forward() (string, error) {
	return r.Drive.Forward()
}

func (r *Rov) Ascend() (string, error) {
	return r.Drive.Ascend()
}

func (r *Rov) TurnLeft() (string, error) {
	return r.Drive.TurnLeft()
}

func (r *Rov) TurnRight() (string, error) {
	return r.Drive.TurnRight()
}

func (r *Rov) Stop() (string, error) {
	return r.Drive.Stop()
}

func (r *Rov) SetSpeed(widthUs int) (string, error) {
	return r.Drive.SetSpeed(widthUs)
}

func (r *Rov) Press(control drive.Control) (string, error) {
	return r.Input.Press(control)
}

func (r *Rov) Release(control drive.Control) (string, error) {
	return r.Input.Release(control)
}

func (r *Rov) SaveTemperatureLog() (string, error) {
	return r.Buffer.Flush()
}

func (r *Rov) State() (state VehicleState) {
	state.Speed = r.Drive.Speed()
	state.Obstacle = r.Interlock.Engaged()
	state.SensorOK = r.Sampler.HasSensor()
	state.Buffered = r.Buffer.Len()

	if last, ok := r.Sampler.Last(); ok {
		state.HasReading = true
		state.Celsius = last.Celsius
		state.Fahrenheit = last.Fahrenheit
	}

	return
}
