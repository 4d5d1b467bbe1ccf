package onboard

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/fantastic4/urov/calcs"
	"github.com/fantastic4/urov/logging"
	"github.com/fantastic4/urov/onboard/drive"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"
)

const (
	SIM_TICK      = 100 * time.Millisecond
	SIM_MAX_SPEED = 0.8  // m/s with a thruster at full width
	SIM_MAX_YAW   = 0.9  // rad/s from a single horizontal thruster
	SIM_CURRENT   = 0.05 // m/s of pool current pushing the frame back
	SIM_POOL_LEN  = 5.0  // m from the near wall to the far wall
	SIM_WALL_STOP = 0.25 // m, matches the ranging threshold topside
	SIM_TEMP_BASE = 21.5 // °C pool water
)

// SimActuator stands in for the pigpio daemon on the bench: it records
// the last pulse width written to each GPIO.
type SimActuator struct {
	mu     sync.Mutex
	widths map[uint32]uint32
}

func NewSimActuator() *SimActuator {
	return &SimActuator{widths: make(map[uint32]uint32)}
}

func (s *SimActuator) Servo(gpio, pulseWidth uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.widths[gpio] = pulseWidth
	return nil
}

// Width reports the last pulse width written to a GPIO. Pins that were
// never written read as off.
func (s *SimActuator) Width(gpio uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.widths[gpio]
}

// SimW1Source produces plausible probe records with a slow drift and the
// occasional not ready read, much like a real probe on a long cable.
type SimW1Source struct {
	mu   sync.Mutex
	temp float64
}

func NewSimW1Source() *SimW1Source {
	return &SimW1Source{temp: SIM_TEMP_BASE}
}

func (s *SimW1Source) ReadRaw() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rand.Intn(20) == 0 {
		return []string{
			"73 01 4b 46 7f ff 0d 10 41 : crc=41 NO",
			"73 01 4b 46 7f ff 0d 10 41 t=0",
		}, nil
	}

	s.temp += (rand.Float64() - 0.5) * 0.05

	return []string{
		"73 01 4b 46 7f ff 0d 10 41 : crc=41 YES",
		fmt.Sprintf("73 01 4b 46 7f ff 0d 10 41 t=%d", int(s.temp*1000)),
	}, nil
}

// PoolModel integrates commanded thrust into a position in a straight
// practice pool and raises the obstacle flag near the far wall, standing
// in for the ranging subsystem.
type PoolModel struct {
	actuator  *SimActuator
	interlock *drive.Interlock
	pins      [drive.NUM_CHANNELS]uint32
	log       *logrus.Entry

	mu      sync.Mutex
	pos     mgl64.Vec3
	heading float64 // rad, 0 faces the far wall, positive yaws to port
}

func NewPoolModel(actuator *SimActuator, interlock *drive.Interlock, pins [drive.NUM_CHANNELS]uint32, log *logrus.Entry) *PoolModel {
	return &PoolModel{
		actuator:  actuator,
		interlock: interlock,
		pins:      pins,
		log:       log,
		pos:       mgl64.Vec3{0.5, 0, -1}, // a metre down, clear of the near wall
	}
}

// Run advances the model until ctx is cancelled.
func (m *PoolModel) Run(ctx context.Context) {
	ticker := time.NewTicker(SIM_TICK)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.step(SIM_TICK.Seconds())
		}
	}
}

func (m *PoolModel) step(dt float64) {
	port := m.thrust(drive.PORT_HORIZONTAL)
	star := m.thrust(drive.STARBOARD_HORIZONTAL)
	vert := (m.thrust(drive.PORT_VERTICAL) + m.thrust(drive.STARBOARD_VERTICAL)) / 2

	m.mu.Lock()

	// a lone horizontal thruster mostly yaws the frame
	m.heading += (star - port) / SIM_MAX_SPEED * SIM_MAX_YAW * dt

	ahead := mgl64.Vec3{math.Cos(m.heading), math.Sin(m.heading), 0}
	vel := ahead.Mul((port + star) / 2)
	vel = vel.Add(mgl64.Vec3{-SIM_CURRENT, 0, vert})

	m.pos = m.pos.Add(vel.Mul(dt))
	if m.pos.Z() > 0 {
		m.pos[2] = 0 // the surface is a hard ceiling
	}

	wall := SIM_POOL_LEN - m.pos.X()
	m.mu.Unlock()

	engaged := wall < SIM_WALL_STOP
	if engaged != m.interlock.Engaged() {
		m.interlock.Set(engaged)
		if engaged {
			m.log.Warn("pool wall inside ranging threshold, obstacle flag raised")
		} else {
			m.log.Info("obstacle cleared")
		}
	}
}

// thrust converts the last commanded width on a channel into m/s.
func (m *PoolModel) thrust(channel drive.Channel) float64 {
	width := m.actuator.Width(m.pins[channel])
	if width <= drive.SPEED_IDLE {
		return 0
	}
	return calcs.Translate(float64(width), drive.SPEED_IDLE, drive.SPEED_MAX, 0, SIM_MAX_SPEED)
}

// Position reports the modelled position for diagnostics.
func (m *PoolModel) Position() mgl64.Vec3 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

// Heading reports the modelled heading in radians.
func (m *PoolModel) Heading() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heading
}

// NewRovSimulator builds a vehicle with no hardware attached: thruster
// writes land in a SimActuator, temperature comes from a scripted probe
// and a pool model produces the obstacle flag.
func NewRovSimulator(config *RovConfig, log *logrus.Logger) (r *Rov) {
	actuator := NewSimActuator()
	r = assembleRov(config, actuator, NewSimW1Source(), log)
	r.sim = NewPoolModel(actuator, r.Interlock, config.MotorPins(), logging.Component(log, "sim"))
	return
}
