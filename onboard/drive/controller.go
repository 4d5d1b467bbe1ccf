package drive

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Commanded speeds are servo pulse widths in microseconds. SPEED_IDLE
// holds a thruster stationary; the ESCs treat anything up to SPEED_MAX as
// increasing throttle.
const (
	SPEED_IDLE    = 800
	SPEED_MAX     = 1800
	SPEED_DEFAULT = 1200
)

const (
	STATUS_FORWARD    = "Moving Forward"
	STATUS_ASCEND     = "Ascending"
	STATUS_TURN_LEFT  = "Turning Left"
	STATUS_TURN_RIGHT = "Turning Right"
	STATUS_STOPPED    = "All motors stopped"
	STATUS_OBSTACLE   = "Obstacle detected: motors held at idle"
)

// Controller maps motion commands onto thruster pulse widths. Commands
// are stateless; each one recomputes its width from the commanded speed
// and the interlock, so a flag raised between two identical commands
// changes what reaches the motors.
type Controller struct {
	bus       ActuatorBus
	thrusters [NUM_CHANNELS]Thruster
	interlock *Interlock
	log       *logrus.Entry

	mu    sync.Mutex // serialises multi channel writes
	speed int32      // commanded speed in us, atomic
}

func NewController(bus ActuatorBus, pins [NUM_CHANNELS]uint32, interlock *Interlock, log *logrus.Entry) (c *Controller) {
	c = &Controller{
		bus:       bus,
		interlock: interlock,
		log:       log,
	}
	for ch := Channel(0); ch < NUM_CHANNELS; ch++ {
		c.thrusters[ch] = Thruster{Channel: ch, Pin: pins[ch]}
	}
	atomic.StoreInt32(&c.speed, SPEED_DEFAULT)
	return
}

// Forward drives both horizontal thrusters.
func (c *Controller) Forward() (string, error) {
	return c.move(STATUS_FORWARD, PORT_HORIZONTAL, STARBOARD_HORIZONTAL)
}

// Ascend drives both vertical thrusters.
func (c *Controller) Ascend() (string, error) {
	return c.move(STATUS_ASCEND, PORT_VERTICAL, STARBOARD_VERTICAL)
}

// TurnLeft drives the starboard horizontal thruster alone, yawing the
// frame to port.
func (c *Controller) TurnLeft() (string, error) {
	return c.move(STATUS_TURN_LEFT, STARBOARD_HORIZONTAL)
}

// TurnRight drives the port horizontal thruster alone, yawing the frame
// to starboard.
func (c *Controller) TurnRight() (string, error) {
	return c.move(STATUS_TURN_RIGHT, PORT_HORIZONTAL)
}

// Stop sets every channel to idle. Safe in any state and idempotent.
func (c *Controller) Stop() (status string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err = c.apply(SPEED_IDLE, PORT_HORIZONTAL, PORT_VERTICAL, STARBOARD_HORIZONTAL, STARBOARD_VERTICAL)
	return withWriteFailure(STATUS_STOPPED, err), err
}

// SetSpeed stores the commanded speed for subsequent movement commands.
// The input layer clamps values to [SPEED_IDLE, SPEED_MAX] before they
// arrive here. Thrusters already running keep their current width until
// the next command.
func (c *Controller) SetSpeed(widthUs int) (string, error) {
	atomic.StoreInt32(&c.speed, int32(widthUs))
	return fmt.Sprintf("Motor speed set to %d", widthUs), nil
}

// Speed reports the currently commanded speed in microseconds.
func (c *Controller) Speed() int {
	return int(atomic.LoadInt32(&c.speed))
}

func (c *Controller) move(label string, channels ...Channel) (status string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	width, engaged := c.effectiveWidth()
	err = c.apply(width, channels...)

	status = label
	if engaged {
		status = STATUS_OBSTACLE
	}
	return withWriteFailure(status, err), err
}

// effectiveWidth is the only place a movement pulse width is decided. An
// engaged interlock forces idle no matter what speed is commanded.
func (c *Controller) effectiveWidth() (width uint32, engaged bool) {
	if c.interlock.Engaged() {
		return SPEED_IDLE, true
	}
	return uint32(atomic.LoadInt32(&c.speed)), false
}

// apply writes width to each channel in turn. A failed channel is logged
// and reported but does not stop the remaining writes.
func (c *Controller) apply(width uint32, channels ...Channel) (err error) {
	for _, ch := range channels {
		t := c.thrusters[ch]
		if werr := c.bus.Servo(t.Pin, width); werr != nil {
			c.log.WithError(werr).WithField("channel", ch.String()).Error("pulse width write failed")
			if err == nil {
				err = &WriteError{Channel: ch, Cause: werr}
			}
		}
	}
	return
}

func withWriteFailure(status string, err error) string {
	if err == nil {
		return status
	}

	var werr *WriteError
	if errors.As(err, &werr) {
		return fmt.Sprintf("%s (write failed on %s)", status, werr.Channel)
	}
	return fmt.Sprintf("%s (write failed)", status)
}
