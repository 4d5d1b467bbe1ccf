package drive

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

type servoWrite struct {
	Pin   uint32
	Width uint32
}

// fakeBus records servo writes and can simulate per pin failures.
type fakeBus struct {
	mu      sync.Mutex
	widths  map[uint32]uint32
	writes  []servoWrite
	failPin map[uint32]bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		widths:  make(map[uint32]uint32),
		failPin: make(map[uint32]bool),
	}
}

func (b *fakeBus) Servo(gpio, pulseWidth uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failPin[gpio] {
		return errors.New("simulated write failure")
	}

	b.widths[gpio] = pulseWidth
	b.writes = append(b.writes, servoWrite{gpio, pulseWidth})
	return nil
}

func (b *fakeBus) width(gpio uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.widths[gpio]
}

func (b *fakeBus) writeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.writes)
}

func (b *fakeBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = nil
}

var testPins = [NUM_CHANNELS]uint32{12, 13, 18, 19}

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestController() (bus *fakeBus, interlock *Interlock, c *Controller) {
	bus = newFakeBus()
	interlock = new(Interlock)
	c = NewController(bus, testPins, interlock, testLog())
	return
}

func TestMovementCommands(t *testing.T) {
	bus, _, c := newTestController()

	Convey("forward drives both horizontal thrusters at the default speed", t, func() {
		bus.reset()
		status, err := c.Forward()
		So(err, ShouldBeNil)
		So(status, ShouldEqual, STATUS_FORWARD)
		So(bus.writeCount(), ShouldEqual, 2)
		So(bus.width(12), ShouldEqual, SPEED_DEFAULT)
		So(bus.width(18), ShouldEqual, SPEED_DEFAULT)
	})

	Convey("ascend drives both vertical thrusters", t, func() {
		bus.reset()
		status, err := c.Ascend()
		So(err, ShouldBeNil)
		So(status, ShouldEqual, STATUS_ASCEND)
		So(bus.writeCount(), ShouldEqual, 2)
		So(bus.width(13), ShouldEqual, SPEED_DEFAULT)
		So(bus.width(19), ShouldEqual, SPEED_DEFAULT)
	})

	Convey("turning drives a single horizontal thruster", t, func() {
		Convey("left uses starboard only", func() {
			bus.reset()
			status, err := c.TurnLeft()
			So(err, ShouldBeNil)
			So(status, ShouldEqual, STATUS_TURN_LEFT)
			So(bus.writeCount(), ShouldEqual, 1)
			So(bus.width(18), ShouldEqual, SPEED_DEFAULT)
		})

		Convey("right uses port only", func() {
			bus.reset()
			status, err := c.TurnRight()
			So(err, ShouldBeNil)
			So(status, ShouldEqual, STATUS_TURN_RIGHT)
			So(bus.writeCount(), ShouldEqual, 1)
			So(bus.width(12), ShouldEqual, SPEED_DEFAULT)
		})
	})

	Convey("stop idles every channel and can be repeated", t, func() {
		bus.reset()
		status, err := c.Stop()
		So(err, ShouldBeNil)
		So(status, ShouldEqual, STATUS_STOPPED)
		So(bus.writeCount(), ShouldEqual, 4)
		for _, pin := range testPins {
			So(bus.width(pin), ShouldEqual, SPEED_IDLE)
		}

		status, err = c.Stop()
		So(err, ShouldBeNil)
		So(status, ShouldEqual, STATUS_STOPPED)
	})
}

func TestCommandedSpeed(t *testing.T) {
	bus, _, c := newTestController()

	Convey("a set speed persists across movement commands", t, func() {
		status, err := c.SetSpeed(1500)
		So(err, ShouldBeNil)
		So(status, ShouldEqual, "Motor speed set to 1500")
		So(c.Speed(), ShouldEqual, 1500)

		c.Forward()
		So(bus.width(12), ShouldEqual, 1500)

		c.Ascend()
		So(bus.width(13), ShouldEqual, 1500)

		c.TurnLeft()
		So(bus.width(18), ShouldEqual, 1500)
	})

	Convey("both ends of the servo range are stored as given", t, func() {
		status, _ := c.SetSpeed(SPEED_IDLE)
		So(status, ShouldEqual, "Motor speed set to 800")
		So(c.Speed(), ShouldEqual, SPEED_IDLE)

		status, _ = c.SetSpeed(SPEED_MAX)
		So(status, ShouldEqual, "Motor speed set to 1800")
		So(c.Speed(), ShouldEqual, SPEED_MAX)
	})
}

func TestObstacleInterlock(t *testing.T) {
	bus, interlock, c := newTestController()

	Convey("an engaged interlock forces every movement to idle", t, func() {
		for _, speed := range []int{SPEED_IDLE, 1200, 1437, SPEED_MAX} {
			c.SetSpeed(speed)
			interlock.Set(true)

			bus.reset()
			status, err := c.Forward()
			So(err, ShouldBeNil)
			So(status, ShouldEqual, STATUS_OBSTACLE)
			So(bus.width(12), ShouldEqual, SPEED_IDLE)
			So(bus.width(18), ShouldEqual, SPEED_IDLE)

			status, _ = c.Ascend()
			So(status, ShouldEqual, STATUS_OBSTACLE)
			So(bus.width(13), ShouldEqual, SPEED_IDLE)
			So(bus.width(19), ShouldEqual, SPEED_IDLE)

			status, _ = c.TurnLeft()
			So(status, ShouldEqual, STATUS_OBSTACLE)
			So(bus.width(18), ShouldEqual, SPEED_IDLE)

			status, _ = c.TurnRight()
			So(status, ShouldEqual, STATUS_OBSTACLE)
			So(bus.width(12), ShouldEqual, SPEED_IDLE)
		}
	})

	Convey("clearing the flag restores the commanded speed unchanged", t, func() {
		c.SetSpeed(1600)
		interlock.Set(true)
		c.Forward()
		So(bus.width(12), ShouldEqual, SPEED_IDLE)

		interlock.Set(false)
		status, err := c.Forward()
		So(err, ShouldBeNil)
		So(status, ShouldEqual, STATUS_FORWARD)
		So(bus.width(12), ShouldEqual, 1600)
		So(bus.width(18), ShouldEqual, 1600)
	})

	Convey("stop behaves the same with the flag raised", t, func() {
		interlock.Set(true)
		status, err := c.Stop()
		So(err, ShouldBeNil)
		So(status, ShouldEqual, STATUS_STOPPED)
		for _, pin := range testPins {
			So(bus.width(pin), ShouldEqual, SPEED_IDLE)
		}
		interlock.Set(false)
	})
}

func TestWriteFailures(t *testing.T) {
	bus, _, c := newTestController()

	Convey("a failed channel is reported without aborting the rest", t, func() {
		bus.failPin[12] = true
		bus.reset()

		status, err := c.Forward()
		So(err, ShouldNotBeNil)
		So(status, ShouldContainSubstring, "write failed on port_horizontal")

		// the starboard write still happened
		So(bus.width(18), ShouldEqual, SPEED_DEFAULT)

		var werr *WriteError
		So(errors.As(err, &werr), ShouldBeTrue)
		So(werr.Channel, ShouldEqual, PORT_HORIZONTAL)
		So(werr.Unwrap(), ShouldNotBeNil)
	})

	Convey("stop reports the failure but idles the remaining channels", t, func() {
		status, err := c.Stop()
		So(err, ShouldNotBeNil)
		So(status, ShouldContainSubstring, STATUS_STOPPED)
		So(bus.width(13), ShouldEqual, SPEED_IDLE)
		So(bus.width(18), ShouldEqual, SPEED_IDLE)
		So(bus.width(19), ShouldEqual, SPEED_IDLE)
	})
}

func TestInterlockFlag(t *testing.T) {
	Convey("the zero value is clear and transitions are visible", t, func() {
		i := new(Interlock)
		So(i.Engaged(), ShouldBeFalse)

		i.Set(true)
		So(i.Engaged(), ShouldBeTrue)

		i.Set(false)
		So(i.Engaged(), ShouldBeFalse)
	})

	Convey("concurrent producers do not race the readers", t, func() {
		i := new(Interlock)
		var wg sync.WaitGroup
		for n := 0; n < 8; n++ {
			wg.Add(1)
			go func(engaged bool) {
				defer wg.Done()
				for j := 0; j < 1000; j++ {
					i.Set(engaged)
					i.Engaged()
				}
			}(n%2 == 0)
		}
		wg.Wait()
		// either terminal state is fine, the point is the race detector
		So(i.Engaged(), ShouldBeIn, true, false)
	})
}
