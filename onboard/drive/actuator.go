package drive

// Channel identifies one thruster position on the frame. The ordering
// matches the rig config and must not change; movement commands target
// channels by role.
type Channel int

const (
	PORT_HORIZONTAL Channel = iota
	PORT_VERTICAL
	STARBOARD_HORIZONTAL
	STARBOARD_VERTICAL

	NUM_CHANNELS
)

var channelNames = [NUM_CHANNELS]string{
	"port_horizontal",
	"port_vertical",
	"starboard_horizontal",
	"starboard_vertical",
}

func (c Channel) String() string {
	if c < 0 || c >= NUM_CHANNELS {
		return "unknown"
	}
	return channelNames[c]
}

// ActuatorBus writes servo pulse widths to physical outputs. The real
// implementation is pigpio.Client; the simulator and tests provide their
// own.
type ActuatorBus interface {
	Servo(gpio, pulseWidth uint32) error
}

// Thruster couples a channel role to the GPIO pin driving its ESC.
type Thruster struct {
	Channel Channel
	Pin     uint32
}
