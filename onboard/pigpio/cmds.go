package pigpio

// Command numbers understood by the pigpio daemon socket interface.
// Only the commands the vehicle uses are listed.
const (
	CMD_MODES = 0
	CMD_READ  = 3
	CMD_WRITE = 4
	CMD_PWM   = 5
	CMD_SERVO = 8
	CMD_HWVER = 17
	CMD_PIGPV = 26
)

// Servo pulse widths accepted by the daemon, in microseconds.
// SERVO_OFF switches pulses off entirely.
const (
	SERVO_OFF    = 0
	SERVO_MIN_US = 500
	SERVO_MAX_US = 2500
)
