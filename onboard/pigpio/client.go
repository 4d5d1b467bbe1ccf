package pigpio

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	DEFAULT_ADDR = "127.0.0.1:8888"

	DIAL_TIMEOUT = time.Second
	CMD_TIMEOUT  = 500 * time.Millisecond
)

// cmdFrame is the fixed 16 byte little endian frame the daemon speaks.
// Requests carry p3 in the final word; responses echo the frame with the
// signed result there instead.
type cmdFrame struct {
	Cmd uint32
	P1  uint32
	P2  uint32
	P3  uint32
}

// ResultError reports a negative result code returned by the daemon.
type ResultError struct {
	Cmd  uint32
	Code int32
}

func (e ResultError) Error() string {
	return fmt.Sprintf("pigpiod command %d failed with code %d", e.Cmd, e.Code)
}

// ClientInterface covers the daemon operations the vehicle relies on.
// Satisfied by Client and by test fakes.
type ClientInterface interface {
	Servo(gpio, pulseWidth uint32) error
	Version() (uint32, error)
	HardwareRevision() (uint32, error)
	Close() error
}

// Client is a connection to a pigpio daemon. A single request/response
// exchange is in flight at a time; the lock makes it safe to share.
type Client struct {
	conn net.Conn
	lock sync.Mutex
}

// NewClient dials the daemon and confirms it answers a version query.
// An empty addr falls back to the daemon's default port on localhost.
func NewClient(addr string) (c *Client, err error) {
	if addr == "" {
		addr = DEFAULT_ADDR
	}

	conn, err := net.DialTimeout("tcp", addr, DIAL_TIMEOUT)
	if err != nil {
		return nil, fmt.Errorf("unable to reach pigpiod at %s: %w", addr, err)
	}

	c = &Client{conn: conn}

	if _, err = c.Version(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pigpiod handshake failed: %w", err)
	}

	return c, nil
}

// exchange performs one round trip on the socket.
func (c *Client) exchange(cmd, p1, p2, p3 uint32) (res int32, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.conn.SetDeadline(time.Now().Add(CMD_TIMEOUT))

	frame := cmdFrame{Cmd: cmd, P1: p1, P2: p2, P3: p3}
	if err = binary.Write(c.conn, binary.LittleEndian, &frame); err != nil {
		return 0, fmt.Errorf("pigpiod write: %w", err)
	}

	var resp cmdFrame
	if err = binary.Read(c.conn, binary.LittleEndian, &resp); err != nil {
		return 0, fmt.Errorf("pigpiod read: %w", err)
	}

	res = int32(resp.P3)
	if res < 0 {
		return res, ResultError{Cmd: cmd, Code: res}
	}

	return res, nil
}

// Servo starts servo pulses of the given width on a GPIO. A width of
// SERVO_OFF stops the pulses; any other value must lie within
// [SERVO_MIN_US, SERVO_MAX_US] or the command is rejected before it
// reaches the wire.
func (c *Client) Servo(gpio, pulseWidth uint32) error {
	if pulseWidth != SERVO_OFF && (pulseWidth < SERVO_MIN_US || pulseWidth > SERVO_MAX_US) {
		return fmt.Errorf("servo pulse width %dus out of range [%d, %d]", pulseWidth, SERVO_MIN_US, SERVO_MAX_US)
	}

	_, err := c.exchange(CMD_SERVO, gpio, pulseWidth, 0)
	return err
}

// Version reports the daemon software version.
func (c *Client) Version() (uint32, error) {
	res, err := c.exchange(CMD_PIGPV, 0, 0, 0)
	return uint32(res), err
}

// HardwareRevision reports the board revision the daemon is running on.
func (c *Client) HardwareRevision() (uint32, error) {
	res, err := c.exchange(CMD_HWVER, 0, 0, 0)
	return uint32(res), err
}

func (c *Client) Close() error {
	return c.conn.Close()
}
