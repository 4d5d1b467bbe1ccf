package pigpio

import (
	"encoding/binary"
	"net"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func newPipeClient() (c *Client, server net.Conn) {
	server, conn := net.Pipe()
	return &Client{conn: conn}, server
}

// serveOne answers a single daemon exchange, echoing the request frame
// with res injected as the result word.
func serveOne(server net.Conn, res int32, got chan<- cmdFrame) {
	var frame cmdFrame
	if err := binary.Read(server, binary.LittleEndian, &frame); err != nil {
		return
	}
	got <- frame

	frame.P3 = uint32(res)
	binary.Write(server, binary.LittleEndian, &frame)
}

func TestServo(t *testing.T) {
	Convey("a servo command produces the correct frame", t, func() {
		c, server := newPipeClient()
		defer c.Close()
		defer server.Close()

		got := make(chan cmdFrame, 1)
		go serveOne(server, 0, got)

		So(c.Servo(12, 1500), ShouldBeNil)

		frame := <-got
		So(frame.Cmd, ShouldEqual, CMD_SERVO)
		So(frame.P1, ShouldEqual, 12)
		So(frame.P2, ShouldEqual, 1500)
	})

	Convey("width 0 is accepted and stops the pulses", t, func() {
		c, server := newPipeClient()
		defer c.Close()
		defer server.Close()

		got := make(chan cmdFrame, 1)
		go serveOne(server, 0, got)

		So(c.Servo(18, SERVO_OFF), ShouldBeNil)
		So((<-got).P2, ShouldEqual, 0)
	})

	Convey("out of range widths are rejected before reaching the wire", t, func() {
		c, server := newPipeClient()
		defer c.Close()
		defer server.Close()

		// no server goroutine; a wire write would block forever
		err := c.Servo(12, 300)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "out of range")

		err = c.Servo(12, 2600)
		So(err, ShouldNotBeNil)
	})

	Convey("negative result codes surface as ResultError", t, func() {
		c, server := newPipeClient()
		defer c.Close()
		defer server.Close()

		got := make(chan cmdFrame, 1)
		go serveOne(server, -93, got)

		err := c.Servo(12, 1500)
		So(err, ShouldNotBeNil)

		re, ok := err.(ResultError)
		So(ok, ShouldBeTrue)
		So(re.Code, ShouldEqual, -93)
		So(re.Cmd, ShouldEqual, CMD_SERVO)
		<-got
	})
}

func TestVersionQueries(t *testing.T) {
	Convey("version reads the daemon version word", t, func() {
		c, server := newPipeClient()
		defer c.Close()
		defer server.Close()

		got := make(chan cmdFrame, 1)
		go serveOne(server, 79, got)

		v, err := c.Version()
		So(err, ShouldBeNil)
		So(v, ShouldEqual, 79)
		So((<-got).Cmd, ShouldEqual, CMD_PIGPV)
	})

	Convey("hardware revision uses its own command", t, func() {
		c, server := newPipeClient()
		defer c.Close()
		defer server.Close()

		got := make(chan cmdFrame, 1)
		go serveOne(server, 0xa22082, got)

		rev, err := c.HardwareRevision()
		So(err, ShouldBeNil)
		So(rev, ShouldEqual, 0xa22082)
		So((<-got).Cmd, ShouldEqual, CMD_HWVER)
	})
}

func TestNewClientUnreachable(t *testing.T) {
	Convey("an unreachable daemon fails the dial", t, func() {
		// a listener that is immediately closed leaves a port nothing accepts on
		l, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)
		addr := l.Addr().String()
		l.Close()

		c, err := NewClient(addr)
		So(c, ShouldBeNil)
		So(err, ShouldNotBeNil)
	})
}
