package comms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fantastic4/urov/calcs"
	"github.com/fantastic4/urov/onboard"
	"github.com/fantastic4/urov/onboard/drive"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	STATE_PUSH_INTERVAL  = time.Second
	CLIENT_WRITE_TIMEOUT = 2 * time.Second
)

// StatePublisher receives every snapshot the conductor builds. The MQTT
// bridge implements it; tests substitute their own.
type StatePublisher interface {
	PublishState(state StatePayload)
}

// Conductor sits between the operator surfaces and the vehicle. It
// translates commands, fans state out to websocket clients and hands
// snapshots to the telemetry publisher.
type Conductor struct {
	Device    onboard.Vehicle
	Publisher StatePublisher
	Log       *logrus.Entry

	mu         sync.Mutex
	clients    map[*websocket.Conn]bool
	lastStatus string
}

func NewConductor(device onboard.Vehicle, log *logrus.Entry) *Conductor {
	return &Conductor{
		Device:  device,
		Log:     log,
		clients: make(map[*websocket.Conn]bool),
	}
}

// ProcessCommand routes a command to the vehicle and returns its status
// line. Speed values are clamped to the servo range here, before they
// reach the vehicle. Unknown commands are an error and touch nothing.
func (c *Conductor) ProcessCommand(cmd Cmd) (status string, err error) {
	switch cmd.Cmd {
	case "forward":
		status, err = c.Device.Forward()
	case "ascend":
		status, err = c.Device.Ascend()
	case "turn_left":
		status, err = c.Device.TurnLeft()
	case "turn_right":
		status, err = c.Device.TurnRight()
	case "stop":
		status, err = c.Device.Stop()
	case "set_speed":
		status, err = c.Device.SetSpeed(calcs.Clamp(int(cmd.Value), drive.SPEED_IDLE, drive.SPEED_MAX))
	case "save_temp_log":
		status, err = c.Device.SaveTemperatureLog()
	case "press":
		status, err = c.Device.Press(drive.Control(cmd.Name))
	case "release":
		status, err = c.Device.Release(drive.Control(cmd.Name))
	default:
		return "", fmt.Errorf("unable to process command %q", cmd.Cmd)
	}

	if status != "" {
		c.mu.Lock()
		c.lastStatus = status
		c.mu.Unlock()
	}

	return
}

// ProcessControl turns a raw input edge into the matching vehicle call.
func (c *Conductor) ProcessControl(event ControlEvent) (string, error) {
	switch event.Event {
	case "press", "release":
		return c.ProcessCommand(Cmd{Cmd: event.Event, Name: event.Control})
	default:
		return "", fmt.Errorf("unknown control event %q", event.Event)
	}
}

func (c *Conductor) AddClient(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[conn] = true
}

func (c *Conductor) RemoveClient(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, conn)
}

// Snapshot builds the current state payload, tagged with the status of
// the last command that produced one.
func (c *Conductor) Snapshot() StatePayload {
	c.mu.Lock()
	status := c.lastStatus
	c.mu.Unlock()

	return StatePayload{
		VehicleState: c.Device.State(),
		Status:       status,
		Time:         time.Now().Unix(),
	}
}

// UpdateClients pushes the vehicle state to every connected client and
// the telemetry publisher once a second until ctx is cancelled.
func (c *Conductor) UpdateClients(ctx context.Context) {
	ticker := time.NewTicker(STATE_PUSH_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.PushState()
		}
	}
}

// PushState sends one snapshot to every client and the publisher.
// Writes happen outside the conductor lock and under a deadline, so a
// client that stops reading never stalls command processing; clients
// that miss the deadline are dropped.
func (c *Conductor) PushState() {
	state := c.Snapshot()

	c.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(c.clients))
	for conn := range c.clients {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(CLIENT_WRITE_TIMEOUT))
		if err := conn.WriteJSON(state); err != nil {
			c.Log.WithError(err).Debug("dropping state client")
			c.RemoveClient(conn)
			conn.Close()
		}
	}

	if c.Publisher != nil {
		c.Publisher.PublishState(state)
	}
}
