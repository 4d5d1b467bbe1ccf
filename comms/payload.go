package comms

import (
	"github.com/fantastic4/urov/onboard"
)

// Cmd is a single operator command, whether it arrived over the REST
// surface, a websocket or the dev console.
type Cmd struct {
	Cmd   string  `json:"cmd"`
	Name  string  `json:"name,omitempty"`
	Value float64 `json:"value,omitempty"`
}

// ControlEvent is an edge from an operator input: a named control going
// down or coming back up.
type ControlEvent struct {
	Control string `json:"control"`
	Event   string `json:"event"`
}

// StatePayload is the snapshot pushed to websocket clients and onto the
// telemetry topic.
type StatePayload struct {
	onboard.VehicleState
	Status string `json:"status,omitempty"`
	Time   int64  `json:"time"`
}
