package main

import (
	"net/http"

	"github.com/fantastic4/urov/comms"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ControlSocketHandler feeds press and release edges from an operator
// console into the vehicle, answering each with the resulting status.
// Controls still held when the socket goes away are released, the same
// as the operator letting go.
func ControlSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ENV.Log.WithError(err).Debug("control socket upgrade failed")
		return
	}
	defer conn.Close()

	held := make(map[string]bool)
	defer func() {
		for control := range held {
			if _, err := ENV.Conductor.ProcessControl(comms.ControlEvent{Control: control, Event: "release"}); err != nil {
				ENV.Log.WithError(err).Warn("unable to release control after socket loss")
			}
		}
	}()

	for {
		var event comms.ControlEvent
		if err := conn.ReadJSON(&event); err != nil {
			return
		}

		status, err := ENV.Conductor.ProcessControl(event)
		response := StatusResponse{Status: status}
		if err != nil {
			response.Error = err.Error()
		}

		switch event.Event {
		case "press":
			if err == nil {
				held[event.Control] = true
			}
		case "release":
			delete(held, event.Control)
		}

		if err := conn.WriteJSON(response); err != nil {
			return
		}
	}
}

// StateSocketHandler registers the client for the periodic state push
// and drains anything it sends until it goes away.
func StateSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ENV.Log.WithError(err).Debug("state socket upgrade failed")
		return
	}

	ENV.Conductor.AddClient(conn)
	defer func() {
		ENV.Conductor.RemoveClient(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
