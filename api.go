package main

import (
	"errors"
	"net/http"

	"github.com/fantastic4/urov/comms"
	"github.com/go-chi/render"
)

//---
// Payloads
//---

// Command payload, one operator command for the vehicle
type CommandPayload struct {
	comms.Cmd
}

func (c *CommandPayload) Bind(r *http.Request) error {
	if c.Cmd.Cmd == "" {
		return errors.New("cmd is required")
	}
	return nil
}

// StatusResponse carries the vehicle status line for a processed command
type StatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

//---
// Views
//---

// CommandHandler runs a single command against the vehicle and returns
// its status line
func CommandHandler(w http.ResponseWriter, r *http.Request) {
	data := &CommandPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	status, err := ENV.Conductor.ProcessCommand(data.Cmd)
	if err != nil {
		if status == "" {
			// the command never reached the vehicle
			render.Render(w, r, ErrInvalidRequest(err))
			return
		}

		// the command ran but hardware complained, report both
		render.JSON(w, r, StatusResponse{Status: status, Error: err.Error()})
		return
	}

	render.JSON(w, r, StatusResponse{Status: status})
}

// StateHandler returns the current vehicle snapshot
func StateHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, ENV.Conductor.Snapshot())
}
