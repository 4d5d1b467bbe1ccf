package drive

import (
	"fmt"
	"sync"
)

// Control identifies a logical operator control rather than a physical
// key or button; the surface mapping keys to controls lives topside.
type Control string

const (
	CONTROL_FORWARD Control = "forward"
	CONTROL_UP      Control = "up"
	CONTROL_LEFT    Control = "left"
	CONTROL_RIGHT   Control = "right"
	CONTROL_STOP    Control = "stop"
)

// InputRouter debounces operator input events into controller calls.
// Host environments deliver repeated press events while a control is
// held; only the initial edge may reach the motors.
type InputRouter struct {
	controller *Controller

	mu      sync.Mutex
	pressed map[Control]bool
}

func NewInputRouter(c *Controller) *InputRouter {
	return &InputRouter{
		controller: c,
		pressed:    make(map[Control]bool),
	}
}

// Press handles a key down style event. Repeats while the control is
// already held return an empty status and do nothing.
func (r *InputRouter) Press(control Control) (string, error) {
	var action func() (string, error)
	switch control {
	case CONTROL_FORWARD:
		action = r.controller.Forward
	case CONTROL_UP:
		action = r.controller.Ascend
	case CONTROL_LEFT:
		action = r.controller.TurnLeft
	case CONTROL_RIGHT:
		action = r.controller.TurnRight
	case CONTROL_STOP:
		action = r.controller.Stop
	default:
		return "", fmt.Errorf("unknown control %q", control)
	}

	r.mu.Lock()
	held := r.pressed[control]
	r.pressed[control] = true
	r.mu.Unlock()

	if held {
		// auto repeat from the host environment, the edge already fired
		return "", nil
	}

	return action()
}

// Release handles a key up style event. Releasing a held directional
// control stops all motors; the stop control acts on press only, so its
// release is a no-op. Releases without a matching press are ignored.
func (r *InputRouter) Release(control Control) (string, error) {
	r.mu.Lock()
	held := r.pressed[control]
	delete(r.pressed, control)
	r.mu.Unlock()

	if !held {
		return "", nil
	}

	switch control {
	case CONTROL_FORWARD, CONTROL_UP, CONTROL_LEFT, CONTROL_RIGHT:
		return r.controller.Stop()
	}
	return "", nil
}

// Held reports whether a control is currently pressed.
func (r *InputRouter) Held(control Control) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pressed[control]
}
