package drive

import "sync/atomic"

// Interlock is the shared obstacle flag. Ranging subsystems and
// simulators set it; every movement command reads it. The zero value is
// clear and ready for use.
type Interlock struct {
	engaged int32
}

func (i *Interlock) Set(engaged bool) {
	var v int32
	if engaged {
		v = 1
	}
	atomic.StoreInt32(&i.engaged, v)
}

func (i *Interlock) Engaged() bool {
	return atomic.LoadInt32(&i.engaged) == 1
}
