// Package gwvar publishes process variables with expvar, served at /debug/vars by the pprof server.
package gwvar

import "expvar"

// Bool is a boolean expvar
type Bool struct {
	val *expvar.Int
}

// NewBool creates and publishes a Bool
func NewBool(name string) *Bool {
	return &Bool{
		val: expvar.NewInt(name),
	}
}

func (b *Bool) Value() bool {
	return b.val.Value() > 0
}

func (b *Bool) Set(v bool) {
	if v {
		b.val.Set(1)
	} else {
		b.val.Set(0)
	}
}

var (
	// IsServiceReady is true while the room service loop is running
	IsServiceReady = NewBool("IsServiceReady")
	// RoomCount is the number of rooms hosted by the process
	RoomCount = expvar.NewInt("RoomCount")
	// ClientCount is the number of clients in rooms of the process
	ClientCount = expvar.NewInt("ClientCount")
)
