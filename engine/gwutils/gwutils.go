package gwutils

import (
	"time"

	"github.com/xiaonanln/worldsync/engine/gwlog"
)

// RunPanicless calls a function panic-freely
func RunPanicless(f func()) (paniced bool) {
	defer func() {
		err := recover()
		if err != nil {
			gwlog.TraceError("%p panic: %v", f, err)
			paniced = true
		}
	}()

	f()
	return
}

// RepeatUntilPanicless runs the function repeatly until there is no panic
func RepeatUntilPanicless(f func()) {
	for !RunPanicless(f) {
	}
}

// UnixMillis converts time to milliseconds since epoch
func UnixMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// ClampInt limits v into [lo, hi]
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampFloat limits v into [lo, hi]
func ClampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
