package gwutils

import (
	"fmt"
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestRunPanicless(t *testing.T) {
	assert.T(t, RunPanicless(func() {
		panic(1)
	}), "should report panic")
	assert.T(t, RunPanicless(func() {
		panic(fmt.Errorf("bad"))
	}), "should report panic")
	assert.T(t, !RunPanicless(func() {}), "should not report panic")
}

func TestRepeatUntilPanicless(t *testing.T) {
	n := 0
	RepeatUntilPanicless(func() {
		n += 1
		if n < 3 {
			panic(n)
		}
	})
	assert.Equal(t, 3, n)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, ClampInt(-3, 0, 10))
	assert.Equal(t, 10, ClampInt(11, 0, 10))
	assert.Equal(t, 5, ClampInt(5, 0, 10))
	assert.Equal(t, 1.0, ClampFloat(2.5, 0, 1))
	assert.Equal(t, 0.0, ClampFloat(-0.1, 0, 1))
}

func TestUnixMillis(t *testing.T) {
	assert.Equal(t, int64(1500), UnixMillis(time.Unix(1, 500*int64(time.Millisecond))))
}
