package opmon

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestOperation(t *testing.T) {
	Dump()
	for i := 0; i < 3; i++ {
		op := StartOperation("test.op")
		op.Finish(time.Second)
	}
	StartOperation("another.op").Finish(0)

	stats := Snapshot()
	assert.Equal(t, 2, len(stats))
	assert.Equal(t, "another.op", stats[0].Name)
	assert.Equal(t, "test.op", stats[1].Name)
	assert.Equal(t, uint64(3), stats[1].Count)
	assert.T(t, stats[1].Max >= stats[1].Avg, "max should be at least avg")

	Dump()
	assert.Equal(t, 0, len(Snapshot()))
}
