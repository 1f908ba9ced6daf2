package interpolation

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/consts"
)

func TestHalfway(t *testing.T) {
	ip := NewInterpolator(consts.INTERPOLATION_DELAY, 3)
	ip.AddSnapshot("e1", Snapshot{Timestamp: 0, Position: common.Vector3{}})
	ip.AddSnapshot("e1", Snapshot{Timestamp: 200, Position: common.Vector3{X: 2}, Rotation: 1})

	st, ok := ip.GetInterpolatedState("e1", 200)
	assert.T(t, ok, "should have state")
	assert.T(t, st.Interpolated, "should interpolate")
	assert.Equal(t, 0.5, st.T)
	assert.Equal(t, common.Vector3{X: 1}, st.Position)
	assert.Equal(t, common.Yaw(0.5), st.Rotation)
}

func TestFallbackToLatest(t *testing.T) {
	ip := NewInterpolator(consts.INTERPOLATION_DELAY, 3)
	_, ok := ip.GetInterpolatedState("nobody", 1000)
	assert.T(t, !ok, "no snapshots")

	ip.AddSnapshot("e1", Snapshot{Timestamp: 1000, Position: common.Vector3{X: 5}})
	st, ok := ip.GetInterpolatedState("e1", 1000)
	assert.T(t, ok && !st.Interpolated, "single snapshot is returned as is")
	assert.Equal(t, common.Vector3{X: 5}, st.Position)

	ip.AddSnapshot("e1", Snapshot{Timestamp: 1100, Position: common.Vector3{X: 6}})
	// target time after the newest snapshot: no extrapolation
	st, _ = ip.GetInterpolatedState("e1", 5000)
	assert.Equal(t, common.Vector3{X: 6}, st.Position)
	assert.T(t, !st.Interpolated, "should not extrapolate")
	// target time before the oldest snapshot
	st, _ = ip.GetInterpolatedState("e1", 500)
	assert.Equal(t, common.Vector3{X: 6}, st.Position)
}

func TestRingBound(t *testing.T) {
	ip := NewInterpolator(consts.INTERPOLATION_DELAY, 3)
	for i := 0; i < 10; i++ {
		ip.AddSnapshot("e1", Snapshot{Timestamp: int64(i * 100), Position: common.Vector3{X: common.Coord(i)}})
		assert.T(t, ip.Len("e1") <= 3, "ring exceeds 3")
	}
	assert.Equal(t, 3, ip.Len("e1"))
	// snapshots 7, 8, 9 are kept; target 750 lies between 7 and 8
	st, _ := ip.GetInterpolatedState("e1", 850)
	assert.Equal(t, common.Vector3{X: 7.5}, st.Position)
	// 500 was evicted
	st, _ = ip.GetInterpolatedState("e1", 600)
	assert.T(t, !st.Interpolated, "evicted range")

	ip.AddSnapshot("e1", Snapshot{Timestamp: 10, Position: common.Vector3{X: -1}})
	latest, _ := ip.Latest("e1")
	assert.Equal(t, int64(900), latest.Timestamp)

	ip.Remove("e1")
	assert.Equal(t, 0, ip.Len("e1"))
	assert.Equal(t, 0, ip.Entities())
}

func TestDuplicateTimestamps(t *testing.T) {
	ip := NewInterpolator(0, 3)
	ip.AddSnapshot("e1", Snapshot{Timestamp: 100, Position: common.Vector3{X: 1}})
	ip.AddSnapshot("e1", Snapshot{Timestamp: 100, Position: common.Vector3{X: 2}})
	st, _ := ip.GetInterpolatedState("e1", 100)
	assert.Equal(t, 1.0, st.T)
	assert.Equal(t, common.Vector3{X: 2}, st.Position)
}
