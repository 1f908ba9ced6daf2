package common

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestStringSet(t *testing.T) {
	ss := StringSet{}
	ss.Add("1")
	ss.Add("2")
	assert.T(t, ss.Contains("1"), "should contain")
	assert.T(t, ss.Contains("2"), "should contain")
	ss.Remove("2")
	assert.T(t, !ss.Contains("2"), "should not contain")
	assert.Equal(t, []string{"1"}, ss.ToList())
}

func TestEntityIDSet(t *testing.T) {
	es := EntityIDSet{}
	es.Add("b")
	es.Add("a")
	es.Add("c")
	es.Del("c")
	assert.T(t, es.Contains("a"), "should contain a")
	assert.T(t, !es.Contains("c"), "should not contain c")
	assert.Equal(t, []EntityID{"a", "b"}, es.ToList())
}

func TestGenIDs(t *testing.T) {
	r1, r2 := GenRoomID(), GenRoomID()
	assert.T(t, !r1.IsNil(), "room id should not be nil")
	assert.T(t, r1 != r2, "room ids should be unique")
	assert.Equal(t, 32, len(r1))
	assert.T(t, !GenClientID().IsNil(), "client id should not be nil")
	assert.T(t, RoomID("").IsNil(), "empty room id is nil")
	assert.T(t, EntityID("").IsNil(), "empty entity id is nil")
}

func TestVector3(t *testing.T) {
	a := Vector3{0, 0, 0}
	b := Vector3{3, 4, 0}
	assert.Equal(t, Coord(5), a.DistanceTo(b))
	assert.Equal(t, Coord(25), a.DistanceSqTo(b))
	assert.Equal(t, Vector3{1.5, 2, 0}, a.Lerp(b, 0.5))
	assert.Equal(t, Yaw(45), LerpYaw(0, 90, 0.5))
	assert.Equal(t, map[string]interface{}{"x": 3.0, "y": 4.0, "z": 0.0}, b.ToMap())
}
