package interest

import (
	"sort"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/worldsync/engine/common"
)

func sorted(ids []common.EntityID) []common.EntityID {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids
}

func TestFilter_Relevance(t *testing.T) {
	f := NewFilter(10, 50)
	f.UpdateEntity("near", common.Vector3{X: 10})
	f.UpdateEntity("far", common.Vector3{X: 100})
	f.UpdateEntity("edge", common.Vector3{Z: 50})

	observerPos := common.Vector3{}
	res := sorted(f.GetRelevantEntities("observer", observerPos, 0))
	assert.Equal(t, []common.EntityID{"edge", "near"}, res)

	assert.T(t, f.ShouldSendUpdate("near", "observer", observerPos, 0), "near should be relevant")
	assert.T(t, !f.ShouldSendUpdate("far", "observer", observerPos, 0), "far should not be relevant")
	assert.T(t, f.ShouldSendUpdate("far", "observer", observerPos, 200), "far is relevant with a larger radius")

	f.UpdateEntity("far", common.Vector3{X: 20})
	assert.T(t, f.ShouldSendUpdate("far", "observer", observerPos, 0), "far moved in range")

	f.RemoveEntity("near")
	assert.T(t, !f.ShouldSendUpdate("near", "observer", observerPos, 0), "near was removed")
	assert.Equal(t, 2, f.Stats().Entities)

	pos, ok := f.Position("far")
	assert.T(t, ok, "far should be indexed")
	assert.Equal(t, common.Coord(20), pos.X)

	f.Clear()
	assert.Equal(t, 0, len(f.GetRelevantEntities("observer", observerPos, 1000)))
}

func TestFilter_DefaultRadius(t *testing.T) {
	f := NewFilter(10, 0)
	assert.Equal(t, 50.0, f.DefaultRadius())
}

type recordingListener struct {
	enters map[[2]common.EntityID]int
	leaves map[[2]common.EntityID]int
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		enters: map[[2]common.EntityID]int{},
		leaves: map[[2]common.EntityID]int{},
	}
}

func (l *recordingListener) OnEnterAOI(observer common.EntityID, other common.EntityID) {
	l.enters[[2]common.EntityID{observer, other}] += 1
}

func (l *recordingListener) OnLeaveAOI(observer common.EntityID, other common.EntityID) {
	l.leaves[[2]common.EntityID{observer, other}] += 1
}

func TestAOITracker_EnterLeave(t *testing.T) {
	l := newRecordingListener()
	tracker := NewAOITracker(50, l)

	tracker.Enter("a", common.Vector3{})
	tracker.Enter("b", common.Vector3{X: 10, Z: 10})
	assert.T(t, tracker.IsNeighbor("a", "b"), "a should see b")
	assert.T(t, tracker.IsNeighbor("b", "a"), "b should see a")
	assert.Equal(t, 1, l.enters[[2]common.EntityID{"a", "b"}])
	assert.Equal(t, 1, l.enters[[2]common.EntityID{"b", "a"}])

	tracker.Move("b", common.Vector3{X: 500, Z: 500})
	assert.T(t, !tracker.IsNeighbor("a", "b"), "a should not see b any more")
	assert.Equal(t, 1, l.leaves[[2]common.EntityID{"a", "b"}])
	assert.Equal(t, 1, l.leaves[[2]common.EntityID{"b", "a"}])

	tracker.Move("b", common.Vector3{X: 5})
	assert.T(t, tracker.IsNeighbor("a", "b"), "a should see b again")

	tracker.Leave("b")
	assert.T(t, !tracker.IsNeighbor("a", "b"), "b left")
	assert.Equal(t, 0, len(tracker.Neighbors("a")))
	assert.Equal(t, 2, l.leaves[[2]common.EntityID{"a", "b"}])

	// unknown entities are ignored
	tracker.Move("ghost", common.Vector3{})
	tracker.Leave("ghost")
}

func TestAOITracker_Policy(t *testing.T) {
	var p Policy = NewPolicy("aoi", 10, 30)
	p.UpdateEntity("a", common.Vector3{})
	p.UpdateEntity("b", common.Vector3{X: 20})
	p.UpdateEntity("c", common.Vector3{X: 200})

	assert.Equal(t, []common.EntityID{"a", "b"}, p.GetRelevantEntities("a", common.Vector3{}, 0))
	assert.Equal(t, []common.EntityID{"c"}, p.GetRelevantEntities("c", common.Vector3{X: 200}, 0))
	assert.Equal(t, 0, len(p.GetRelevantEntities("unknown", common.Vector3{}, 0)))

	p.RemoveEntity("b")
	assert.Equal(t, []common.EntityID{"a"}, p.GetRelevantEntities("a", common.Vector3{}, 0))
}

func TestNewPolicy(t *testing.T) {
	_, ok := NewPolicy("", 10, 30).(*Filter)
	assert.T(t, ok, "default policy should be the grid filter")
	_, ok = NewPolicy("bogus", 10, 30).(*Filter)
	assert.T(t, ok, "unknown policy falls back to the grid filter")
	_, ok = NewPolicy("AOI", 10, 30).(*AOITracker)
	assert.T(t, ok, "aoi policy should be the tracker")
}
