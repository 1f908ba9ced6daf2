package interest

import (
	"github.com/xiaonanln/go-aoi"
	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/gwlog"
)

// AOIListener receives neighbor changes of tracked entities
type AOIListener interface {
	OnEnterAOI(observer common.EntityID, other common.EntityID)
	OnLeaveAOI(observer common.EntityID, other common.EntityID)
}

type aoiEntity struct {
	id      common.EntityID
	aoi     aoi.AOI
	tracker *AOITracker
}

func (e *aoiEntity) OnEnterAOI(otherAoi *aoi.AOI) {
	e.tracker.link(e.id, otherAoi.Data.(*aoiEntity).id)
}

func (e *aoiEntity) OnLeaveAOI(otherAoi *aoi.AOI) {
	e.tracker.unlink(e.id, otherAoi.Data.(*aoiEntity).id)
}

// AOITracker keeps neighbor sets on the XZ plane with an XZ sweep list AOI manager.
//
// All entities share one AOI distance, so the neighbor relation is symmetric and is
// maintained for both sides whichever side the manager reports.
type AOITracker struct {
	mgr       aoi.AOIManager
	distance  float64
	entities  map[common.EntityID]*aoiEntity
	neighbors map[common.EntityID]common.EntityIDSet
	listener  AOIListener
}

// NewAOITracker creates an AOITracker with the given AOI distance, listener can be nil
func NewAOITracker(distance float64, listener AOIListener) *AOITracker {
	return &AOITracker{
		mgr:       aoi.NewXZListAOIManager(aoi.Coord(distance)),
		distance:  distance,
		entities:  map[common.EntityID]*aoiEntity{},
		neighbors: map[common.EntityID]common.EntityIDSet{},
		listener:  listener,
	}
}

func (t *AOITracker) link(a, b common.EntityID) {
	t.addNeighbor(a, b)
	t.addNeighbor(b, a)
}

func (t *AOITracker) unlink(a, b common.EntityID) {
	t.delNeighbor(a, b)
	t.delNeighbor(b, a)
}

func (t *AOITracker) addNeighbor(observer, other common.EntityID) {
	ns := t.neighbors[observer]
	if ns == nil || ns.Contains(other) {
		return
	}
	ns.Add(other)
	if t.listener != nil {
		t.listener.OnEnterAOI(observer, other)
	}
}

func (t *AOITracker) delNeighbor(observer, other common.EntityID) {
	ns := t.neighbors[observer]
	if !ns.Contains(other) {
		return
	}
	ns.Del(other)
	if t.listener != nil {
		t.listener.OnLeaveAOI(observer, other)
	}
}

// Enter starts tracking the entity at pos, or moves it if already tracked
func (t *AOITracker) Enter(id common.EntityID, pos common.Vector3) {
	if _, ok := t.entities[id]; ok {
		t.Move(id, pos)
		return
	}

	e := &aoiEntity{id: id, tracker: t}
	aoi.InitAOI(&e.aoi, aoi.Coord(t.distance), e, e)
	t.entities[id] = e
	t.neighbors[id] = common.EntityIDSet{}
	t.mgr.Enter(&e.aoi, aoi.Coord(pos.X), aoi.Coord(pos.Z))
}

// Move updates the position of a tracked entity
func (t *AOITracker) Move(id common.EntityID, pos common.Vector3) {
	e, ok := t.entities[id]
	if !ok {
		gwlog.Warnf("AOITracker.Move: entity %s is not tracked", id)
		return
	}
	t.mgr.Moved(&e.aoi, aoi.Coord(pos.X), aoi.Coord(pos.Z))
}

// Leave stops tracking the entity
func (t *AOITracker) Leave(id common.EntityID) {
	e, ok := t.entities[id]
	if !ok {
		return
	}
	t.mgr.Leave(&e.aoi)
	// drop whatever the manager did not report
	for other := range t.neighbors[id] {
		t.unlink(id, other)
	}
	delete(t.entities, id)
	delete(t.neighbors, id)
}

// Neighbors returns the current neighbors of the entity
func (t *AOITracker) Neighbors(id common.EntityID) common.EntityIDSet {
	return t.neighbors[id]
}

// IsNeighbor checks if other is a neighbor of id
func (t *AOITracker) IsNeighbor(id common.EntityID, other common.EntityID) bool {
	return t.neighbors[id].Contains(other)
}

// UpdateEntity implements Policy
func (t *AOITracker) UpdateEntity(id common.EntityID, pos common.Vector3) {
	t.Enter(id, pos)
}

// RemoveEntity implements Policy
func (t *AOITracker) RemoveEntity(id common.EntityID) {
	t.Leave(id)
}

// GetRelevantEntities implements Policy: the observer itself plus its AOI neighbors.
// The radius is fixed by the tracker's AOI distance.
func (t *AOITracker) GetRelevantEntities(observerID common.EntityID, pos common.Vector3, radius float64) []common.EntityID {
	ns, ok := t.neighbors[observerID]
	if !ok {
		return []common.EntityID{}
	}
	res := append([]common.EntityID{observerID}, ns.ToList()...)
	return res
}
