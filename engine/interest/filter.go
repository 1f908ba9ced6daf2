package interest

import (
	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/consts"
	"github.com/xiaonanln/worldsync/engine/spatial"
)

// Filter decides which entities are relevant to an observer.
//
// The policy is purely distance based; observerID is accepted so per-observer
// rules (always visible allies etc.) can be added without changing callers.
type Filter struct {
	grid          *spatial.Grid
	defaultRadius float64
}

// NewFilter creates a Filter over a new spatial grid
func NewFilter(cellSize float64, defaultRadius float64) *Filter {
	if defaultRadius <= 0 {
		defaultRadius = consts.DEFAULT_INTEREST_RADIUS
	}
	return &Filter{
		grid:          spatial.NewGrid(cellSize),
		defaultRadius: defaultRadius,
	}
}

// DefaultRadius returns the radius used when callers pass radius <= 0
func (f *Filter) DefaultRadius() float64 {
	return f.defaultRadius
}

func (f *Filter) radius(radius float64) float64 {
	if radius <= 0 {
		return f.defaultRadius
	}
	return radius
}

// UpdateEntity inserts or moves the entity
func (f *Filter) UpdateEntity(id common.EntityID, pos common.Vector3) {
	f.grid.Insert(id, pos)
}

// RemoveEntity removes the entity
func (f *Filter) RemoveEntity(id common.EntityID) {
	f.grid.Remove(id)
}

// GetRelevantEntities returns the entities relevant to the observer at pos
func (f *Filter) GetRelevantEntities(observerID common.EntityID, pos common.Vector3, radius float64) []common.EntityID {
	return f.grid.Query(pos, f.radius(radius))
}

// ShouldSendUpdate checks if updates of entity should be sent to the observer
func (f *Filter) ShouldSendUpdate(id common.EntityID, observerID common.EntityID, pos common.Vector3, radius float64) bool {
	for _, eid := range f.GetRelevantEntities(observerID, pos, radius) {
		if eid == id {
			return true
		}
	}
	return false
}

// Position returns the indexed position of the entity
func (f *Filter) Position(id common.EntityID) (common.Vector3, bool) {
	return f.grid.Position(id)
}

// Stats returns statistics of the underlying grid
func (f *Filter) Stats() spatial.Stats {
	return f.grid.Stats()
}

// Clear removes every entity
func (f *Filter) Clear() {
	f.grid.Clear()
}
