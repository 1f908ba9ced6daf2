package interest

import (
	"strings"

	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/gwlog"
)

// Policy is the relevance policy used by rooms
type Policy interface {
	UpdateEntity(id common.EntityID, pos common.Vector3)
	RemoveEntity(id common.EntityID)
	GetRelevantEntities(observerID common.EntityID, pos common.Vector3, radius float64) []common.EntityID
}

// NewPolicy creates the relevance policy by mode name: "grid" (default) or "aoi"
func NewPolicy(mode string, cellSize float64, defaultRadius float64) Policy {
	switch strings.ToLower(mode) {
	case "", "grid":
		return NewFilter(cellSize, defaultRadius)
	case "aoi":
		return NewAOITracker(defaultRadius, nil)
	default:
		gwlog.Errorf("unknown interest mode: %s, using grid", mode)
		return NewFilter(cellSize, defaultRadius)
	}
}
