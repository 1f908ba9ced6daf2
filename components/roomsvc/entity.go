package roomsvc

import (
	"fmt"
	"strings"

	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/delta"
)

// reserved keys of entity state trees
const (
	attrPos = "pos"
	attrRot = "rot"
)

// Entity is the server side state of one entity in a room
type Entity struct {
	ID       common.EntityID
	Position common.Vector3
	Rotation common.Yaw
	Attrs    map[string]interface{}
	Owner    common.ClientID // nil for entities not controlled by a client
}

func (e *Entity) String() string {
	return fmt.Sprintf("Entity<%s|%s>", e.ID, e.Position)
}

// Tree returns the state tree of the entity sent to clients
func (e *Entity) Tree() delta.Tree {
	t := delta.Clone(e.Attrs)
	if t == nil {
		t = delta.Tree{}
	}
	t[attrPos] = e.Position.ToMap()
	t[attrRot] = float64(e.Rotation)
	return t
}

func validAttrKey(key string) bool {
	return key != "" && key != attrPos && key != attrRot && !strings.Contains(key, delta.PathSeparator)
}
