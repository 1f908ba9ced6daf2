package roomsvc

import (
	"fmt"
	"sort"

	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/config"
	"github.com/xiaonanln/worldsync/engine/gwlog"
	"github.com/xiaonanln/worldsync/engine/interest"
)

// Room is one room shard hosted by the RoomService
type Room struct {
	ID       common.RoomID
	Zone     string
	policy   interest.Policy
	radius   float64
	entities map[common.EntityID]*Entity
	views    map[common.ClientID]*ClientView
}

func newRoom(id common.RoomID, zone string, cfg *config.InterestConfig) *Room {
	return &Room{
		ID:       id,
		Zone:     zone,
		policy:   interest.NewPolicy(cfg.Mode, cfg.CellSize, cfg.DefaultRadius),
		radius:   cfg.DefaultRadius,
		entities: map[common.EntityID]*Entity{},
		views:    map[common.ClientID]*ClientView{},
	}
}

func (r *Room) String() string {
	return fmt.Sprintf("Room<%s|%s>", r.ID, r.Zone)
}

// PlayerCount returns the number of clients in the room
func (r *Room) PlayerCount() int {
	return len(r.views)
}

// EntityCount returns the number of entities in the room
func (r *Room) EntityCount() int {
	return len(r.entities)
}

// Entity returns the entity by ID, or nil
func (r *Room) Entity(id common.EntityID) *Entity {
	return r.entities[id]
}

// View returns the view of the client, or nil
func (r *Room) View(clientID common.ClientID) *ClientView {
	return r.views[clientID]
}

// SpawnEntity creates the entity, or updates it if it exists
func (r *Room) SpawnEntity(id common.EntityID, pos common.Vector3, rot common.Yaw, attrs map[string]interface{}) *Entity {
	e := r.entities[id]
	if e == nil {
		e = &Entity{
			ID:    id,
			Attrs: map[string]interface{}{},
		}
		r.entities[id] = e
		gwlog.Debugf("%s: spawned %s", r, id)
	}
	for key, val := range attrs {
		r.setAttr(e, key, val)
	}
	e.Position = pos
	e.Rotation = rot
	r.policy.UpdateEntity(id, pos)
	return e
}

// MoveEntity sets the position and rotation of the entity
func (r *Room) MoveEntity(id common.EntityID, pos common.Vector3, rot common.Yaw) bool {
	e := r.entities[id]
	if e == nil {
		return false
	}
	e.Position = pos
	e.Rotation = rot
	r.policy.UpdateEntity(id, pos)
	return true
}

// SetAttr sets an attribute of the entity, nil value deletes the attribute
func (r *Room) SetAttr(id common.EntityID, key string, val interface{}) bool {
	e := r.entities[id]
	if e == nil {
		return false
	}
	return r.setAttr(e, key, val)
}

func (r *Room) setAttr(e *Entity, key string, val interface{}) bool {
	if !validAttrKey(key) {
		gwlog.Warnf("%s: invalid attr key %q of %s", r, key, e.ID)
		return false
	}
	if val == nil {
		delete(e.Attrs, key)
	} else {
		e.Attrs[key] = val
	}
	return true
}

// DespawnEntity removes the entity and tells every client that has seen it
func (r *Room) DespawnEntity(id common.EntityID) {
	if _, ok := r.entities[id]; !ok {
		return
	}
	delete(r.entities, id)
	r.policy.RemoveEntity(id)
	for _, v := range r.sortedViews() {
		v.leave(id)
	}
	gwlog.Debugf("%s: despawned %s", r, id)
}

func (r *Room) sortedViews() []*ClientView {
	views := make([]*ClientView, 0, len(r.views))
	for _, v := range r.views {
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].ClientID() < views[j].ClientID()
	})
	return views
}
