package common

import "sort"

// EntityIDSet is the data structure for a set of entity IDs
type EntityIDSet map[EntityID]struct{}

// Add adds an entity ID to EntityIDSet
func (es EntityIDSet) Add(id EntityID) {
	es[id] = struct{}{}
}

// Del removes an entity ID from EntityIDSet
func (es EntityIDSet) Del(id EntityID) {
	delete(es, id)
}

// Contains checks if entity ID is in EntityIDSet
func (es EntityIDSet) Contains(id EntityID) bool {
	_, ok := es[id]
	return ok
}

// ToList convert EntityIDSet to a sorted slice of entity IDs
func (es EntityIDSet) ToList() []EntityID {
	list := make([]EntityID, 0, len(es))
	for eid := range es {
		list = append(list, eid)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i] < list[j]
	})
	return list
}

// RoomIDSet is a set of room IDs
type RoomIDSet map[RoomID]struct{}

// Add adds a room ID to RoomIDSet
func (rs RoomIDSet) Add(id RoomID) {
	rs[id] = struct{}{}
}

// Del removes a room ID from RoomIDSet
func (rs RoomIDSet) Del(id RoomID) {
	delete(rs, id)
}

// Contains checks if room ID is in RoomIDSet
func (rs RoomIDSet) Contains(id RoomID) bool {
	_, ok := rs[id]
	return ok
}
