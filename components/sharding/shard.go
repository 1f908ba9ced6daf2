// Package sharding tracks load and health of parallel room instances and routes new joins.
package sharding

import (
	"fmt"
	"time"

	"github.com/petar/GoLLRB/llrb"
	"github.com/xiaonanln/worldsync/engine/common"
)

// Health of a room shard, derived from its player count and heartbeats
type Health string

const (
	// Healthy shards accept players freely
	Healthy Health = "healthy"
	// Degraded shards reached the shard threshold
	Degraded Health = "degraded"
	// Unhealthy shards reached the unhealthy threshold or stopped heartbeating
	Unhealthy Health = "unhealthy"
)

// RoomShard is one room instance
type RoomShard struct {
	RoomID          common.RoomID `json:"roomId"`
	PlayerCount     int           `json:"playerCount"`
	Zone            string        `json:"zone"`
	Health          Health        `json:"health"`
	LastHealthCheck time.Time     `json:"lastHealthCheck"`
	Capacity        int           `json:"capacity"`
	Stale           bool          `json:"stale"`
}

func (s *RoomShard) String() string {
	return fmt.Sprintf("RoomShard<%s|%s|%d/%d|%s>", s.RoomID, s.Zone, s.PlayerCount, s.Capacity, s.Health)
}

func (s *RoomShard) acceptsPlayers() bool {
	return s.Health != Unhealthy && s.PlayerCount < s.Capacity
}

// loadItem orders shards of a zone by (playerCount, roomID)
type loadItem struct {
	count  int
	roomID common.RoomID
	shard  *RoomShard
}

func (it *loadItem) Less(_other llrb.Item) bool {
	other := _other.(*loadItem)
	return it.count < other.count || (it.count == other.count && it.roomID < other.roomID)
}

type zoneIndex struct {
	btree *llrb.LLRB
	rooms common.RoomIDSet
}

func newZoneIndex() *zoneIndex {
	return &zoneIndex{
		btree: llrb.New(),
		rooms: common.RoomIDSet{},
	}
}

func (zi *zoneIndex) insert(shard *RoomShard) {
	zi.btree.ReplaceOrInsert(&loadItem{
		count:  shard.PlayerCount,
		roomID: shard.RoomID,
		shard:  shard,
	})
	zi.rooms.Add(shard.RoomID)
}

func (zi *zoneIndex) remove(shard *RoomShard) {
	zi.btree.Delete(&loadItem{
		count:  shard.PlayerCount,
		roomID: shard.RoomID,
	})
	zi.rooms.Del(shard.RoomID)
}

// leastLoaded returns the least loaded shard accepting players, or nil
func (zi *zoneIndex) leastLoaded() *RoomShard {
	var best *RoomShard
	zi.btree.AscendGreaterOrEqual(llrb.Inf(-1), func(_item llrb.Item) bool {
		item := _item.(*loadItem)
		if item.shard.acceptsPlayers() {
			best = item.shard
			return false
		}
		return true
	})
	return best
}
