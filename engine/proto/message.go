package proto

import (
	"fmt"
	"time"

	"github.com/xiaonanln/worldsync/engine/consts"
	"github.com/xiaonanln/worldsync/engine/gwutils"
)

// MsgType is the type of network messages
type MsgType = string

// Message types sent from server to clients
const (
	MT_ENTITY_ENTER    MsgType = "entity_enter"
	MT_ENTITY_LEAVE    MsgType = "entity_leave"
	MT_ENTITY_DELTA    MsgType = "entity_delta"
	MT_ENTITY_SNAPSHOT MsgType = "entity_snapshot"
	MT_OWN_STATE       MsgType = "own_state"
	MT_PING            MsgType = "ping"
	MT_ROOM_ASSIGNED   MsgType = "room_assigned"
	MT_DISCONNECT      MsgType = "disconnect"
)

// Message types sent from clients to server
const (
	MT_PLAYER_INPUT MsgType = "player_input"
	MT_PONG         MsgType = "pong"
)

// Message priorities
const (
	PriorityMin      = consts.MIN_PRIORITY
	PriorityNormal   = 5
	PriorityLeave    = 6
	PriorityOwnState = 7
	PriorityCritical = consts.CRITICAL_PRIORITY
	PriorityMax      = consts.MAX_PRIORITY
)

// NetworkMessage is one logical update queued for a client
type NetworkMessage struct {
	Type      MsgType     `msgpack:"type" json:"type"`
	Data      interface{} `msgpack:"data" json:"data"`
	Timestamp int64       `msgpack:"timestamp" json:"timestamp"`
	Priority  int         `msgpack:"priority" json:"priority"`
}

func (m *NetworkMessage) String() string {
	return fmt.Sprintf("NetworkMessage<%s|P%d|%d>", m.Type, m.Priority, m.Timestamp)
}

// IsCritical returns if the message must bypass batching
func (m *NetworkMessage) IsCritical() bool {
	return m.Priority >= PriorityCritical
}

// NewMessage creates a message stamped with the current time
func NewMessage(msgtype MsgType, data interface{}, priority int) *NetworkMessage {
	return &NetworkMessage{
		Type:      msgtype,
		Data:      data,
		Timestamp: NowMillis(),
		Priority:  priority,
	}
}

// NetworkPacket is the unit placed on the wire
type NetworkPacket struct {
	Messages  []*NetworkMessage `msgpack:"messages" json:"messages"`
	Timestamp int64             `msgpack:"timestamp" json:"timestamp"`
}

func (p *NetworkPacket) String() string {
	return fmt.Sprintf("NetworkPacket<%d msgs|%d>", len(p.Messages), p.Timestamp)
}

// NowMillis returns the current time in milliseconds since epoch
func NowMillis() int64 {
	return gwutils.UnixMillis(time.Now())
}

// EntityDelta is the payload of MT_ENTITY_DELTA
type EntityDelta struct {
	EntityID string           `msgpack:"id" json:"id"`
	Ops      []DeltaOperation `msgpack:"ops" json:"ops"`
}

// EntityEnter is the payload of MT_ENTITY_ENTER and MT_ENTITY_SNAPSHOT
type EntityEnter struct {
	EntityID string                 `msgpack:"id" json:"id"`
	State    map[string]interface{} `msgpack:"state" json:"state"`
}

// EntityLeave is the payload of MT_ENTITY_LEAVE
type EntityLeave struct {
	EntityID string `msgpack:"id" json:"id"`
}

// OwnState is the payload of MT_OWN_STATE, the authoritative state of the client's own entity
type OwnState struct {
	EntityID string                 `msgpack:"id" json:"id"`
	Seq      uint32                 `msgpack:"seq" json:"seq"`
	State    map[string]interface{} `msgpack:"state" json:"state"`
}

// PlayerInput is the payload of MT_PLAYER_INPUT
type PlayerInput struct {
	Seq      uint32  `msgpack:"seq" json:"seq"`
	X        float64 `msgpack:"x" json:"x"`
	Y        float64 `msgpack:"y" json:"y"`
	Z        float64 `msgpack:"z" json:"z"`
	Rotation float64 `msgpack:"rot" json:"rot"`
}

// Ping is the payload of MT_PING and MT_PONG
type Ping struct {
	Seq       uint32 `msgpack:"seq" json:"seq"`
	Timestamp int64  `msgpack:"ts" json:"ts"`
}

// RoomAssigned is the payload of MT_ROOM_ASSIGNED
type RoomAssigned struct {
	RoomID   string `msgpack:"room" json:"room"`
	Zone     string `msgpack:"zone" json:"zone"`
	EntityID string `msgpack:"id" json:"id"`
}
