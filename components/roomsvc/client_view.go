package roomsvc

import (
	"fmt"
	"sort"
	"time"

	"github.com/xiaonanln/worldsync/engine/batch"
	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/config"
	"github.com/xiaonanln/worldsync/engine/consts"
	"github.com/xiaonanln/worldsync/engine/delta"
	"github.com/xiaonanln/worldsync/engine/gwlog"
	"github.com/xiaonanln/worldsync/engine/netutil"
	"github.com/xiaonanln/worldsync/engine/proto"
	"github.com/xiaonanln/worldsync/engine/quality"
)

// ClientConn is the transport of one client, implemented by the gate
type ClientConn interface {
	ClientID() common.ClientID
	// SendPacket queues encoded packet data without blocking
	SendPacket(data []byte) error
	Close()
}

// ClientView is what one client has been sent so far
type ClientView struct {
	conn     ClientConn
	room     *Room
	entityID common.EntityID
	codec    *netutil.PacketCodec
	batcher  *batch.MobileBatcher
	monitor  *quality.Monitor
	sent     map[common.EntityID]delta.Tree

	inputSeq     uint32 // last input sequence applied
	ownStateSeq  uint32 // input sequence in the last own_state
	pingSeq      uint32
	pendingPings map[uint32]int64
}

func newClientView(conn ClientConn, room *Room, entityID common.EntityID, codec *netutil.PacketCodec, cfg *config.WorldSyncConfig, connectionType string) *ClientView {
	v := &ClientView{
		conn:         conn,
		room:         room,
		entityID:     entityID,
		codec:        codec,
		batcher:      batch.NewMobileBatcher(cfg.Batcher.MaxBatchSize, cfg.Batcher.BatchInterval, cfg.Batcher.Adaptive, cfg.Batcher.Dedup),
		monitor:      quality.NewMonitor(cfg.Quality.HistorySize),
		sent:         map[common.EntityID]delta.Tree{},
		pendingPings: map[uint32]int64{},
	}
	if connectionType == "" {
		connectionType = cfg.Quality.ConnectionType
	}
	v.monitor.SetConnectionType(connectionType)
	v.batcher.SetConnectionType(v.monitor.ConnectionType())
	v.batcher.Watch(v.monitor)
	v.batcher.SetImmediateSender(v.send)
	return v
}

func (v *ClientView) String() string {
	return fmt.Sprintf("ClientView<%s|%s>", v.conn.ClientID(), v.entityID)
}

// ClientID returns the ID of the client
func (v *ClientView) ClientID() common.ClientID {
	return v.conn.ClientID()
}

// EntityID returns the ID of the entity controlled by the client
func (v *ClientView) EntityID() common.EntityID {
	return v.entityID
}

// Quality evaluates the connection quality of the client
func (v *ClientView) Quality() quality.ConnectionQuality {
	return v.monitor.GetQuality()
}

func (v *ClientView) send(packet *proto.NetworkPacket) {
	data, err := v.codec.EncodePacket(packet)
	if err != nil {
		gwlog.Errorf("%s: encode %s failed: %s", v, packet, err)
		return
	}
	if err = v.conn.SendPacket(data); err != nil {
		gwlog.Warnf("%s: send %s failed: %s", v, packet, err)
	}
}

func (v *ClientView) add(msgtype proto.MsgType, data interface{}, priority int) {
	v.batcher.Add(proto.NewMessage(msgtype, data, priority), priority)
}

// leave tells the client that the entity is no longer visible
func (v *ClientView) leave(id common.EntityID) {
	if _, ok := v.sent[id]; !ok {
		return
	}
	delete(v.sent, id)
	v.add(proto.MT_ENTITY_LEAVE, proto.EntityLeave{EntityID: string(id)}, proto.PriorityLeave)
}

// sync queues the changes of all relevant entities since last sync
func (v *ClientView) sync() {
	own := v.room.entities[v.entityID]
	if own == nil {
		return
	}

	relevant := v.room.policy.GetRelevantEntities(v.entityID, own.Position, v.room.radius)
	visible := make(map[common.EntityID]struct{}, len(relevant))
	for _, id := range relevant {
		visible[id] = struct{}{}
		e := v.room.entities[id]
		if e == nil {
			continue
		}
		cur := e.Tree()
		prev, seen := v.sent[id]

		if id == v.entityID {
			ops := delta.Compress(cur, prev)
			if !seen || len(ops) > 0 || v.ownStateSeq != v.inputSeq {
				v.add(proto.MT_OWN_STATE, proto.OwnState{
					EntityID: string(id),
					Seq:      v.inputSeq,
					State:    cur,
				}, proto.PriorityOwnState)
				v.ownStateSeq = v.inputSeq
				v.sent[id] = cur
			}
			continue
		}

		if !seen {
			v.add(proto.MT_ENTITY_ENTER, proto.EntityEnter{EntityID: string(id), State: cur}, proto.PriorityNormal)
			v.sent[id] = cur
			continue
		}
		if ops := delta.Compress(cur, prev); len(ops) > 0 {
			v.add(proto.MT_ENTITY_DELTA, proto.EntityDelta{EntityID: string(id), Ops: ops}, proto.PriorityNormal)
			v.sent[id] = cur
		}
	}

	var gone []common.EntityID
	for id := range v.sent {
		if _, ok := visible[id]; !ok && id != v.entityID {
			gone = append(gone, id)
		}
	}
	sort.Slice(gone, func(i, j int) bool {
		return gone[i] < gone[j]
	})
	for _, id := range gone {
		v.leave(id)
	}
}

// flush sends the queued messages as one packet
func (v *ClientView) flush(now time.Time) {
	if packet := v.batcher.Flush(now); packet != nil {
		v.send(packet)
	}
}

func (v *ClientView) onInput(input proto.PlayerInput) {
	if input.Seq != 0 && input.Seq <= v.inputSeq {
		gwlog.Debugf("%s: ignored stale input #%d", v, input.Seq)
		return
	}
	pos := common.Vector3{X: common.Coord(input.X), Y: common.Coord(input.Y), Z: common.Coord(input.Z)}
	v.room.MoveEntity(v.entityID, pos, common.Yaw(input.Rotation))
	if input.Seq != 0 {
		v.inputSeq = input.Seq
	}
}

func (v *ClientView) ping(now int64) {
	if len(v.pendingPings) >= consts.QUALITY_HISTORY_SIZE {
		for range v.pendingPings {
			v.monitor.RecordPacketLoss()
		}
		v.pendingPings = map[uint32]int64{}
	}
	v.pingSeq += 1
	v.pendingPings[v.pingSeq] = now
	v.add(proto.MT_PING, proto.Ping{Seq: v.pingSeq, Timestamp: now}, proto.PriorityNormal)
}

func (v *ClientView) onPong(pong proto.Ping, now int64) {
	sentTime, ok := v.pendingPings[pong.Seq]
	if !ok {
		return
	}
	delete(v.pendingPings, pong.Seq)
	for seq := range v.pendingPings {
		if seq < pong.Seq {
			delete(v.pendingPings, seq)
			v.monitor.RecordPacketLoss()
		}
	}
	v.monitor.RecordPacket(float64(now - sentTime))
}
