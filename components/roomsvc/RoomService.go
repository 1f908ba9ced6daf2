// Package roomsvc hosts rooms and streams their state to connected clients.
package roomsvc

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	timer "github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/worldsync/components/sharding"
	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/config"
	"github.com/xiaonanln/worldsync/engine/consts"
	"github.com/xiaonanln/worldsync/engine/gwlog"
	"github.com/xiaonanln/worldsync/engine/gwutils"
	"github.com/xiaonanln/worldsync/engine/gwvar"
	"github.com/xiaonanln/worldsync/engine/netutil"
	"github.com/xiaonanln/worldsync/engine/opmon"
	"github.com/xiaonanln/worldsync/engine/post"
	"github.com/xiaonanln/worldsync/engine/proto"
)

const (
	rsNotRunning = iota
	rsRunning
	rsTerminating
	rsTerminated
)

type packetQueueItem struct { // packet queue from client connections
	clientID common.ClientID
	packet   *proto.NetworkPacket
}

// JoinRequest describes a client joining a room
type JoinRequest struct {
	Zone           string
	RoomID         common.RoomID   // preferred room, optional
	EntityID       common.EntityID // defaults to the client ID
	ConnectionType string
	Position       common.Vector3
}

// RoomService owns all rooms of the process and the sharding manager.
//
// All methods except Post, Dispatch and Terminate must be called on the service routine.
type RoomService struct {
	cfg         *config.WorldSyncConfig
	codec       *netutil.PacketCodec
	sharding    *sharding.Manager
	rooms       map[common.RoomID]*Room
	clients     map[common.ClientID]*ClientView
	posts       *post.Queue
	packetQueue chan packetQueueItem
	runState    xnsyncutil.AtomicInt
	terminated  *xnsyncutil.OneTimeCond
	timers      []*timer.Timer
}

// NewRoomService creates a RoomService
func NewRoomService(cfg *config.WorldSyncConfig, codec *netutil.PacketCodec, mgr *sharding.Manager) *RoomService {
	return &RoomService{
		cfg:         cfg,
		codec:       codec,
		sharding:    mgr,
		rooms:       map[common.RoomID]*Room{},
		clients:     map[common.ClientID]*ClientView{},
		posts:       post.NewQueue(),
		packetQueue: make(chan packetQueueItem, consts.ROOM_SERVICE_PACKET_QUEUE_SIZE),
		terminated:  xnsyncutil.NewOneTimeCond(),
	}
}

func (rs *RoomService) String() string {
	return fmt.Sprintf("RoomService<%d rooms|%d clients>", len(rs.rooms), len(rs.clients))
}

// Codec returns the packet codec
func (rs *RoomService) Codec() *netutil.PacketCodec {
	return rs.codec
}

// Sharding returns the sharding manager
func (rs *RoomService) Sharding() *sharding.Manager {
	return rs.sharding
}

// Post runs the callback on the service routine, can be called from any goroutine
func (rs *RoomService) Post(f post.PostCallback) {
	rs.posts.Post(f)
}

// Dispatch queues a packet received from the client, can be called from any goroutine
func (rs *RoomService) Dispatch(clientID common.ClientID, packet *proto.NetworkPacket) {
	rs.packetQueue <- packetQueueItem{clientID: clientID, packet: packet}
}

// Start registers the periodic timers of the service
func (rs *RoomService) Start() {
	rs.timers = append(rs.timers, timer.AddTimer(consts.PING_INTERVAL, rs.pingClients))
	if rs.cfg.Quality.RecomputeInterval > 0 {
		rs.timers = append(rs.timers, timer.AddTimer(rs.cfg.Quality.RecomputeInterval, rs.evaluateQuality))
	}
	rs.sharding.StartHealthMonitor()
}

// Run is the service routine: handles client packets, ticks timers and posted callbacks
func (rs *RoomService) Run() {
	rs.runState.Store(rsRunning)
	rs.Start()
	gwvar.IsServiceReady.Set(true)
	gwlog.Infof("%s started, tick interval %s", rs, rs.cfg.Server.TickInterval)

	ticker := time.Tick(rs.cfg.Server.TickInterval)
	for {
		select {
		case item := <-rs.packetQueue:
			op := opmon.StartOperation("roomsvc.handlePacket")
			rs.HandlePacket(item.clientID, item.packet)
			op.Finish(time.Millisecond * 100)
		case <-ticker:
			if rs.runState.Load() == rsTerminating {
				rs.doTerminate()
				return
			}

			timer.Tick()
			rs.Tick(time.Now())
		}

		// after handling packets or firing timers, check the posted functions
		rs.posts.Tick()
	}
}

// Terminate asks the service routine to stop and waits until it is stopped
func (rs *RoomService) Terminate() {
	if rs.runState.Load() != rsRunning {
		return
	}
	rs.runState.Store(rsTerminating)
	rs.terminated.Wait()
}

func (rs *RoomService) doTerminate() {
	rs.posts.Tick()
	clientIDs := make([]common.ClientID, 0, len(rs.clients))
	for clientID := range rs.clients {
		clientIDs = append(clientIDs, clientID)
	}
	for _, clientID := range clientIDs {
		rs.Kick(clientID, "server terminating")
	}
	for _, t := range rs.timers {
		t.Cancel()
	}
	rs.timers = nil
	rs.sharding.StopHealthMonitor()
	gwvar.IsServiceReady.Set(false)
	gwlog.Infof("%s terminated", rs)
	rs.runState.Store(rsTerminated)
	rs.terminated.Signal()
}

// Room returns the room by ID, or nil
func (rs *RoomService) Room(roomID common.RoomID) *Room {
	return rs.rooms[roomID]
}

// CreateRoom creates a room and registers its shard, capacity <= 0 means the default capacity
func (rs *RoomService) CreateRoom(zone string, capacity int) *Room {
	shard := rs.sharding.CreateShard(zone, capacity)
	return rs.openRoom(shard.RoomID, zone)
}

func (rs *RoomService) openRoom(roomID common.RoomID, zone string) *Room {
	room := rs.rooms[roomID]
	if room == nil {
		room = newRoom(roomID, zone, &rs.cfg.Interest)
		rs.rooms[roomID] = room
		gwvar.RoomCount.Set(int64(len(rs.rooms)))
		gwlog.Infof("%s: opened %s", rs, room)
	}
	return room
}

func (rs *RoomService) closeRoom(room *Room) {
	delete(rs.rooms, room.ID)
	gwvar.RoomCount.Set(int64(len(rs.rooms)))
	rs.sharding.UnregisterShard(room.ID)
	gwlog.Infof("%s: closed %s", rs, room)
}

func (rs *RoomService) hasSpareRoom(zone string) bool {
	for _, shard := range rs.sharding.Shards(zone) {
		if shard.Health == sharding.Healthy && shard.PlayerCount < rs.cfg.Sharding.ShardThreshold {
			return true
		}
	}
	return false
}

// JoinRoom places the client in the best room of the zone and spawns its entity
func (rs *RoomService) JoinRoom(conn ClientConn, req JoinRequest) (common.RoomID, error) {
	clientID := conn.ClientID()
	if clientID.IsNil() {
		return "", errors.Errorf("join with nil client ID")
	}
	if req.Zone == "" {
		req.Zone = rs.cfg.Server.Zone
	}
	if req.EntityID.IsNil() {
		req.EntityID = common.EntityID(clientID)
	}
	if _, ok := rs.clients[clientID]; ok {
		rs.LeaveRoom(clientID)
	}

	roomID := rs.sharding.FindBestRoom(req.Zone, req.RoomID)
	var room *Room
	if roomID.IsNil() {
		room = rs.CreateRoom(req.Zone, 0)
	} else {
		shard, _ := rs.sharding.Shard(roomID)
		room = rs.openRoom(roomID, shard.Zone)
	}

	if e := room.Entity(req.EntityID); e != nil && !e.Owner.IsNil() {
		return "", errors.Errorf("entity %s is already controlled by client %s", req.EntityID, e.Owner)
	}
	e := room.SpawnEntity(req.EntityID, req.Position, 0, nil)
	e.Owner = clientID

	view := newClientView(conn, room, req.EntityID, rs.codec, rs.cfg, req.ConnectionType)
	room.views[clientID] = view
	rs.clients[clientID] = view
	gwvar.ClientCount.Set(int64(len(rs.clients)))
	rs.sharding.UpdatePlayerCount(room.ID, room.PlayerCount())
	gwlog.Infof("%s: %s joined %s as %s", rs, clientID, room, req.EntityID)

	view.add(proto.MT_ROOM_ASSIGNED, proto.RoomAssigned{
		RoomID:   string(room.ID),
		Zone:     room.Zone,
		EntityID: string(req.EntityID),
	}, proto.PriorityCritical)

	if rs.sharding.ShouldCreateShard(room.Zone) && !rs.hasSpareRoom(room.Zone) {
		spare := rs.CreateRoom(room.Zone, 0)
		gwlog.Infof("%s: zone %s reached shard threshold, created %s", rs, room.Zone, spare)
	}
	return room.ID, nil
}

// LeaveRoom removes the client and its entity from its room
func (rs *RoomService) LeaveRoom(clientID common.ClientID) {
	view := rs.clients[clientID]
	if view == nil {
		return
	}
	room := view.room
	delete(rs.clients, clientID)
	gwvar.ClientCount.Set(int64(len(rs.clients)))
	delete(room.views, clientID)
	if e := room.Entity(view.entityID); e != nil && e.Owner == clientID {
		room.DespawnEntity(view.entityID)
	}
	rs.sharding.UpdatePlayerCount(room.ID, room.PlayerCount())
	gwlog.Infof("%s: %s left %s", rs, clientID, room)

	if room.PlayerCount() == 0 && room.EntityCount() == 0 && len(rs.sharding.Shards(room.Zone)) > 1 {
		rs.closeRoom(room)
	}
}

// Kick disconnects the client
func (rs *RoomService) Kick(clientID common.ClientID, reason string) {
	view := rs.clients[clientID]
	if view == nil {
		return
	}
	view.add(proto.MT_DISCONNECT, reason, proto.PriorityCritical)
	view.conn.Close()
	rs.LeaveRoom(clientID)
}

// HandlePacket handles a packet received from the client
func (rs *RoomService) HandlePacket(clientID common.ClientID, packet *proto.NetworkPacket) {
	view := rs.clients[clientID]
	if view == nil {
		gwlog.Debugf("%s: packet from unknown client %s dropped", rs, clientID)
		return
	}
	now := proto.NowMillis()
	for _, msg := range packet.Messages {
		switch msg.Type {
		case proto.MT_PLAYER_INPUT:
			var input proto.PlayerInput
			if err := rs.codec.DecodePayload(msg.Data, &input); err != nil {
				gwlog.Warnf("%s: bad input: %s", view, err)
				continue
			}
			view.onInput(input)
		case proto.MT_PONG:
			var pong proto.Ping
			if err := rs.codec.DecodePayload(msg.Data, &pong); err != nil {
				gwlog.Warnf("%s: bad pong: %s", view, err)
				continue
			}
			view.onPong(pong, now)
		default:
			gwlog.Warnf("%s: unknown message type %s", view, msg.Type)
		}
	}
}

func (rs *RoomService) sortedRooms() []*Room {
	rooms := make([]*Room, 0, len(rs.rooms))
	for _, room := range rs.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].ID < rooms[j].ID
	})
	return rooms
}

// Tick syncs every client whose batch interval elapsed and heartbeats all rooms
func (rs *RoomService) Tick(now time.Time) {
	op := opmon.StartOperation("roomsvc.Tick")
	for _, room := range rs.sortedRooms() {
		rs.sharding.Heartbeat(room.ID)
		for _, view := range room.sortedViews() {
			if !view.batcher.Due(now) {
				continue
			}
			view := view
			gwutils.RunPanicless(func() {
				view.sync()
				view.flush(now)
			})
		}
	}
	op.Finish(time.Millisecond * 50)
}

func (rs *RoomService) pingClients() {
	now := proto.NowMillis()
	for _, view := range rs.clients {
		view.ping(now)
	}
}

func (rs *RoomService) evaluateQuality() {
	for _, view := range rs.clients {
		q := view.Quality()
		gwlog.Debugf("%s: %s", view, q)
	}
}

// ClientView returns the view of the client, or nil
func (rs *RoomService) ClientView(clientID common.ClientID) *ClientView {
	return rs.clients[clientID]
}

// RoomStatus is the status of one room
type RoomStatus struct {
	sharding.ShardStatus
	Entities int `json:"entities"`
}

// Status returns the status of all shards with their local room info
func (rs *RoomService) Status() []RoomStatus {
	shards := rs.sharding.Status()
	status := make([]RoomStatus, 0, len(shards))
	for _, shard := range shards {
		st := RoomStatus{ShardStatus: shard}
		if room := rs.rooms[shard.RoomID]; room != nil {
			st.Entities = room.EntityCount()
		}
		status = append(status, st)
	}
	return status
}
