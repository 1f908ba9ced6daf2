package roomsvc

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/worldsync/components/sharding"
	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/config"
	"github.com/xiaonanln/worldsync/engine/netutil"
	"github.com/xiaonanln/worldsync/engine/proto"
)

type fakeConn struct {
	id      common.ClientID
	codec   *netutil.PacketCodec
	packets []*proto.NetworkPacket
	closed  bool
}

func (c *fakeConn) ClientID() common.ClientID {
	return c.id
}

func (c *fakeConn) SendPacket(data []byte) error {
	packet, err := c.codec.DecodePacket(data)
	if err != nil {
		return err
	}
	c.packets = append(c.packets, packet)
	return nil
}

func (c *fakeConn) Close() {
	c.closed = true
}

func (c *fakeConn) messages(msgtype proto.MsgType) []*proto.NetworkMessage {
	var res []*proto.NetworkMessage
	for _, packet := range c.packets {
		for _, msg := range packet.Messages {
			if msg.Type == msgtype {
				res = append(res, msg)
			}
		}
	}
	return res
}

func (c *fakeConn) reset() {
	c.packets = nil
}

func newTestService(t *testing.T, cfg *config.WorldSyncConfig) *RoomService {
	codec, err := netutil.NewPacketCodecByName("msgpack", true, "snappy")
	if err != nil {
		t.Fatal(err)
	}
	return NewRoomService(cfg, codec, sharding.NewManager(cfg.Sharding))
}

func (rs *RoomService) newConn(id string) *fakeConn {
	return &fakeConn{id: common.ClientID(id), codec: rs.codec}
}

func inputPacket(seq uint32, x float64) *proto.NetworkPacket {
	return &proto.NetworkPacket{
		Messages: []*proto.NetworkMessage{
			proto.NewMessage(proto.MT_PLAYER_INPUT, proto.PlayerInput{Seq: seq, X: x}, proto.PriorityNormal),
		},
	}
}

func TestJoinRoom(t *testing.T) {
	cfg := config.Default()
	rs := newTestService(t, cfg)
	conn := rs.newConn("c1")
	roomID, err := rs.JoinRoom(conn, JoinRequest{})
	assert.Equal(t, nil, err)
	assert.T(t, !roomID.IsNil())

	// room assignment is critical and bypasses batching
	msgs := conn.messages(proto.MT_ROOM_ASSIGNED)
	assert.Equal(t, 1, len(msgs))
	var ra proto.RoomAssigned
	assert.Equal(t, nil, rs.codec.DecodePayload(msgs[0].Data, &ra))
	assert.Equal(t, string(roomID), ra.RoomID)
	assert.Equal(t, "c1", ra.EntityID)
	assert.Equal(t, cfg.Server.Zone, ra.Zone)

	shard, ok := rs.Sharding().Shard(roomID)
	assert.T(t, ok)
	assert.Equal(t, 1, shard.PlayerCount)

	_, err = rs.JoinRoom(rs.newConn(""), JoinRequest{})
	assert.NotEqual(t, nil, err)
}

func TestSyncEnterDeltaLeave(t *testing.T) {
	rs := newTestService(t, config.Default())
	c1, c2 := rs.newConn("c1"), rs.newConn("c2")
	roomID, _ := rs.JoinRoom(c1, JoinRequest{})
	_, _ = rs.JoinRoom(c2, JoinRequest{RoomID: roomID, Position: common.Vector3{X: 10}})
	c1.reset()

	now := time.Now()
	rs.Tick(now)
	assert.Equal(t, 1, len(c1.messages(proto.MT_OWN_STATE)))
	enters := c1.messages(proto.MT_ENTITY_ENTER)
	assert.Equal(t, 1, len(enters))
	var ee proto.EntityEnter
	assert.Equal(t, nil, rs.codec.DecodePayload(enters[0].Data, &ee))
	assert.Equal(t, "c2", ee.EntityID)

	c1.reset()
	rs.HandlePacket("c2", inputPacket(1, 20))
	rs.Tick(now.Add(time.Second))
	deltas := c1.messages(proto.MT_ENTITY_DELTA)
	assert.Equal(t, 1, len(deltas))
	var ed proto.EntityDelta
	assert.Equal(t, nil, rs.codec.DecodePayload(deltas[0].Data, &ed))
	assert.Equal(t, "c2", ed.EntityID)
	assert.Equal(t, 1, len(ed.Ops))
	assert.Equal(t, "pos.x", ed.Ops[0].Path)
	assert.Equal(t, 0, len(c1.messages(proto.MT_OWN_STATE)))

	// c2 gets its own state acknowledging the input
	owns := c2.messages(proto.MT_OWN_STATE)
	var os proto.OwnState
	assert.Equal(t, nil, rs.codec.DecodePayload(owns[len(owns)-1].Data, &os))
	assert.Equal(t, uint32(1), os.Seq)

	// stale inputs are ignored
	rs.HandlePacket("c2", inputPacket(1, 30))
	assert.Equal(t, common.Coord(20), rs.Room(roomID).Entity("c2").Position.X)

	c1.reset()
	rs.HandlePacket("c2", inputPacket(2, 1000))
	rs.Tick(now.Add(time.Second * 2))
	leaves := c1.messages(proto.MT_ENTITY_LEAVE)
	assert.Equal(t, 1, len(leaves))
	var el proto.EntityLeave
	assert.Equal(t, nil, rs.codec.DecodePayload(leaves[0].Data, &el))
	assert.Equal(t, "c2", el.EntityID)
}

func TestLeaveReenterLeave(t *testing.T) {
	rs := newTestService(t, config.Default())
	c1, c2 := rs.newConn("c1"), rs.newConn("c2")
	roomID, _ := rs.JoinRoom(c1, JoinRequest{})
	_, _ = rs.JoinRoom(c2, JoinRequest{RoomID: roomID, Position: common.Vector3{X: 10}})

	now := time.Now()
	rs.Tick(now)
	for i, x := range []float64{1000, 10, 1000} {
		rs.HandlePacket("c2", inputPacket(uint32(i+1), x))
		rs.Tick(now.Add(time.Second * time.Duration(i+1)))
	}
	assert.Equal(t, 2, len(c1.messages(proto.MT_ENTITY_ENTER)))
	assert.Equal(t, 2, len(c1.messages(proto.MT_ENTITY_LEAVE)))
	assert.Equal(t, 0, rs.ClientView("c1").batcher.Deduped())
	_, visible := rs.ClientView("c1").sent["c2"]
	assert.T(t, !visible, "c2 should not be tracked as visible")
}

func TestFirstTickAfterJoin(t *testing.T) {
	rs := newTestService(t, config.Default())
	c1 := rs.newConn("c1")
	_, _ = rs.JoinRoom(c1, JoinRequest{})
	c1.reset()
	rs.Tick(time.Now())
	assert.Equal(t, 1, len(c1.messages(proto.MT_OWN_STATE)))
}

func TestDespawnSendsLeave(t *testing.T) {
	rs := newTestService(t, config.Default())
	c1 := rs.newConn("c1")
	roomID, _ := rs.JoinRoom(c1, JoinRequest{})
	room := rs.Room(roomID)
	room.SpawnEntity("npc", common.Vector3{X: 5}, 0, map[string]interface{}{"hp": 100})
	now := time.Now()
	rs.Tick(now)
	assert.Equal(t, 1, len(c1.messages(proto.MT_ENTITY_ENTER)))

	c1.reset()
	room.SetAttr("npc", "hp", 90)
	rs.Tick(now.Add(time.Second))
	deltas := c1.messages(proto.MT_ENTITY_DELTA)
	assert.Equal(t, 1, len(deltas))
	var ed proto.EntityDelta
	assert.Equal(t, nil, rs.codec.DecodePayload(deltas[0].Data, &ed))
	assert.Equal(t, "hp", ed.Ops[0].Path)

	c1.reset()
	room.DespawnEntity("npc")
	rs.Tick(now.Add(time.Second * 2))
	assert.Equal(t, 1, len(c1.messages(proto.MT_ENTITY_LEAVE)))
	assert.Equal(t, 1, room.EntityCount())
}

func TestKick(t *testing.T) {
	rs := newTestService(t, config.Default())
	conn := rs.newConn("c1")
	roomID, _ := rs.JoinRoom(conn, JoinRequest{})
	rs.Kick("c1", "bye")

	assert.T(t, conn.closed)
	msgs := conn.messages(proto.MT_DISCONNECT)
	assert.Equal(t, 1, len(msgs))
	assert.Equal(t, "bye", msgs[0].Data)
	assert.T(t, rs.ClientView("c1") == nil)
	shard, _ := rs.Sharding().Shard(roomID)
	assert.Equal(t, 0, shard.PlayerCount)
	assert.Equal(t, 0, rs.Room(roomID).EntityCount())
}

func TestPingPong(t *testing.T) {
	rs := newTestService(t, config.Default())
	conn := rs.newConn("c1")
	_, _ = rs.JoinRoom(conn, JoinRequest{})
	rs.pingClients()
	rs.Tick(time.Now())

	pings := conn.messages(proto.MT_PING)
	assert.Equal(t, 1, len(pings))
	var ping proto.Ping
	assert.Equal(t, nil, rs.codec.DecodePayload(pings[0].Data, &ping))

	rs.HandlePacket("c1", &proto.NetworkPacket{
		Messages: []*proto.NetworkMessage{proto.NewMessage(proto.MT_PONG, ping, proto.PriorityNormal)},
	})
	view := rs.ClientView("c1")
	assert.Equal(t, 1, view.monitor.Samples())
	assert.Equal(t, 0, len(view.pendingPings))

	// unknown pongs are ignored
	rs.HandlePacket("c1", &proto.NetworkPacket{
		Messages: []*proto.NetworkMessage{proto.NewMessage(proto.MT_PONG, proto.Ping{Seq: 99}, proto.PriorityNormal)},
	})
	assert.Equal(t, 1, view.monitor.Samples())
}

func TestShardOnThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Sharding.ShardThreshold = 2
	cfg.Sharding.MaxPlayersPerRoom = 3
	cfg.Sharding.DefaultCapacity = 3
	rs := newTestService(t, cfg)
	zone := cfg.Server.Zone

	first, _ := rs.JoinRoom(rs.newConn("c1"), JoinRequest{})
	assert.Equal(t, 1, len(rs.Sharding().Shards(zone)))
	second, _ := rs.JoinRoom(rs.newConn("c2"), JoinRequest{})
	assert.Equal(t, first, second)
	assert.Equal(t, 2, len(rs.Sharding().Shards(zone)))

	third, _ := rs.JoinRoom(rs.newConn("c3"), JoinRequest{})
	assert.NotEqual(t, first, third)

	// the emptied spare room is closed
	rs.LeaveRoom("c3")
	assert.T(t, rs.Room(third) == nil)
	assert.Equal(t, 1, len(rs.Sharding().Shards(zone)))
	assert.Equal(t, 1, len(rs.Status()))
}
