// Package syncclient applies state streamed by a worldsync server and renders it smoothly.
package syncclient

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/config"
	"github.com/xiaonanln/worldsync/engine/delta"
	"github.com/xiaonanln/worldsync/engine/gwlog"
	"github.com/xiaonanln/worldsync/engine/interpolation"
	"github.com/xiaonanln/worldsync/engine/netutil"
	"github.com/xiaonanln/worldsync/engine/prediction"
	"github.com/xiaonanln/worldsync/engine/proto"
)

// DataSender sends encoded packet data to the server
type DataSender func(data []byte) error

// RenderedEntity is the state of an entity to render
type RenderedEntity struct {
	ID        common.EntityID
	Position  common.Vector3
	Rotation  common.Yaw
	Predicted bool // the client's own entity
}

// Client keeps the client side replica of the visible world.
//
// Client is not goroutine-safe.
type Client struct {
	codec      *netutil.PacketCodec
	cfg        *config.WorldSyncConfig
	sender     DataSender
	interp     *interpolation.Interpolator
	reconciler *prediction.Reconciler
	entities   map[common.EntityID]delta.Tree

	entityID         common.EntityID
	roomID           common.RoomID
	zone             string
	disconnected     bool
	disconnectReason string
	packetsReceived  int
}

// NewClient creates a Client
func NewClient(codec *netutil.PacketCodec, cfg *config.WorldSyncConfig, sender DataSender) *Client {
	c := &Client{
		codec:  codec,
		cfg:    cfg,
		sender: sender,
	}
	c.reset()
	return c
}

// reset forgets everything replicated from the previous room
func (c *Client) reset() {
	c.entities = map[common.EntityID]delta.Tree{}
	c.interp = interpolation.NewInterpolator(c.cfg.Interpolation.Delay, c.cfg.Interpolation.BufferSize)
	c.reconciler = prediction.NewReconciler(prediction.Config{
		Tolerance:     c.cfg.Prediction.Tolerance,
		SnapThreshold: c.cfg.Prediction.SnapThreshold,
		BlendFactor:   c.cfg.Prediction.BlendFactor,
		HistorySize:   c.cfg.Prediction.HistorySize,
	})
}

func (c *Client) String() string {
	return fmt.Sprintf("Client<%s@%s>", c.entityID, c.roomID)
}

// EntityID returns the ID of the entity controlled by the client
func (c *Client) EntityID() common.EntityID {
	return c.entityID
}

// RoomID returns the room the client is in
func (c *Client) RoomID() common.RoomID {
	return c.roomID
}

// Zone returns the zone of the room
func (c *Client) Zone() string {
	return c.zone
}

// Disconnected returns if the server disconnected the client and why
func (c *Client) Disconnected() (bool, string) {
	return c.disconnected, c.disconnectReason
}

// PacketsReceived returns the number of packets applied
func (c *Client) PacketsReceived() int {
	return c.packetsReceived
}

// Reconciler returns the reconciler of the own entity
func (c *Client) Reconciler() *prediction.Reconciler {
	return c.reconciler
}

// Entity returns the replicated state tree of the entity, or nil
func (c *Client) Entity(id common.EntityID) delta.Tree {
	return c.entities[id]
}

// Entities returns the IDs of all replicated entities
func (c *Client) Entities() []common.EntityID {
	ids := make([]common.EntityID, 0, len(c.entities))
	for id := range c.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids
}

// HandleData decodes and applies packet data received at now (ms)
func (c *Client) HandleData(data []byte, now int64) error {
	packet, err := c.codec.DecodePacket(data)
	if err != nil {
		return err
	}
	c.HandlePacket(packet, now)
	return nil
}

// HandlePacket applies the messages of the packet in order
func (c *Client) HandlePacket(packet *proto.NetworkPacket, now int64) {
	c.packetsReceived += 1
	for _, msg := range packet.Messages {
		if err := c.handleMessage(msg, now); err != nil {
			gwlog.Warnf("%s: handle %s failed: %s", c, msg, err)
		}
	}
}

func (c *Client) handleMessage(msg *proto.NetworkMessage, now int64) error {
	switch msg.Type {
	case proto.MT_ROOM_ASSIGNED:
		var ra proto.RoomAssigned
		if err := c.codec.DecodePayload(msg.Data, &ra); err != nil {
			return err
		}
		c.onRoomAssigned(ra)
	case proto.MT_ENTITY_ENTER, proto.MT_ENTITY_SNAPSHOT:
		var ee proto.EntityEnter
		if err := c.codec.DecodePayload(msg.Data, &ee); err != nil {
			return err
		}
		id := common.EntityID(ee.EntityID)
		c.entities[id] = normalizeTree(ee.State)
		c.snapshot(id, now)
	case proto.MT_ENTITY_DELTA:
		var ed proto.EntityDelta
		if err := c.codec.DecodePayload(msg.Data, &ed); err != nil {
			return err
		}
		for i := range ed.Ops {
			ed.Ops[i].Value = normalize(ed.Ops[i].Value)
		}
		id := common.EntityID(ed.EntityID)
		c.entities[id] = delta.Decompress(c.entities[id], ed.Ops)
		c.snapshot(id, now)
	case proto.MT_ENTITY_LEAVE:
		var el proto.EntityLeave
		if err := c.codec.DecodePayload(msg.Data, &el); err != nil {
			return err
		}
		id := common.EntityID(el.EntityID)
		delete(c.entities, id)
		c.interp.Remove(id)
	case proto.MT_OWN_STATE:
		var os proto.OwnState
		if err := c.codec.DecodePayload(msg.Data, &os); err != nil {
			return err
		}
		c.onOwnState(os, now)
	case proto.MT_PING:
		var ping proto.Ping
		if err := c.codec.DecodePayload(msg.Data, &ping); err != nil {
			return err
		}
		return c.send(proto.MT_PONG, ping)
	case proto.MT_DISCONNECT:
		c.disconnected = true
		c.disconnectReason = fmt.Sprint(msg.Data)
		gwlog.Infof("%s: disconnected by server: %s", c, c.disconnectReason)
	default:
		return errors.Errorf("unknown message type %s", msg.Type)
	}
	return nil
}

func (c *Client) onRoomAssigned(ra proto.RoomAssigned) {
	if !c.roomID.IsNil() && c.roomID != common.RoomID(ra.RoomID) {
		c.reset()
	}
	c.roomID = common.RoomID(ra.RoomID)
	c.zone = ra.Zone
	c.entityID = common.EntityID(ra.EntityID)
	gwlog.Infof("%s: assigned to zone %s", c, c.zone)
}

func (c *Client) onOwnState(os proto.OwnState, now int64) {
	id := common.EntityID(os.EntityID)
	tree := normalizeTree(os.State)
	c.entities[id] = tree
	pos, rot, ok := poseOf(tree)
	if !ok {
		gwlog.Warnf("%s: own state without position", c)
		return
	}
	c.reconciler.Reconcile(prediction.EntityState{
		Seq:       os.Seq,
		Position:  pos,
		Rotation:  rot,
		Timestamp: now,
	})
}

func (c *Client) snapshot(id common.EntityID, now int64) {
	if id == c.entityID {
		return
	}
	pos, rot, ok := poseOf(c.entities[id])
	if !ok {
		return
	}
	c.interp.AddSnapshot(id, interpolation.Snapshot{
		Timestamp: now,
		Position:  pos,
		Rotation:  rot,
	})
}

func (c *Client) send(msgtype proto.MsgType, data interface{}) error {
	if c.sender == nil {
		return nil
	}
	packet := &proto.NetworkPacket{
		Messages:  []*proto.NetworkMessage{proto.NewMessage(msgtype, data, proto.PriorityNormal)},
		Timestamp: proto.NowMillis(),
	}
	encoded, err := c.codec.EncodePacket(packet)
	if err != nil {
		return err
	}
	return c.sender(encoded)
}

// Move predicts the own entity at the target pose and sends the input to the server
func (c *Client) Move(pos common.Vector3, rot common.Yaw, now int64) (uint32, error) {
	seq := c.reconciler.Predict(prediction.Input{
		Position:  pos,
		Rotation:  rot,
		Timestamp: now,
	})
	if seq == 0 {
		return 0, errors.Errorf("invalid position %s", pos)
	}
	err := c.send(proto.MT_PLAYER_INPUT, proto.PlayerInput{
		Seq:      seq,
		X:        float64(pos.X),
		Y:        float64(pos.Y),
		Z:        float64(pos.Z),
		Rotation: float64(rot),
	})
	return seq, err
}

// RenderState returns interpolated remote entities and the predicted own entity, ordered by ID
func (c *Client) RenderState(now int64) []RenderedEntity {
	ids := c.Entities()
	if _, ok := c.entities[c.entityID]; !ok && !c.entityID.IsNil() {
		ids = append(ids, c.entityID)
		sort.Slice(ids, func(i, j int) bool {
			return ids[i] < ids[j]
		})
	}

	res := make([]RenderedEntity, 0, len(ids))
	for _, id := range ids {
		if id == c.entityID {
			if st := c.reconciler.GetCurrentState(); st != nil {
				res = append(res, RenderedEntity{ID: id, Position: st.Position, Rotation: st.Rotation, Predicted: true})
			}
			continue
		}
		if st, ok := c.interp.GetInterpolatedState(id, now); ok {
			res = append(res, RenderedEntity{ID: id, Position: st.Position, Rotation: st.Rotation})
		}
	}
	return res
}
