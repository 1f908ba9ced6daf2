package gate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/gorilla/websocket"
	"github.com/xiaonanln/worldsync/components/roomsvc"
	"github.com/xiaonanln/worldsync/components/sharding"
	"github.com/xiaonanln/worldsync/engine/config"
	"github.com/xiaonanln/worldsync/engine/netutil"
	"github.com/xiaonanln/worldsync/engine/proto"
)

func readUntil(t *testing.T, conn *websocket.Conn, codec *netutil.PacketCodec, match func(msg *proto.NetworkMessage) bool) *proto.NetworkMessage {
	deadline := time.Now().Add(time.Second * 5)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %s", err)
		}
		packet, err := codec.DecodePacket(data)
		if err != nil {
			t.Fatalf("decode failed: %s", err)
		}
		for _, msg := range packet.Messages {
			if match(msg) {
				return msg
			}
		}
	}
}

func TestGateService(t *testing.T) {
	cfg := config.Default()
	codec, err := netutil.NewPacketCodecByName(cfg.Server.Codec, cfg.Server.Compress, cfg.Server.CompressFormat)
	if err != nil {
		t.Fatal(err)
	}
	rs := roomsvc.NewRoomService(cfg, codec, sharding.NewManager(cfg.Sharding))
	go rs.Run()
	defer rs.Terminate()

	gs := NewGateService("", rs)
	server := httptest.NewServer(gs.Handler())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?player=p1&zone=arena&conn=wifi"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %s", err)
	}
	defer conn.Close()

	msg := readUntil(t, conn, codec, func(msg *proto.NetworkMessage) bool {
		return msg.Type == proto.MT_ROOM_ASSIGNED
	})
	var ra proto.RoomAssigned
	assert.Equal(t, nil, codec.DecodePayload(msg.Data, &ra))
	assert.Equal(t, "p1", ra.EntityID)
	assert.Equal(t, "arena", ra.Zone)
	assert.Equal(t, 1, gs.ClientCount())

	input, err := codec.EncodePacket(&proto.NetworkPacket{
		Messages: []*proto.NetworkMessage{
			proto.NewMessage(proto.MT_PLAYER_INPUT, proto.PlayerInput{Seq: 1, X: 3}, proto.PriorityNormal),
		},
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, conn.WriteMessage(websocket.BinaryMessage, input))

	readUntil(t, conn, codec, func(msg *proto.NetworkMessage) bool {
		if msg.Type != proto.MT_OWN_STATE {
			return false
		}
		var os proto.OwnState
		return codec.DecodePayload(msg.Data, &os) == nil && os.Seq == 1
	})

	resp, err := http.Get(server.URL + "/status")
	if err != nil {
		t.Fatalf("get status failed: %s", err)
	}
	defer resp.Body.Close()
	var status []map[string]interface{}
	assert.Equal(t, nil, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, 1, len(status))
	assert.Equal(t, "arena", status[0]["zone"])
	assert.Equal(t, 1.0, status[0]["playerCount"])
}

func TestClientProxySendAfterClose(t *testing.T) {
	cp := &ClientProxy{
		sendQueue: make(chan []byte, 1),
		done:      make(chan struct{}),
	}
	assert.Equal(t, nil, cp.SendPacket([]byte{1}))
	assert.Equal(t, errSendQueueFull, cp.SendPacket([]byte{2}))
	cp.Close()
	cp.Close()
	assert.Equal(t, errClientClosed, cp.SendPacket([]byte{3}))
}
