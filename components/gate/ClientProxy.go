package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/worldsync/components/roomsvc"
	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/consts"
	"github.com/xiaonanln/worldsync/engine/gwlog"
	"github.com/xiaonanln/worldsync/engine/netutil"
)

var (
	errClientClosed  = errors.New("client proxy closed")
	errSendQueueFull = errors.New("client proxy send queue full")
)

// ClientProxy is a websocket client connection managed by gate
type ClientProxy struct {
	conn      *websocket.Conn
	clientid  common.ClientID
	rs        *roomsvc.RoomService
	sendQueue chan []byte
	closed    xnsyncutil.AtomicBool
	closeOnce sync.Once
	done      chan struct{}
}

func newClientProxy(conn *websocket.Conn, rs *roomsvc.RoomService) *ClientProxy {
	return &ClientProxy{
		conn:      conn,
		clientid:  common.GenClientID(), // each client has its unique clientid
		rs:        rs,
		sendQueue: make(chan []byte, consts.CLIENT_PROXY_SEND_QUEUE_SIZE),
		done:      make(chan struct{}),
	}
}

func (cp *ClientProxy) String() string {
	return fmt.Sprintf("ClientProxy<%s@%s>", cp.clientid, cp.conn.RemoteAddr())
}

// ClientID returns the ID of the client
func (cp *ClientProxy) ClientID() common.ClientID {
	return cp.clientid
}

// SendPacket queues encoded packet data for the write routine
func (cp *ClientProxy) SendPacket(data []byte) error {
	if cp.closed.Load() {
		return errClientClosed
	}
	select {
	case cp.sendQueue <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

// Close stops the client proxy after writing the queued packets
func (cp *ClientProxy) Close() {
	cp.closeOnce.Do(func() {
		cp.closed.Store(true)
		close(cp.done)
	})
}

// serve reads packets from the client until the connection is closed
func (cp *ClientProxy) serve() {
	defer cp.Close()
	for {
		msgtype, data, err := cp.conn.ReadMessage()
		if err != nil {
			if !netutil.IsConnectionError(err) && !cp.closed.Load() {
				gwlog.Warnf("%s: read failed: %s", cp, err)
			}
			return
		}
		if msgtype != websocket.BinaryMessage {
			continue
		}

		packet, err := cp.rs.Codec().DecodePacket(data)
		if err != nil {
			gwlog.Warnf("%s: bad packet: %s", cp, err)
			continue
		}
		cp.rs.Dispatch(cp.clientid, packet)
	}
}

func (cp *ClientProxy) write(data []byte) error {
	_ = cp.conn.SetWriteDeadline(time.Now().Add(consts.CLIENT_PROXY_WRITE_TIMEOUT))
	return cp.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (cp *ClientProxy) writeLoop() {
	defer cp.conn.Close()
	for {
		select {
		case data := <-cp.sendQueue:
			if err := cp.write(data); err != nil {
				if !netutil.IsConnectionError(err) {
					gwlog.Warnf("%s: write failed: %s", cp, err)
				}
				cp.Close()
				return
			}
		case <-cp.done:
			cp.drain()
			return
		}
	}
}

// drain writes what is left in the send queue and the close frame
func (cp *ClientProxy) drain() {
	for {
		select {
		case data := <-cp.sendQueue:
			if err := cp.write(data); err != nil {
				return
			}
		default:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = cp.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
	}
}
