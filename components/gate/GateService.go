// Package gate accepts websocket clients and connects them to the room service.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/worldsync/components/roomsvc"
	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/consts"
	"github.com/xiaonanln/worldsync/engine/gwlog"
)

// GateService implements the gate service logic
type GateService struct {
	listenAddr        string
	rs                *roomsvc.RoomService
	upgrader          websocket.Upgrader
	clientProxies     map[common.ClientID]*ClientProxy
	clientProxiesLock sync.RWMutex
	server            *http.Server
	terminating       xnsyncutil.AtomicBool
}

// NewGateService creates a GateService serving clients of the room service
func NewGateService(listenAddr string, rs *roomsvc.RoomService) *GateService {
	return &GateService{
		listenAddr: listenAddr,
		rs:         rs,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		clientProxies: map[common.ClientID]*ClientProxy{},
	}
}

func (gs *GateService) String() string {
	return fmt.Sprintf("GateService<%s>", gs.listenAddr)
}

// Handler returns the HTTP handler serving /ws and /status
func (gs *GateService) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gs.handleWebSocket)
	mux.HandleFunc("/status", gs.handleStatus)
	return mux
}

// ListenAndServe serves clients until Shutdown is called
func (gs *GateService) ListenAndServe() error {
	gs.server = &http.Server{Addr: gs.listenAddr, Handler: gs.Handler()}
	gwlog.Infof("%s: listening on websocket ...", gs)
	err := gs.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting clients and closes all connected ones
func (gs *GateService) Shutdown(ctx context.Context) error {
	gs.terminating.Store(true)
	var err error
	if gs.server != nil {
		err = gs.server.Shutdown(ctx)
	}

	gs.clientProxiesLock.RLock()
	proxies := make([]*ClientProxy, 0, len(gs.clientProxies))
	for _, cp := range gs.clientProxies {
		proxies = append(proxies, cp)
	}
	gs.clientProxiesLock.RUnlock()

	for _, cp := range proxies {
		cp.Close()
	}
	return err
}

// ClientCount returns the number of connected clients
func (gs *GateService) ClientCount() int {
	gs.clientProxiesLock.RLock()
	defer gs.clientProxiesLock.RUnlock()
	return len(gs.clientProxies)
}

func (gs *GateService) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if gs.terminating.Load() {
		http.Error(w, "server terminating", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	req := roomsvc.JoinRequest{
		Zone:           query.Get("zone"),
		RoomID:         common.RoomID(query.Get("room")),
		EntityID:       common.EntityID(query.Get("player")),
		ConnectionType: query.Get("conn"),
	}

	conn, err := gs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		gwlog.Warnf("%s: websocket upgrade failed: %s", gs, err)
		return
	}

	cp := newClientProxy(conn, gs.rs)
	gs.clientProxiesLock.Lock()
	gs.clientProxies[cp.clientid] = cp
	gs.clientProxiesLock.Unlock()
	gwlog.Debugf("%s: client %s connected", gs, cp)

	gs.rs.Post(func() {
		if _, err := gs.rs.JoinRoom(cp, req); err != nil {
			gwlog.Warnf("%s: %s join failed: %s", gs, cp, err)
			cp.Close()
		}
	})

	go cp.writeLoop()
	cp.serve()
	gs.onClientProxyClose(cp)
}

func (gs *GateService) onClientProxyClose(cp *ClientProxy) {
	gs.clientProxiesLock.Lock()
	delete(gs.clientProxies, cp.clientid)
	gs.clientProxiesLock.Unlock()

	gs.rs.Post(func() {
		gs.rs.LeaveRoom(cp.clientid)
	})
	gwlog.Debugf("%s: client %s disconnected", gs, cp)
}

func (gs *GateService) handleStatus(w http.ResponseWriter, r *http.Request) {
	result := make(chan []roomsvc.RoomStatus, 1)
	gs.rs.Post(func() {
		result <- gs.rs.Status()
	})

	select {
	case status := <-result:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			gwlog.Warnf("%s: write status failed: %s", gs, err)
		}
	case <-time.After(consts.STATUS_QUERY_TIMEOUT):
		http.Error(w, "room service busy", http.StatusServiceUnavailable)
	}
}
