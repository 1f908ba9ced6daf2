// Command syncbot connects simulated players to a worldsync server and walks them around.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/xiaonanln/worldsync/components/syncclient"
	"github.com/xiaonanln/worldsync/engine/binutil"
	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/config"
	"github.com/xiaonanln/worldsync/engine/gwlog"
	"github.com/xiaonanln/worldsync/engine/netutil"
	"github.com/xiaonanln/worldsync/engine/proto"
)

var (
	args struct {
		wsURL          string
		configFile     string
		clientCount    int
		duration       time.Duration
		zone           string
		connectionType string
		logLevel       string
	}
)

func parseArgs() {
	flag.StringVar(&args.wsURL, "ws", "ws://localhost:8080/ws", "worldsync websocket url")
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.IntVar(&args.clientCount, "clients", 10, "number of bot clients")
	flag.DurationVar(&args.duration, "duration", time.Second*30, "how long the bots run")
	flag.StringVar(&args.zone, "zone", "", "zone to join")
	flag.StringVar(&args.connectionType, "conn", "wifi", "reported connection type")
	flag.StringVar(&args.logLevel, "log", "info", "set log level")
	flag.Parse()
}

func main() {
	parseArgs()
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	binutil.SetupGWLog("syncbot", args.logLevel, "", true)
	cfg := config.Get()

	codec, err := netutil.NewPacketCodecByName(cfg.Server.Codec, cfg.Server.Compress, cfg.Server.CompressFormat)
	if err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), args.duration)
	defer cancel()

	var wg sync.WaitGroup
	bots := make([]*botClient, 0, args.clientCount)
	for i := 0; i < args.clientCount; i++ {
		bot, err := newBotClient(ctx, codec, cfg, fmt.Sprintf("bot-%d", i+1), i)
		if err != nil {
			fail(err)
		}
		bots = append(bots, bot)
		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.run(ctx)
		}()
	}
	wg.Wait()

	for _, bot := range bots {
		fmt.Println(bot.report())
	}
	gwlog.Sync()
}

type botClient struct {
	id     string
	index  int
	conn   *websocket.Conn
	client *syncclient.Client
	inbox  chan []byte
	done   chan error
	moves  int
}

func newBotClient(ctx context.Context, codec *netutil.PacketCodec, cfg *config.WorldSyncConfig, playerID string, index int) (*botClient, error) {
	query := url.Values{}
	query.Set("player", playerID)
	query.Set("conn", args.connectionType)
	if args.zone != "" {
		query.Set("zone", args.zone)
	}
	sep := "?"
	if strings.Contains(args.wsURL, "?") {
		sep = "&"
	}
	conn, err := dialWithRetry(ctx, args.wsURL+sep+query.Encode())
	if err != nil {
		return nil, err
	}

	bot := &botClient{
		id:    playerID,
		index: index,
		conn:  conn,
		inbox: make(chan []byte, 256),
		done:  make(chan error, 1),
	}
	bot.client = syncclient.NewClient(codec, cfg, bot.send)
	go bot.readLoop()
	return bot, nil
}

func (c *botClient) send(data []byte) error {
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *botClient) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.done <- err
			close(c.done)
			return
		}
		c.inbox <- data
	}
}

// run applies server packets and moves the bot on a circle until ctx is done
func (c *botClient) run(ctx context.Context) {
	defer c.conn.Close()
	ticker := time.NewTicker(time.Millisecond * 100)
	defer ticker.Stop()

	center := common.Vector3{X: common.Coord(c.index * 5)}
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.done:
			if err != nil {
				gwlog.Warnf("%s: connection closed: %s", c.id, err)
			}
			return
		case data := <-c.inbox:
			if err := c.client.HandleData(data, proto.NowMillis()); err != nil {
				gwlog.Warnf("%s: bad packet: %s", c.id, err)
			}
			if disconnected, reason := c.client.Disconnected(); disconnected {
				gwlog.Infof("%s: disconnected: %s", c.id, reason)
				return
			}
		case <-ticker.C:
			if c.client.RoomID().IsNil() {
				continue
			}
			angle := time.Since(start).Seconds()
			pos := center.Add(common.Vector3{
				X: common.Coord(math.Cos(angle) * 10),
				Z: common.Coord(math.Sin(angle) * 10),
			})
			if _, err := c.client.Move(pos, common.Yaw(angle), proto.NowMillis()); err != nil {
				gwlog.Warnf("%s: move failed: %s", c.id, err)
				return
			}
			c.moves += 1
			gwlog.Debugf("%s: rendering %d entities", c.id, len(c.client.RenderState(proto.NowMillis())))
		}
	}
}

func (c *botClient) report() string {
	r := c.client.Reconciler()
	return fmt.Sprintf("%s: room %s, %d packets, %d moves, %d visible, %d pending inputs, %d snaps",
		c.id, c.client.RoomID(), c.client.PacketsReceived(), c.moves, len(c.client.Entities()), r.PendingInputs(), r.Snaps())
}

func dialWithRetry(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	if !strings.HasPrefix(wsURL, "ws://") && !strings.HasPrefix(wsURL, "wss://") {
		return nil, errors.Errorf("invalid ws url: %s", wsURL)
	}
	var lastErr error
	for attempt := 0; attempt < 12; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(180 * time.Millisecond):
		}
	}
	return nil, errors.Wrap(lastErr, "dial failed")
}

func fail(err error) {
	fmt.Println(err.Error())
	os.Exit(1)
}
