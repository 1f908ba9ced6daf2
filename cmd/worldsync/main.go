// Command worldsync runs a room service with its websocket gate.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaonanln/worldsync/components/gate"
	"github.com/xiaonanln/worldsync/components/roomsvc"
	"github.com/xiaonanln/worldsync/components/sharding"
	"github.com/xiaonanln/worldsync/engine/binutil"
	"github.com/xiaonanln/worldsync/engine/config"
	"github.com/xiaonanln/worldsync/engine/consts"
	"github.com/xiaonanln/worldsync/engine/gwlog"
	"github.com/xiaonanln/worldsync/engine/netutil"
	"github.com/xiaonanln/worldsync/engine/opmon"
)

var (
	args struct {
		configFile      string
		logLevel        string
		listenAddr      string
		runInDaemonMode bool
	}
	signalChan = make(chan os.Signal, 1)
)

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.StringVar(&args.listenAddr, "listen-addr", "", "set websocket listen address, overriding listen_addr in config file")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.Parse()
}

func main() {
	rand.Seed(time.Now().UnixNano())
	parseArgs()

	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize()
		defer daemoncontext.Release()
	}

	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	cfg := config.Get()
	serverConfig := &cfg.Server
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = serverConfig.LogLevel
	}
	binutil.SetupGWLog("worldsync", logLevel, serverConfig.LogFile, serverConfig.LogStderr)
	fmt.Fprintf(os.Stderr, "Read worldsync config: \n%s\n", config.DumpPretty(cfg))
	binutil.SetupPprof(serverConfig.HTTPAddr)

	codec, err := netutil.NewPacketCodecByName(serverConfig.Codec, serverConfig.Compress, serverConfig.CompressFormat)
	if err != nil {
		gwlog.Fatalf("create packet codec failed: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := sharding.NewManager(cfg.Sharding)
	if sampler, err := sharding.NewLoadSampler(); err != nil {
		gwlog.Warnf("process load sampling disabled: %s", err)
	} else {
		sampler.Start(ctx, cfg.Sharding.HealthCheckInterval)
		mgr.SetLoadSampler(sampler)
	}
	mgr.OnHealthChange(func(shard sharding.RoomShard, old sharding.Health) {
		if shard.Health == sharding.Unhealthy {
			gwlog.Warnf("room %s of zone %s became unhealthy (was %s)", shard.RoomID, shard.Zone, old)
		}
	})

	rs := roomsvc.NewRoomService(cfg, codec, mgr)
	listenAddr := args.listenAddr
	if listenAddr == "" {
		listenAddr = serverConfig.ListenAddr
	}
	gs := gate.NewGateService(listenAddr, rs)
	opmon.StartDumping(consts.OPMON_DUMP_INTERVAL)

	setupSignals(rs, gs, cancel)
	go func() {
		if err := gs.ListenAndServe(); err != nil {
			gwlog.Fatalf("%s stopped: %s", gs, err)
		}
	}()
	rs.Run()
}

func setupSignals(rs *roomsvc.RoomService, gs *gate.GateService, cancel context.CancelFunc) {
	gwlog.Infof("Setup signals ...")
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			sig := <-signalChan
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				gwlog.Infof("Terminating worldsync ...")
				ctx, done := context.WithTimeout(context.Background(), time.Second*5)
				if err := gs.Shutdown(ctx); err != nil {
					gwlog.Warnf("shutdown %s: %s", gs, err)
				}
				done()
				rs.Terminate()
				cancel()
				gwlog.Infof("worldsync terminated gracefully.")
				gwlog.Sync()
				os.Exit(0)
			} else {
				gwlog.Errorf("unexpected signal: %s", sig)
			}
		}
	}()
}
