// Package binutil sets up the process level facilities shared by worldsync binaries.
package binutil

import (
	"net/http"
	_ "net/http/pprof"

	"github.com/xiaonanln/worldsync/engine/gwlog"
)

// SetupPprof starts the HTTP server for go tool pprof, empty addr disables it
func SetupPprof(httpAddr string) {
	if httpAddr == "" {
		gwlog.Infof("pprof server not enabled")
		return
	}

	gwlog.Infof("http server listening on %s", httpAddr)
	gwlog.Infof("pprof http://%s/debug/pprof/ ... available commands: ", httpAddr)
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/heap", httpAddr)
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/profile", httpAddr)

	go func() {
		if err := http.ListenAndServe(httpAddr, nil); err != nil {
			gwlog.Errorf("pprof server stopped: %s", err)
		}
	}()
}

// SetupGWLog setup the worldsync log system
func SetupGWLog(component string, logLevel string, logFile string, logStderr bool) {
	gwlog.SetSource(component)
	gwlog.SetLevel(gwlog.ParseLevel(logLevel))

	outputs := make([]string, 0, 2)
	if logFile != "" {
		outputs = append(outputs, logFile)
	}
	if logStderr || len(outputs) == 0 {
		outputs = append(outputs, "stderr")
	}
	gwlog.SetOutput(outputs)
	gwlog.Infof("Set log level to %s, outputs %v", logLevel, outputs)
}
