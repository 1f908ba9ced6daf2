//go:build windows
// +build windows

package binutil

import "github.com/xiaonanln/worldsync/engine/gwlog"

type nopRelease int

func (_ nopRelease) Release() error {
	return nil
}

// Daemonize is not supported on windows
func Daemonize() nopRelease {
	// Windows can not daemonize
	gwlog.Warnf("can not run in daemon mode in windows, -d ignored")
	return nopRelease(0)
}
