//go:build !windows
// +build !windows

package binutil

import (
	"os"

	daemon "github.com/sevlyar/go-daemon"

	"github.com/mirrorworlds/worldmesh/engine/wmlog"
)

func Daemonize() *daemon.Context {
	context := new(daemon.Context)
	child, err := context.Reborn()

	if err != nil {
		// daemonize failed
		wmlog.Panicf("daemonize failed: %v", err)
	}

	if child != nil {
		wmlog.Infof("run in daemon mode")
		os.Exit(0)
		return nil
	} else {
		return context
	}
}
