//go:build windows
// +build windows

package binutil

import "github.com/mirrorworlds/worldmesh/engine/wmlog"

type nopRelease int

func (_ nopRelease) Release() {

}

func Daemonize() nopRelease {
	// Windows can not daemonize
	wmlog.Warnf("can not run in daemon mode in windows, -d ignored")
	return nopRelease(0)
}
