package netutil

import (
	"net"

	"github.com/xiaonanln/netconnutil"
)

// Connection is the network connection type used by packet connections:
// a net.Conn that supports explicit flushing
type Connection interface {
	netconnutil.FlushableConn
}

// NetConn adapts a plain net.Conn to Connection with a no-op Flush
type NetConn struct {
	net.Conn
}

func (n NetConn) Flush() error {
	return nil
}
