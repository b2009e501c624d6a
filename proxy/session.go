package proxy

import (
	"fmt"
	"net"

	"github.com/xiaonanln/netconnutil"

	"github.com/mirrorworlds/worldmesh/engine/config"
	"github.com/mirrorworlds/worldmesh/engine/consts"
	"github.com/mirrorworlds/worldmesh/engine/netutil"
	"github.com/mirrorworlds/worldmesh/engine/post"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
)

// agentSession is one connected proxy agent managed by the link service
type agentSession struct {
	*netutil.PacketConnection
	service *Service
	name    string // agent name from the handshake
}

func newAgentSession(service *Service, _conn net.Conn, cfg *config.ProxyConfig) *agentSession {
	_conn = netconnutil.NewNoTempErrorConn(_conn)
	var conn netutil.Connection = netutil.NetConn{Conn: _conn}
	if cfg.CompressConnection {
		conn = netconnutil.NewSnappyConn(conn)
	}
	conn = netconnutil.NewBufferedConn(conn, consts.BUFFERED_READ_BUFFSIZE, consts.BUFFERED_WRITE_BUFFSIZE)
	return &agentSession{
		PacketConnection: netutil.NewPacketConnection(conn),
		service:          service,
	}
}

func (as *agentSession) String() string {
	return fmt.Sprintf("agentSession<%s@%s>", as.name, as.RemoteAddr())
}

func (as *agentSession) serve() {
	defer func() {
		as.Close()
		post.Post(func() {
			as.service.onSessionClose(as)
		})

		if err := recover(); err != nil && !netutil.IsConnectionError(err) {
			wmlog.TraceError("%s error: %s", as, err)
		} else {
			wmlog.Debugf("%s disconnected", as)
		}
	}()

	// the first packet is the handshake carrying the agent name
	handshake, err := as.RecvPacket()
	if err != nil {
		wmlog.Panic(err)
	}
	as.name = handshake.ReadVarStr()
	handshake.Release()
	as.service.onSessionReady(as)

	for {
		packet, err := as.RecvPacket()
		if err != nil {
			wmlog.Panic(err)
		}

		post.Post(func() {
			as.service.handler.HandlePluginMessage(packet)
			packet.Release()
		})
	}
}
