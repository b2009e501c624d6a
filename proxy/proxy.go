package proxy

import (
	"fmt"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	kcp "github.com/xtaci/kcp-go"

	"github.com/mirrorworlds/worldmesh/engine/config"
	"github.com/mirrorworlds/worldmesh/engine/consts"
	"github.com/mirrorworlds/worldmesh/engine/netutil"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
	"github.com/mirrorworlds/worldmesh/engine/wmutils"
	"github.com/mirrorworlds/worldmesh/world"
)

// Connection commands understood by proxy agents
const (
	cmdConnectOther = "ConnectOther"
	cmdGetServer    = "GetServer"
)

// MessageHandler consumes plugin messages on the main routine
type MessageHandler interface {
	HandlePluginMessage(packet *netutil.Packet)
}

// Service is the proxy link: it accepts connections from proxy agents over
// TCP (and optionally KCP), receives their plugin messages and transmits
// outbound ones through any live agent. Sends are fire-and-forget and fail
// fast when no agent is connected.
type Service struct {
	cfg     *config.ProxyConfig
	handler MessageHandler

	sessionsLock sync.RWMutex
	sessions     map[*agentSession]struct{}

	terminating xnsyncutil.AtomicBool
}

func NewService(cfg *config.ProxyConfig, handler MessageHandler) *Service {
	return &Service{
		cfg:      cfg,
		handler:  handler,
		sessions: map[*agentSession]struct{}{},
	}
}

func (svc *Service) String() string {
	return fmt.Sprintf("proxy.Service<%s:%d>", svc.cfg.Ip, svc.cfg.Port)
}

// Run starts listening for proxy agents. It returns immediately; serving
// happens on background routines.
func (svc *Service) Run() {
	listenAddr := fmt.Sprintf("%s:%d", svc.cfg.Ip, svc.cfg.Port)
	go netutil.ServeTCPForever(listenAddr, svc)
	if svc.cfg.KCP {
		go svc.serveKCP(listenAddr)
	}
}

// ServeTCPConnection handles a TCP connection from a proxy agent
func (svc *Service) ServeTCPConnection(conn net.Conn) {
	tcpConn := conn.(*net.TCPConn)
	tcpConn.SetWriteBuffer(consts.PROXY_CONN_WRITE_BUFFER_SIZE)
	tcpConn.SetReadBuffer(consts.PROXY_CONN_READ_BUFFER_SIZE)
	tcpConn.SetNoDelay(consts.PROXY_CONN_SET_TCP_NO_DELAY)

	svc.handleAgentConnection(conn)
}

func (svc *Service) serveKCP(addr string) {
	kcpListener, err := kcp.ListenWithOptions(addr, nil, 10, 3)
	if err != nil {
		wmlog.Panic(err)
	}

	wmlog.Infof("Listening on KCP: %s ...", addr)

	wmutils.RepeatUntilPanicless(func() {
		for {
			conn, err := kcpListener.AcceptKCP()
			if err != nil {
				wmlog.Panic(err)
			}
			go svc.handleKCPConn(conn)
		}
	})
}

func (svc *Service) handleKCPConn(conn *kcp.UDPSession) {
	wmlog.Infof("KCP connection from %s", conn.RemoteAddr())

	conn.SetReadBuffer(consts.PROXY_CONN_READ_BUFFER_SIZE)
	conn.SetWriteBuffer(consts.PROXY_CONN_WRITE_BUFFER_SIZE)
	conn.SetStreamMode(true)
	conn.SetWriteDelay(true)
	conn.SetNoDelay(1, 10, 2, 1)
	svc.handleAgentConnection(conn)
}

func (svc *Service) handleAgentConnection(conn net.Conn) {
	if svc.terminating.Load() {
		conn.Close()
		return
	}

	session := newAgentSession(svc, conn, svc.cfg)
	session.serve()
}

func (svc *Service) onSessionReady(session *agentSession) {
	svc.sessionsLock.Lock()
	svc.sessions[session] = struct{}{}
	svc.sessionsLock.Unlock()
	wmlog.Infof("%s ready", session)
}

func (svc *Service) onSessionClose(session *agentSession) {
	svc.sessionsLock.Lock()
	delete(svc.sessions, session)
	svc.sessionsLock.Unlock()
}

// NumSessions returns the number of live agent sessions
func (svc *Service) NumSessions() int {
	svc.sessionsLock.RLock()
	defer svc.sessionsLock.RUnlock()
	return len(svc.sessions)
}

// anySession returns a live session, or nil when no agent is connected
func (svc *Service) anySession() *agentSession {
	svc.sessionsLock.RLock()
	defer svc.sessionsLock.RUnlock()
	for session := range svc.sessions {
		return session
	}
	return nil
}

// SendPluginMessage transmits the packet through any live agent session,
// taking ownership of the packet
func (svc *Service) SendPluginMessage(packet *netutil.Packet) error {
	defer packet.Release()

	session := svc.anySession()
	if session == nil {
		return errors.Errorf("%s: no live proxy connection", svc)
	}

	return errors.Wrap(session.SendPacket(packet), "sending plugin message")
}

// ConnectPlayer asks the proxy to move the player to the named server
func (svc *Service) ConnectPlayer(playerID world.PlayerID, serverName string) error {
	packet := netutil.NewPacket()
	packet.AppendVarStr(cmdConnectOther)
	packet.AppendVarStr(string(playerID))
	packet.AppendVarStr(serverName)
	return svc.SendPluginMessage(packet)
}

// RequestServerName asks the proxy which server the player is on
func (svc *Service) RequestServerName(playerID world.PlayerID) error {
	packet := netutil.NewPacket()
	packet.AppendVarStr(cmdGetServer)
	packet.AppendVarStr(string(playerID))
	return svc.SendPluginMessage(packet)
}

// Terminate stops accepting agents and closes the live sessions
func (svc *Service) Terminate() {
	svc.terminating.Store(true)

	svc.sessionsLock.Lock()
	defer svc.sessionsLock.Unlock()
	for session := range svc.sessions {
		session.Close()
	}
}
