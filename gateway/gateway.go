package gateway

import (
	"github.com/mirrorworlds/worldmesh/engine/config"
	"github.com/mirrorworlds/worldmesh/engine/consts"
	"github.com/mirrorworlds/worldmesh/engine/netutil"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
	"github.com/mirrorworlds/worldmesh/manager"
	"github.com/mirrorworlds/worldmesh/world"
)

// Plugin message tags
const (
	forwardTag = "Forward"
	forwardAll = "ALL"

	msgCreateWorld    = "CreateWorld"
	msgTeleport       = "TeleportToWorld"
	msgDeleteWorld    = "DeleteWorld"
	msgUpdateSettings = "UpdateWorldSettings"
	msgGetServer      = "GetServer"
)

// ProxyLink transmits a plugin message through any live proxy connection.
// The link takes ownership of the packet.
type ProxyLink interface {
	SendPluginMessage(packet *netutil.Packet) error
}

// RelocationHandler consumes server-name replies arriving on the plugin
// channel
type RelocationHandler interface {
	OnServerNameReply(playerID world.PlayerID, serverName string)
}

// Gateway encodes lifecycle commands into proxy plugin messages and decodes
// inbound ones into manager calls. It implements manager.Messenger.
type Gateway struct {
	cfg     *config.ProxyConfig
	server  *config.ServerConfig
	link    ProxyLink
	manager *manager.Manager
	reloc   RelocationHandler
}

func NewGateway(cfg *config.ProxyConfig, server *config.ServerConfig, mgr *manager.Manager) *Gateway {
	return &Gateway{
		cfg:     cfg,
		server:  server,
		manager: mgr,
	}
}

// BindLink binds the proxy link the gateway transmits through
func (gw *Gateway) BindLink(link ProxyLink) {
	gw.link = link
}

// BindRelocationHandler binds the consumer of server-name replies
func (gw *Gateway) BindRelocationHandler(h RelocationHandler) {
	gw.reloc = h
}

// SendCreateWorld forwards a create command to the worlds server
func (gw *Gateway) SendCreateWorld(record *world.Record) bool {
	return gw.forward(gw.server.WorldsServer, func(p *netutil.Packet) {
		p.AppendVarStr(msgCreateWorld)
		p.AppendVarStr(record.InternalName)
		p.AppendVarStr(record.DisplayName)
		p.AppendVarStr(string(record.OwnerID))
		p.AppendVarStr(record.Icon)
		AppendSettings(p, &record.Settings)
	})
}

// SendTeleportToWorld forwards a teleport command to the worlds server
func (gw *Gateway) SendTeleportToWorld(playerID world.PlayerID, internalName string) bool {
	return gw.forward(gw.server.WorldsServer, func(p *netutil.Packet) {
		p.AppendVarStr(msgTeleport)
		p.AppendVarStr(string(playerID))
		p.AppendVarStr(internalName)
	})
}

// SendDeleteWorld forwards a delete command to the worlds server
func (gw *Gateway) SendDeleteWorld(internalName string) bool {
	return gw.forward(gw.server.WorldsServer, func(p *netutil.Packet) {
		p.AppendVarStr(msgDeleteWorld)
		p.AppendVarStr(internalName)
	})
}

// SendUpdateSettings forwards new settings of the world to the worlds server
func (gw *Gateway) SendUpdateSettings(record *world.Record) bool {
	return gw.forward(gw.server.WorldsServer, func(p *netutil.Packet) {
		p.AppendVarStr(msgUpdateSettings)
		p.AppendVarStr(record.InternalName)
		AppendSettings(p, &record.Settings)
	})
}

// forward wraps the body built by fill in a forwarding envelope addressed to
// dest and hands it to the proxy link
func (gw *Gateway) forward(dest string, fill func(*netutil.Packet)) bool {
	if gw.link == nil {
		wmlog.Errorf("gateway: no proxy link bound")
		return false
	}

	body := netutil.NewPacket()
	fill(body)
	if body.GetPayloadLen() > consts.MAX_ENVELOPE_PAYLOAD_LEN {
		wmlog.Errorf("gateway: message body too large: %d bytes", body.GetPayloadLen())
		body.Release()
		return false
	}

	packet := netutil.NewPacket()
	packet.AppendVarStr(forwardTag)
	packet.AppendVarStr(dest)
	packet.AppendVarStr(gw.cfg.ChannelName)
	packet.AppendUint16(uint16(body.GetPayloadLen()))
	packet.AppendBytes(body.Payload())
	body.Release()

	if err := gw.link.SendPluginMessage(packet); err != nil {
		wmlog.Errorf("gateway: sending plugin message failed: %v", err)
		return false
	}
	return true
}

// HandlePluginMessage decodes a plugin message received from the proxy and
// dispatches it. Malformed messages are logged and dropped. Must be called
// on the main routine.
func (gw *Gateway) HandlePluginMessage(packet *netutil.Packet) {
	defer func() {
		if err := recover(); err != nil {
			wmlog.Warnf("gateway: dropping malformed plugin message: %v", err)
		}
	}()

	tag := packet.ReadVarStr()
	if tag == msgGetServer {
		// direct reply to a server-name query, not forwarded traffic
		playerID := world.PlayerID(packet.ReadVarStr())
		serverName := packet.ReadVarStr()
		if gw.reloc != nil {
			gw.reloc.OnServerNameReply(playerID, serverName)
		}
		return
	}
	if tag != forwardTag {
		if consts.DEBUG_PACKETS {
			wmlog.Debugf("gateway: ignoring plugin message %s", tag)
		}
		return
	}

	dest := packet.ReadVarStr()
	if dest != forwardAll && dest != gw.server.ServerName {
		return // addressed elsewhere
	}

	channel := packet.ReadVarStr()
	if channel != gw.cfg.ChannelName {
		return
	}

	bodyLen := packet.ReadUint16()
	if uint32(bodyLen) > packet.UnreadPayloadLen() {
		wmlog.Warnf("gateway: plugin message body truncated: declared %d, got %d", bodyLen, packet.UnreadPayloadLen())
		return
	}

	gw.dispatch(packet)
}

func (gw *Gateway) dispatch(packet *netutil.Packet) {
	msg := packet.ReadVarStr()
	if consts.DEBUG_PACKETS {
		wmlog.Debugf("gateway: received %s", msg)
	}

	switch msg {
	case msgCreateWorld:
		internalName := packet.ReadVarStr()
		displayName := packet.ReadVarStr()
		ownerID := world.PlayerID(packet.ReadVarStr())
		icon := packet.ReadVarStr()
		settings := ReadSettings(packet, gw.manager.Template())
		gw.manager.HandleRemoteCreateWorld(internalName, displayName, ownerID, icon, settings)
	case msgTeleport:
		playerID := world.PlayerID(packet.ReadVarStr())
		internalName := packet.ReadVarStr()
		gw.manager.HandleRemoteTeleport(playerID, internalName)
	case msgDeleteWorld:
		gw.manager.HandleRemoteDeleteWorld(packet.ReadVarStr())
	case msgUpdateSettings:
		internalName := packet.ReadVarStr()
		settings := ReadSettings(packet, gw.manager.Template())
		gw.manager.HandleRemoteUpdateSettings(internalName, settings)
	case msgGetServer:
		playerID := world.PlayerID(packet.ReadVarStr())
		serverName := packet.ReadVarStr()
		if gw.reloc != nil {
			gw.reloc.OnServerNameReply(playerID, serverName)
		}
	default:
		wmlog.Warnf("gateway: unknown plugin message %q", msg)
	}
}
