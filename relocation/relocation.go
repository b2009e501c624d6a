package relocation

import (
	"time"

	timer "github.com/xiaonanln/goTimer"

	"github.com/mirrorworlds/worldmesh/engine/config"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
	"github.com/mirrorworlds/worldmesh/manager"
	"github.com/mirrorworlds/worldmesh/resource"
	"github.com/mirrorworlds/worldmesh/world"
)

// Transport issues player-connection commands to the proxy
type Transport interface {
	// ConnectPlayer asks the proxy to move the player to the named server
	ConnectPlayer(playerID world.PlayerID, serverName string) error
	// RequestServerName asks the proxy which server the player is on; the
	// answer arrives asynchronously as a server-name reply
	RequestServerName(playerID world.PlayerID) error
}

// intent is an in-flight relocation of one player
type intent struct {
	targetWorld string
	attempts    int
	createdAt   time.Time
	retryTimer  *timer.Timer
}

// arrival is a parked teleport waiting for its player to join
type arrival struct {
	targetWorld string
	createdAt   time.Time
	expireTimer *timer.Timer
}

// Coordinator drives cross-server player relocations. On the source server
// it sends the teleport command, asks the proxy to switch the player over
// and verifies the switch with a bounded number of fixed-delay retries. On
// the worlds server it teleports players into their target world once they
// arrive, after a short settle delay.
//
// All methods run on the main routine; timer callbacks fire there too.
type Coordinator struct {
	cfg       *config.RelocationConfig
	server    *config.ServerConfig
	transport Transport
	messenger manager.Messenger
	manager   *manager.Manager
	players   manager.PlayerProvider

	intents  map[world.PlayerID]*intent  // source side: relocations being verified
	arrivals map[world.PlayerID]*arrival // destination side: parked teleports of players yet to join
}

func NewCoordinator(cfg *config.RelocationConfig, server *config.ServerConfig, transport Transport, messenger manager.Messenger, mgr *manager.Manager, players manager.PlayerProvider) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		server:    server,
		transport: transport,
		messenger: messenger,
		manager:   mgr,
		players:   players,
		intents:   map[world.PlayerID]*intent{},
		arrivals:  map[world.PlayerID]*arrival{},
	}
}

// RequestRelocation starts moving the player to the world hosted on the
// worlds server. A newer request for the same player supersedes an older one.
func (c *Coordinator) RequestRelocation(player resource.Player, internalName string) {
	playerID := player.ID()
	if prev := c.intents[playerID]; prev != nil {
		wmlog.Warnf("relocation: superseding pending relocation of %s to %s", playerID, prev.targetWorld)
		c.clearIntent(playerID)
	}

	if !c.messenger.SendTeleportToWorld(playerID, internalName) {
		wmlog.Errorf("relocation: cannot send teleport command for %s, aborting", playerID)
		return
	}
	if err := c.transport.ConnectPlayer(playerID, c.server.WorldsServer); err != nil {
		wmlog.Errorf("relocation: cannot request server switch for %s: %v", playerID, err)
		return
	}

	in := &intent{
		targetWorld: internalName,
		attempts:    1,
		createdAt:   time.Now(),
	}
	c.intents[playerID] = in
	c.scheduleVerify(playerID, in)
	wmlog.Debugf("relocation: moving %s to %s on %s", playerID, internalName, c.server.WorldsServer)
}

// scheduleVerify drives the retry loop from the timer alone: the proxy
// channel carries no acks, so a lost reply must not stall the intent. Every
// firing with the intent still open counts as a failed attempt.
func (c *Coordinator) scheduleVerify(playerID world.PlayerID, in *intent) {
	in.retryTimer = timer.AddCallback(c.cfg.RetryDelay, func() {
		in.retryTimer = nil
		if c.intents[playerID] != in {
			return // superseded or confirmed
		}

		if in.attempts >= c.cfg.MaxAttempts {
			wmlog.Warnf("relocation: giving up on %s after %d attempts (target %s)", playerID, in.attempts, in.targetWorld)
			c.clearIntent(playerID)
			return
		}

		in.attempts++
		if err := c.transport.ConnectPlayer(playerID, c.server.WorldsServer); err != nil {
			wmlog.Errorf("relocation: retrying server switch for %s failed: %v", playerID, err)
		}
		if err := c.transport.RequestServerName(playerID); err != nil {
			wmlog.Errorf("relocation: cannot query server of %s: %v", playerID, err)
		}
		c.scheduleVerify(playerID, in)
	})
}

// OnServerNameReply consumes the proxy's answer to a server-name query. A
// reply naming the worlds server confirms the switch and clears the intent;
// any other reply is informational, the verify timer owns the retries.
func (c *Coordinator) OnServerNameReply(playerID world.PlayerID, serverName string) {
	in := c.intents[playerID]
	if in == nil {
		return // not ours, or already settled
	}

	if serverName == c.server.WorldsServer {
		wmlog.Debugf("relocation: %s arrived on %s after %d attempt(s)", playerID, serverName, in.attempts)
		c.clearIntent(playerID)
		return
	}

	wmlog.Debugf("relocation: %s still on %s", playerID, serverName)
}

func (c *Coordinator) clearIntent(playerID world.PlayerID) {
	if in := c.intents[playerID]; in != nil && in.retryTimer != nil {
		in.retryTimer.Cancel()
	}
	delete(c.intents, playerID)
}

// NumPendingIntents returns the number of relocations being verified
func (c *Coordinator) NumPendingIntents() int {
	return len(c.intents)
}

// arrivalTTL bounds how long a parked teleport waits for its player: the
// source side stops re-sending after MaxAttempts delays, so anything parked
// longer belongs to a transfer that is already abandoned.
func (c *Coordinator) arrivalTTL() time.Duration {
	return time.Duration(c.cfg.MaxAttempts)*c.cfg.RetryDelay + c.cfg.SettleDelay
}

// HandleArrivingTeleport handles a teleport command for a player expected on
// this server. If the player is already here the teleport runs after the
// settle delay; otherwise it is parked until the player joins, or expires.
func (c *Coordinator) HandleArrivingTeleport(playerID world.PlayerID, internalName string) {
	if player := c.players.GetPlayer(playerID); player != nil {
		c.settleTeleport(playerID, internalName)
		return
	}

	c.clearArrival(playerID)
	a := &arrival{targetWorld: internalName, createdAt: time.Now()}
	c.arrivals[playerID] = a
	a.expireTimer = timer.AddCallback(c.arrivalTTL(), func() {
		a.expireTimer = nil
		if c.arrivals[playerID] != a {
			return
		}
		wmlog.Warnf("relocation: %s never joined, dropping parked teleport to %s", playerID, a.targetWorld)
		delete(c.arrivals, playerID)
	})
}

// OnPlayerJoin is the host server's join hook: it completes a parked
// teleport for the arriving player
func (c *Coordinator) OnPlayerJoin(player resource.Player) {
	a, ok := c.arrivals[player.ID()]
	if !ok {
		return
	}
	c.clearArrival(player.ID())
	c.settleTeleport(player.ID(), a.targetWorld)
}

func (c *Coordinator) clearArrival(playerID world.PlayerID) {
	if a := c.arrivals[playerID]; a != nil && a.expireTimer != nil {
		a.expireTimer.Cancel()
	}
	delete(c.arrivals, playerID)
}

// NumParkedArrivals returns the number of parked teleports
func (c *Coordinator) NumParkedArrivals() int {
	return len(c.arrivals)
}

// settleTeleport teleports the player into the world after the settle delay,
// giving the proxy switch time to finish. The delay is a compromise: a
// player who switches fast enough could still be teleported twice, which the
// idempotent teleport makes harmless.
func (c *Coordinator) settleTeleport(playerID world.PlayerID, internalName string) {
	timer.AddCallback(c.cfg.SettleDelay, func() {
		player := c.players.GetPlayer(playerID)
		if player == nil {
			wmlog.Warnf("relocation: %s left before the settle delay expired", playerID)
			return
		}
		record := c.manager.GetByName(internalName)
		if record == nil {
			wmlog.Warnf("relocation: target world %s of %s is gone", internalName, playerID)
			return
		}
		if !c.manager.Teleport(player, record) {
			wmlog.Errorf("relocation: teleporting %s into %s failed", playerID, internalName)
		}
	})
}
