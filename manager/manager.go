package manager

import (
	"sort"
	"strings"

	"github.com/mirrorworlds/worldmesh/engine/config"
	"github.com/mirrorworlds/worldmesh/engine/ds"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
	"github.com/mirrorworlds/worldmesh/resource"
	"github.com/mirrorworlds/worldmesh/store"
	"github.com/mirrorworlds/worldmesh/world"
)

// Messenger sends lifecycle commands to other servers through the proxy
// forwarding channel. Sends are fire-and-forget: a true result means the
// message was handed to a live proxy connection, not that it was delivered.
type Messenger interface {
	SendCreateWorld(record *world.Record) bool
	SendTeleportToWorld(playerID world.PlayerID, internalName string) bool
	SendDeleteWorld(internalName string) bool
	SendUpdateSettings(record *world.Record) bool
}

// Relocator coordinates cross-server player transfers
type Relocator interface {
	// RequestRelocation starts moving a local player to the world on the
	// worlds server
	RequestRelocation(player resource.Player, internalName string)
	// HandleArrivingTeleport handles a teleport command for a player who is
	// arriving (or has arrived) on this server
	HandleArrivingTeleport(playerID world.PlayerID, internalName string)
}

// PlayerProvider is the host server's online player query
type PlayerProvider interface {
	GetPlayer(id world.PlayerID) resource.Player
	GetOnlinePlayers() []resource.Player
}

// PermissionFunc is the permission-check predicate collaborator
type PermissionFunc func(player resource.Player, permission string) bool

// ImportHook is the optional capability interface of a third-party world
// management integration. When no integration is present the hook is nil and
// registration is skipped.
type ImportHook interface {
	RegisterWorld(internalName string) error
	UnregisterWorld(internalName string) error
}

// Manager is the central authority over world records: it owns the in-memory
// registry, orchestrates create/delete/load/apply-settings and chooses the
// local or cross-server execution strategy. The registry is only mutated on
// the main routine; background work reports back through marshaled callbacks.
type Manager struct {
	cfg      *config.ServerConfig
	store    *store.Store
	adapter  *resource.Adapter
	players  PlayerProvider
	template world.Settings

	messenger  Messenger
	relocator  Relocator
	importHook ImportHook
	permission PermissionFunc

	registry     map[string]*world.Record // keyed by internal name
	pendingNames ds.StringSet             // internal names reserved by in-flight creates
}

// NewManager creates a Manager with its required collaborators. The optional
// messenger, relocator and import hook are bound separately.
func NewManager(cfg *config.ServerConfig, st *store.Store, adapter *resource.Adapter, players PlayerProvider, template world.Settings) *Manager {
	return &Manager{
		cfg:          cfg,
		store:        st,
		adapter:      adapter,
		players:      players,
		template:     template,
		registry:     map[string]*world.Record{},
		pendingNames: ds.StringSet{},
	}
}

// BindMessenger binds the cross-server messenger
func (m *Manager) BindMessenger(messenger Messenger) {
	m.messenger = messenger
}

// BindRelocator binds the relocation coordinator
func (m *Manager) BindRelocator(relocator Relocator) {
	m.relocator = relocator
}

// SetImportHook binds the optional world-management integration; pass nil
// when the integration is absent
func (m *Manager) SetImportHook(hook ImportHook) {
	m.importHook = hook
}

// SetPermissionFunc binds the permission-check predicate
func (m *Manager) SetPermissionFunc(f PermissionFunc) {
	m.permission = f
}

// Template returns a copy of the default settings template
func (m *Manager) Template() world.Settings {
	return m.template
}

// isWorldsServer reports whether world resources are hosted on this server
func (m *Manager) isWorldsServer() bool {
	return !m.cfg.CrossServer || m.cfg.ServerName == m.cfg.WorldsServer
}

// Initialize fills the registry from the persistence store
func (m *Manager) Initialize(callback func(count int)) {
	m.store.LoadAll(func(records []*world.Record, err error) {
		if err != nil {
			wmlog.Errorf("manager: loading worlds failed: %v", err)
		}
		for _, record := range records {
			if prev := m.registry[record.InternalName]; prev != nil {
				wmlog.Warnf("manager: duplicate persisted world %s, keeping the first", record.InternalName)
				continue
			}
			m.registry[record.InternalName] = record
		}
		wmlog.Infof("manager: %d worlds registered", len(m.registry))
		if callback != nil {
			callback(len(records))
		}
	})
}

// RefreshFromStore reconciles the registry with the persistence store,
// adopting database-assigned ids and records created by other servers
func (m *Manager) RefreshFromStore(callback func()) {
	m.store.LoadAll(func(records []*world.Record, err error) {
		if err != nil {
			wmlog.Errorf("manager: refreshing worlds failed: %v", err)
		}
		for _, record := range records {
			existing := m.registry[record.InternalName]
			if existing == nil {
				m.registry[record.InternalName] = record
			} else if !existing.IsPersisted() {
				existing.ID = record.ID
			}
		}
		if callback != nil {
			callback()
		}
	})
}

// genUniqueInternalName generates an internal name unused by the registry
// and unreserved by in-flight creates
func (m *Manager) genUniqueInternalName() string {
	for {
		name := world.GenInternalName()
		if m.registry[name] == nil && !m.pendingNames.Contains(name) {
			m.pendingNames.Add(name)
			return name
		}
	}
}

// CreateWorld creates a new world owned by ownerID: it persists a record
// built from the default settings template, registers it, then creates the
// resource locally or delegates creation to the worlds server. The callback
// receives nil on failure. Display name uniqueness is the caller's check.
func (m *Manager) CreateWorld(displayName string, ownerID world.PlayerID, icon string, requester resource.Player, callback func(*world.Record)) {
	if requester != nil && m.permission != nil && !m.permission(requester, "worldmesh.create") {
		wmlog.Warnf("manager: %s is not permitted to create worlds", requester.Name())
		m.invoke(callback, nil)
		return
	}

	if m.cfg.MaxWorldsPerOwner > 0 && len(m.GetWorldsByOwner(ownerID)) >= m.cfg.MaxWorldsPerOwner {
		wmlog.Warnf("manager: %s reached the world limit of %d", ownerID, m.cfg.MaxWorldsPerOwner)
		m.invoke(callback, nil)
		return
	}

	if !world.IsValidIcon(icon) {
		wmlog.Warnf("manager: unknown icon %q, using %s", icon, world.DefaultIcon)
		icon = world.DefaultIcon
	}

	record := world.NewRecord(displayName, ownerID, icon, m.template)
	record.InternalName = m.genUniqueInternalName()
	if requester != nil && world.IsSafeName(requester.Name()) {
		record.StoragePath = requester.Name()
	}

	m.store.Save(record, func(err error) {
		m.pendingNames.Remove(record.InternalName)
		if err != nil {
			wmlog.Errorf("manager: persisting new world %s failed: %v", record, err)
			m.invoke(callback, nil)
			return
		}

		m.registry[record.InternalName] = record

		if m.cfg.CrossServer && !m.isWorldsServer() {
			if m.createRemotely(record, requester) {
				m.invoke(callback, record)
				return
			}
			// messaging unavailable is a configuration error for the
			// operation: fall back to local creation
			wmlog.Errorf("manager: cross-server mode but messaging is unavailable, creating %s locally", record)
		}

		m.createLocally(record, callback)
	})
}

func (m *Manager) createRemotely(record *world.Record, requester resource.Player) bool {
	if m.messenger == nil {
		return false
	}
	if !m.messenger.SendCreateWorld(record) {
		return false
	}
	if requester != nil && m.relocator != nil {
		m.relocator.RequestRelocation(requester, record.InternalName)
	}
	return true
}

func (m *Manager) createLocally(record *world.Record, callback func(*world.Record)) {
	res := m.adapter.Create(record.InternalName, m.createParams())
	if res == nil {
		// roll the registration back, nothing irreversible happened yet
		delete(m.registry, record.InternalName)
		m.store.Delete(record, func(err error) {
			if err != nil {
				wmlog.Errorf("manager: removing record of failed world %s failed too: %v", record, err)
			}
		})
		m.invoke(callback, nil)
		return
	}

	m.ApplySettings(record)
	m.registerWithHook(record.InternalName)
	m.invoke(callback, record)
}

func (m *Manager) createParams() resource.CreateParams {
	return resource.CreateParams{Environment: "normal"}
}

func (m *Manager) registerWithHook(internalName string) {
	if m.importHook == nil {
		return // integration absent, skip registration
	}
	if err := m.importHook.RegisterWorld(internalName); err != nil {
		wmlog.Warnf("manager: import hook rejected world %s: %v", internalName, err)
	}
}

// DeleteWorld deletes the world: players present are relocated away, the
// resource is unloaded, backing files are removed, and only then the
// persisted row and registry entry go away. In cross-server mode with a
// requester the destructive part is delegated to the worlds server and the
// local row is removed optimistically. The callback receives false on any
// step failure, in which case the record remains registered.
func (m *Manager) DeleteWorld(record *world.Record, requester resource.Player, callback func(bool)) {
	if record == nil || m.registry[record.InternalName] != record {
		m.invokeBool(callback, false)
		return
	}

	if m.cfg.CrossServer && !m.isWorldsServer() && requester != nil && m.messenger != nil {
		if m.messenger.SendDeleteWorld(record.InternalName) {
			// the remote outcome is unobservable: remove our row and entry
			// optimistically
			m.store.Delete(record, func(err error) {
				if err != nil {
					wmlog.Errorf("manager: deleting record of %s failed: %v", record, err)
					m.invokeBool(callback, false)
					return
				}
				delete(m.registry, record.InternalName)
				m.invokeBool(callback, true)
			})
			return
		}
		wmlog.Errorf("manager: cross-server mode but messaging is unavailable, deleting %s locally", record)
	}

	m.adapter.Delete(record.InternalName, record.StoragePath, func(ok bool) {
		if !ok {
			m.invokeBool(callback, false)
			return
		}

		m.store.Delete(record, func(err error) {
			if err != nil {
				// partial completion: files are gone, the row is not; log
				// enough to reconcile manually
				wmlog.Errorf("manager: world %s files deleted but row removal failed (id=%d): %v", record.InternalName, record.ID, err)
				m.invokeBool(callback, false)
				return
			}
			if m.importHook != nil {
				if err := m.importHook.UnregisterWorld(record.InternalName); err != nil {
					wmlog.Warnf("manager: import hook unregister of %s failed: %v", record.InternalName, err)
				}
			}
			delete(m.registry, record.InternalName)
			m.invokeBool(callback, true)
		})
	})
}

// LoadWorld makes the world's resource live, applying its settings once the
// engine confirms it. Loading an already-loaded world is a no-op yielding
// the existing resource.
func (m *Manager) LoadWorld(record *world.Record, callback func(resource.Resource)) {
	if record == nil {
		if callback != nil {
			callback(nil)
		}
		return
	}

	m.adapter.Load(record.InternalName, record.StoragePath, m.createParams(), func(res resource.Resource) {
		if res != nil {
			m.ApplySettings(record)
			m.registerWithHook(record.InternalName)
		}
		if callback != nil {
			callback(res)
		}
	})
}

// GetLoaded returns the live resource of the record, or nil when unloaded
func (m *Manager) GetLoaded(record *world.Record) resource.Resource {
	if record == nil {
		return nil
	}
	return m.adapter.Engine().GetWorld(record.InternalName)
}

// settingRules maps rule names to their value in the settings
func settingRules(s *world.Settings) []struct {
	name  string
	value interface{}
} {
	return []struct {
		name  string
		value interface{}
	}{
		{"gameMode", string(s.GameMode)},
		{"pvp", s.Pvp},
		{"mobSpawning", s.MobSpawning},
		{"timeCycle", s.TimeCycle},
		{"fixedTime", s.FixedTime},
		{"weather", s.Weather},
		{"physics", s.Physics},
		{"redstone", s.Redstone},
		{"fluidFlow", s.FluidFlow},
		{"tickSpeed", s.TickSpeed},
		{"keepInventory", s.KeepInventory},
		{"announceDeaths", s.AnnounceDeaths},
		{"fallDamage", s.FallDamage},
		{"hungerDepletion", s.HungerDepletion},
		{"fireSpread", s.FireSpread},
		{"leafDecay", s.LeafDecay},
		{"blockUpdates", s.BlockUpdates},
	}
}

// ApplySettings pushes every settings field onto the loaded resource's
// environment rules. A rule the engine does not support is logged and
// skipped; it never aborts the others. No-op when the world is not loaded.
func (m *Manager) ApplySettings(record *world.Record) {
	res := m.adapter.Engine().GetWorld(record.InternalName)
	if res == nil {
		return
	}

	for _, rule := range settingRules(&record.Settings) {
		if err := res.ApplyRule(rule.name, rule.value); err != nil {
			wmlog.Warnf("manager: world %s does not support rule %s: %v", record.InternalName, rule.name, err)
		}
	}
}

// Teleport moves the player into the world. In cross-server mode this
// delegates to the relocation coordinator and a true result means the
// relocation was initiated, not that it completed.
func (m *Manager) Teleport(player resource.Player, record *world.Record) bool {
	if player == nil || record == nil {
		return false
	}

	if m.cfg.CrossServer && !m.isWorldsServer() {
		if m.relocator == nil {
			wmlog.Errorf("manager: cross-server teleport of %s without a relocation coordinator", player.Name())
			return false
		}
		m.relocator.RequestRelocation(player, record.InternalName)
		return true // initiated
	}

	m.LoadWorld(record, func(res resource.Resource) {
		if res == nil {
			wmlog.Errorf("manager: cannot load %s for teleporting %s", record.InternalName, player.Name())
			return
		}
		m.teleportIntoResource(player, record, res)
	})
	return true
}

// teleportIntoResource moves the player to the record's spawn point, or a
// safe default position when none is set
func (m *Manager) teleportIntoResource(player resource.Player, record *world.Record, res resource.Resource) bool {
	sp := record.SpawnPoint
	if sp != nil && sp.World == record.InternalName {
		return res.Teleport(player, sp.X, sp.Y, sp.Z, sp.Yaw, sp.Pitch)
	}
	return res.Teleport(player, 0, 64, 0, 0, 0)
}

// UpdateSettings replaces the record's settings, persists them, applies them
// to the loaded resource and, in cross-server mode, forwards them to the
// worlds server
func (m *Manager) UpdateSettings(record *world.Record, settings world.Settings, callback func(bool)) {
	if record == nil || !settings.Validate() {
		m.invokeBool(callback, false)
		return
	}

	record.Settings = settings // value copy
	m.store.Save(record, func(err error) {
		if err != nil {
			m.invokeBool(callback, false)
			return
		}
		m.ApplySettings(record)
		if m.cfg.CrossServer && !m.isWorldsServer() && m.messenger != nil {
			m.messenger.SendUpdateSettings(record)
		}
		m.invokeBool(callback, true)
	})
}

// TrustPlayer grants the player access and persists the trust list
func (m *Manager) TrustPlayer(record *world.Record, playerID world.PlayerID, callback func(bool)) {
	if record == nil || !record.Trust(playerID) {
		m.invokeBool(callback, false)
		return
	}
	m.persistBool(record, callback)
}

// UntrustPlayer revokes the player's access and persists the trust list
func (m *Manager) UntrustPlayer(record *world.Record, playerID world.PlayerID, callback func(bool)) {
	if record == nil || !record.Untrust(playerID) {
		m.invokeBool(callback, false)
		return
	}
	m.persistBool(record, callback)
}

// UpdateSpawnPoint records and persists the world's spawn point
func (m *Manager) UpdateSpawnPoint(record *world.Record, sp world.SpawnPoint, callback func(bool)) {
	if record == nil || !record.SetSpawnPoint(sp) {
		m.invokeBool(callback, false)
		return
	}
	m.persistBool(record, callback)
}

func (m *Manager) persistBool(record *world.Record, callback func(bool)) {
	m.store.Save(record, func(err error) {
		m.invokeBool(callback, err == nil)
	})
}

// Inbound message handlers, invoked by the messaging gateway on the main
// routine. Message delivery is at-most-once, unordered and repeatable, so
// every handler is idempotent.

// HandleRemoteCreateWorld realizes a world created on another server. A
// duplicate message is a logged no-op.
func (m *Manager) HandleRemoteCreateWorld(internalName string, displayName string, ownerID world.PlayerID, icon string, settings world.Settings) {
	if m.registry[internalName] != nil {
		wmlog.Infof("manager: world %s already exists, ignoring duplicate create", internalName)
		return
	}
	if !world.IsSafeName(internalName) {
		wmlog.Warnf("manager: rejecting remote create with unsafe name %q", internalName)
		return
	}

	record := &world.Record{
		ID:             -1, // the sender persisted the row; adopt its id below
		DisplayName:    displayName,
		InternalName:   internalName,
		OwnerID:        ownerID,
		Icon:           icon,
		Settings:       settings,
		TrustedPlayers: ds.StringSet{},
	}
	if !world.IsValidIcon(record.Icon) {
		record.Icon = world.DefaultIcon
	}
	m.registry[internalName] = record

	if res := m.adapter.Create(internalName, m.createParams()); res == nil {
		wmlog.Errorf("manager: cannot realize remotely created world %s", internalName)
		return
	}
	m.ApplySettings(record)
	m.registerWithHook(internalName)
	m.RefreshFromStore(nil)
}

// HandleRemoteDeleteWorld performs a delete requested by another server.
// Deleting an unknown world is a logged no-op.
func (m *Manager) HandleRemoteDeleteWorld(internalName string) {
	record := m.registry[internalName]
	if record == nil {
		wmlog.Infof("manager: world %s not registered, ignoring remote delete", internalName)
		return
	}
	m.DeleteWorld(record, nil, func(ok bool) {
		if !ok {
			wmlog.Errorf("manager: remote-requested delete of %s failed", internalName)
		}
	})
}

// HandleRemoteTeleport handles a teleport command for a player expected on
// this server
func (m *Manager) HandleRemoteTeleport(playerID world.PlayerID, internalName string) {
	if m.relocator != nil {
		m.relocator.HandleArrivingTeleport(playerID, internalName)
		return
	}

	record := m.registry[internalName]
	player := m.players.GetPlayer(playerID)
	if record == nil || player == nil {
		wmlog.Warnf("manager: cannot teleport %s to %s: not here", playerID, internalName)
		return
	}
	m.Teleport(player, record)
}

// HandleRemoteUpdateSettings applies settings pushed from another server.
// The sender already persisted them.
func (m *Manager) HandleRemoteUpdateSettings(internalName string, settings world.Settings) {
	record := m.registry[internalName]
	if record == nil {
		wmlog.Warnf("manager: world %s not registered, ignoring settings update", internalName)
		return
	}
	if !settings.Validate() {
		wmlog.Warnf("manager: ignoring invalid settings update for %s", internalName)
		return
	}
	record.Settings = settings
	m.ApplySettings(record)
}

// Read accessors

// GetByName returns the record with the internal name, or nil
func (m *Manager) GetByName(internalName string) *world.Record {
	return m.registry[internalName]
}

// GetByDisplayName returns the first record whose display name matches
// case-insensitively, or nil
func (m *Manager) GetByDisplayName(displayName string) *world.Record {
	for _, record := range m.registry {
		if strings.EqualFold(record.DisplayName, displayName) {
			return record
		}
	}
	return nil
}

// GetAllWorlds returns every registered record, sorted by display name
func (m *Manager) GetAllWorlds() []*world.Record {
	records := make([]*world.Record, 0, len(m.registry))
	for _, record := range m.registry {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].DisplayName < records[j].DisplayName
	})
	return records
}

// GetWorldsByOwner returns the records owned by the player
func (m *Manager) GetWorldsByOwner(ownerID world.PlayerID) []*world.Record {
	var records []*world.Record
	for _, record := range m.GetAllWorlds() {
		if record.OwnerID == ownerID {
			records = append(records, record)
		}
	}
	return records
}

// GetAccessibleWorlds returns the records the player owns or is trusted on
func (m *Manager) GetAccessibleWorlds(playerID world.PlayerID) []*world.Record {
	var records []*world.Record
	for _, record := range m.GetAllWorlds() {
		if record.CanAccess(playerID) {
			records = append(records, record)
		}
	}
	return records
}

// NumWorlds returns the number of registered worlds
func (m *Manager) NumWorlds() int {
	return len(m.registry)
}

func (m *Manager) invoke(callback func(*world.Record), record *world.Record) {
	if callback != nil {
		callback(record)
	}
}

func (m *Manager) invokeBool(callback func(bool), ok bool) {
	if callback != nil {
		callback(ok)
	}
}
