// Package localengine provides an in-process world engine backed by plain
// directories under the worlds directory. It hosts no real simulation; it
// tracks loaded worlds, their environment rules and the players inside them,
// which is enough for a standalone worldmesh server and for exercising the
// lifecycle end to end.
package localengine

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/mirrorworlds/worldmesh/engine/config"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
	"github.com/mirrorworlds/worldmesh/resource"
	"github.com/mirrorworlds/worldmesh/world"
)

var knownRules = map[string]bool{
	"gameMode":        true,
	"pvp":             true,
	"mobSpawning":     true,
	"timeCycle":       true,
	"fixedTime":       true,
	"weather":         true,
	"physics":         true,
	"redstone":        true,
	"fluidFlow":       true,
	"tickSpeed":       true,
	"keepInventory":   true,
	"announceDeaths":  true,
	"fallDamage":      true,
	"hungerDepletion": true,
	"fireSpread":      true,
	"leafDecay":       true,
	"blockUpdates":    true,
}

// LocalEngine implements resource.Engine with directory-backed worlds
type LocalEngine struct {
	worldsDir    string
	fallbackName string
	worlds       map[string]*localWorld
	players      map[world.PlayerID]*LocalPlayer
}

// New creates a LocalEngine rooted at the configured worlds directory and
// makes sure the fallback world exists and is loaded
func New(cfg *config.ServerConfig) (*LocalEngine, error) {
	e := &LocalEngine{
		worldsDir:    cfg.WorldsDirectory,
		fallbackName: cfg.FallbackWorld,
		worlds:       map[string]*localWorld{},
		players:      map[world.PlayerID]*LocalPlayer{},
	}

	if err := os.MkdirAll(filepath.Join(e.worldsDir, e.fallbackName), 0755); err != nil {
		return nil, errors.Wrap(err, "creating fallback world")
	}
	e.worlds[e.fallbackName] = newLocalWorld(e, e.fallbackName)
	return e, nil
}

// WorldsDirectory returns the directory world resources live under
func (e *LocalEngine) WorldsDirectory() string {
	return e.worldsDir
}

// GetWorld returns the loaded world with the name, or nil
func (e *LocalEngine) GetWorld(name string) resource.Resource {
	w := e.worlds[name]
	if w == nil {
		return nil // untyped nil, not a nil *localWorld
	}
	return w
}

// CreateWorld creates a fresh world directory and loads it
func (e *LocalEngine) CreateWorld(name string, params resource.CreateParams) (resource.Resource, error) {
	if e.worlds[name] != nil {
		return nil, errors.Errorf("world %s is already loaded", name)
	}

	dir := filepath.Join(e.worldsDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating world directory")
	}
	if err := os.WriteFile(filepath.Join(dir, "world.dat"), []byte(params.Environment), 0644); err != nil {
		return nil, errors.Wrap(err, "writing world marker")
	}

	w := newLocalWorld(e, name)
	e.worlds[name] = w
	wmlog.Infof("localengine: created world %s", name)
	return w, nil
}

// LoadWorld loads an existing world directory
func (e *LocalEngine) LoadWorld(name string) (resource.Resource, error) {
	if w := e.worlds[name]; w != nil {
		return w, nil
	}

	dir := filepath.Join(e.worldsDir, name)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, errors.Errorf("world %s has no directory under %s", name, e.worldsDir)
	}

	w := newLocalWorld(e, name)
	e.worlds[name] = w
	wmlog.Infof("localengine: loaded world %s", name)
	return w, nil
}

// UnloadWorld unloads the world, moving its players to the fallback world
func (e *LocalEngine) UnloadWorld(name string) error {
	w := e.worlds[name]
	if w == nil {
		return nil
	}
	if name == e.fallbackName {
		return errors.Errorf("cannot unload the fallback world")
	}

	fallback := e.worlds[e.fallbackName]
	for _, p := range w.playerList() {
		fallback.Teleport(p, 0, 64, 0, 0, 0)
	}
	delete(e.worlds, name)
	wmlog.Infof("localengine: unloaded world %s", name)
	return nil
}

// FallbackWorld returns the always-loaded fallback world
func (e *LocalEngine) FallbackWorld() resource.Resource {
	return e.worlds[e.fallbackName]
}

// Player management; LocalEngine doubles as the player provider of a
// standalone server

// AddPlayer registers an online player, placing them in the fallback world
func (e *LocalEngine) AddPlayer(id world.PlayerID, name string) *LocalPlayer {
	p := &LocalPlayer{id: id, name: name}
	e.players[id] = p
	e.worlds[e.fallbackName].admit(p)
	return p
}

// RemovePlayer removes an online player
func (e *LocalEngine) RemovePlayer(id world.PlayerID) {
	p := e.players[id]
	if p == nil {
		return
	}
	if p.world != nil {
		p.world.evict(p)
	}
	delete(e.players, id)
}

// GetPlayer returns the online player with the id, or nil
func (e *LocalEngine) GetPlayer(id world.PlayerID) resource.Player {
	p := e.players[id]
	if p == nil {
		return nil
	}
	return p
}

// GetOnlinePlayers returns every online player
func (e *LocalEngine) GetOnlinePlayers() []resource.Player {
	players := make([]resource.Player, 0, len(e.players))
	for _, p := range e.players {
		players = append(players, p)
	}
	return players
}

// localWorld implements resource.Resource
type localWorld struct {
	engine  *LocalEngine
	name    string
	rules   map[string]interface{}
	players map[world.PlayerID]*LocalPlayer
}

func newLocalWorld(engine *LocalEngine, name string) *localWorld {
	return &localWorld{
		engine:  engine,
		name:    name,
		rules:   map[string]interface{}{},
		players: map[world.PlayerID]*LocalPlayer{},
	}
}

func (w *localWorld) Name() string {
	return w.name
}

func (w *localWorld) Players() []resource.Player {
	players := make([]resource.Player, 0, len(w.players))
	for _, p := range w.players {
		players = append(players, p)
	}
	return players
}

func (w *localWorld) playerList() []*LocalPlayer {
	players := make([]*LocalPlayer, 0, len(w.players))
	for _, p := range w.players {
		players = append(players, p)
	}
	return players
}

func (w *localWorld) ApplyRule(rule string, value interface{}) error {
	if !knownRules[rule] {
		return errors.Errorf("world %s does not support rule %s", w.name, rule)
	}
	w.rules[rule] = value
	return nil
}

// Rule returns the current value of the rule, or nil when never applied
func (w *localWorld) Rule(rule string) interface{} {
	return w.rules[rule]
}

func (w *localWorld) Teleport(player resource.Player, x, y, z float64, yaw, pitch float32) bool {
	p, ok := player.(*LocalPlayer)
	if !ok {
		return false
	}

	if p.world != nil && p.world != w {
		p.world.evict(p)
	}
	w.admit(p)
	p.x, p.y, p.z = x, y, z
	p.yaw, p.pitch = yaw, pitch
	return true
}

func (w *localWorld) admit(p *LocalPlayer) {
	w.players[p.id] = p
	p.world = w
}

func (w *localWorld) evict(p *LocalPlayer) {
	delete(w.players, p.id)
	p.world = nil
}

// LocalPlayer implements resource.Player
type LocalPlayer struct {
	id    world.PlayerID
	name  string
	world *localWorld

	x, y, z    float64
	yaw, pitch float32

	messagesLock sync.Mutex
	messages     []string
}

func (p *LocalPlayer) ID() world.PlayerID {
	return p.id
}

func (p *LocalPlayer) Name() string {
	return p.name
}

func (p *LocalPlayer) SendMessage(msg string) {
	p.messagesLock.Lock()
	p.messages = append(p.messages, msg)
	p.messagesLock.Unlock()
}

// Messages returns the messages sent to the player so far
func (p *LocalPlayer) Messages() []string {
	p.messagesLock.Lock()
	defer p.messagesLock.Unlock()
	return append([]string(nil), p.messages...)
}

// WorldName returns the name of the world the player is in, or ""
func (p *LocalPlayer) WorldName() string {
	if p.world == nil {
		return ""
	}
	return p.world.name
}

// Position returns the player's coordinates
func (p *LocalPlayer) Position() (x, y, z float64, yaw, pitch float32) {
	return p.x, p.y, p.z, p.yaw, p.pitch
}
