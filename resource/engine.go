package resource

import (
	"github.com/mirrorworlds/worldmesh/world"
)

// Player is one online player as seen by the host server
type Player interface {
	ID() world.PlayerID
	Name() string
	// SendMessage delivers user-facing text; callers are responsible for
	// localization
	SendMessage(msg string)
}

// CreateParams are the type parameters of a new world resource
type CreateParams struct {
	Environment string
	Seed        int64
}

// Resource is one live world instance inside the engine
type Resource interface {
	Name() string
	Players() []Player
	// ApplyRule sets one environment rule on the live world. Unsupported
	// rules return an error and must not affect other rules.
	ApplyRule(rule string, value interface{}) error
	// Teleport moves an online player to a position in this world
	Teleport(player Player, x, y, z float64, yaw, pitch float32) bool
}

// Engine wraps the underlying world engine's primitives. The engine is an
// opaque collaborator: worldmesh only drives its lifecycle, never its
// physics or rendering. All Engine methods are called from the main routine.
type Engine interface {
	// WorldsDirectory is the primary storage location the engine loads
	// world data from
	WorldsDirectory() string
	// GetWorld returns the live world with the name, or nil
	GetWorld(name string) Resource
	// CreateWorld creates and loads a new world
	CreateWorld(name string, params CreateParams) (Resource, error)
	// LoadWorld loads an existing world from the primary storage location
	LoadWorld(name string) (Resource, error)
	// UnloadWorld unloads the live world, failing when players cannot be
	// moved out
	UnloadWorld(name string) error
	// FallbackWorld is the always-loaded world players are relocated to
	// before unload or delete
	FallbackWorld() Resource
}
