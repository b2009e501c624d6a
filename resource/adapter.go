package resource

import (
	"os"
	"path/filepath"

	"github.com/mirrorworlds/worldmesh/engine/async"
	"github.com/mirrorworlds/worldmesh/engine/config"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
	"github.com/mirrorworlds/worldmesh/world"
)

const _FS_ASYNC_JOB_GROUP = "resource_fs"

// Adapter wraps the engine's create/load/unload/delete primitives with input
// validation and safe-path containment. Engine primitives run on the main
// routine; filesystem work runs on a background worker with results marshaled
// back, so Load and Delete report through callbacks.
type Adapter struct {
	engine      Engine
	storageRoot string // plugin-managed world storage tree
}

// NewAdapter creates the adapter over the engine
func NewAdapter(engine Engine, cfg *config.ServerConfig) *Adapter {
	return &Adapter{
		engine:      engine,
		storageRoot: cfg.StorageRoot,
	}
}

// Engine returns the wrapped engine
func (a *Adapter) Engine() Engine {
	return a.engine
}

// Create creates a new world resource. Creating a name that is already live
// idempotently returns the existing resource. Returns nil when the name is
// unsafe or the engine fails.
func (a *Adapter) Create(internalName string, params CreateParams) Resource {
	if !world.IsSafeName(internalName) {
		wmlog.Warnf("resource: refusing to create world with unsafe name %q", internalName)
		return nil
	}

	if res := a.engine.GetWorld(internalName); res != nil {
		return res
	}

	res, err := a.engine.CreateWorld(internalName, params)
	if err != nil {
		wmlog.Errorf("resource: engine failed to create world %s: %v", internalName, err)
		return nil
	}
	return res
}

// Load makes the world resource live, materializing its backing data from
// the managed storage tree when the primary location has none, and falling
// back to the engine's own creator when a plain load fails. The callback
// receives nil on failure; it may be invoked synchronously when the world is
// already live or the name is rejected.
func (a *Adapter) Load(internalName string, storagePath string, params CreateParams, callback func(Resource)) {
	if !world.IsSafeName(internalName) {
		wmlog.Warnf("resource: refusing to load world with unsafe name %q", internalName)
		callback(nil)
		return
	}
	if storagePath != "" && !world.IsSafeName(storagePath) {
		wmlog.Warnf("resource: world %s has unsafe storage subpath %q, ignoring it", internalName, storagePath)
		storagePath = ""
	}

	if res := a.engine.GetWorld(internalName); res != nil {
		callback(res) // already live
		return
	}

	primaryDir := filepath.Join(a.engine.WorldsDirectory(), internalName)
	archiveDir := a.archiveDir(internalName, storagePath)

	async.AppendAsyncJob(_FS_ASYNC_JOB_GROUP, func() (res interface{}, err error) {
		// materialize into the primary location if only the archive has it
		if dirExists(primaryDir) {
			return nil, nil
		}
		if !dirExists(archiveDir) {
			// also honor archives at the storage root without an owner subpath
			if flat := filepath.Join(a.storageRoot, internalName); dirExists(flat) {
				archiveDir = flat
			} else {
				return nil, nil // nothing to materialize, let the engine decide
			}
		}
		return nil, CopyTree(archiveDir, primaryDir)
	}, func(res interface{}, err error) {
		if err != nil {
			wmlog.Errorf("resource: cannot materialize world %s from %s: %v", internalName, archiveDir, err)
			callback(nil)
			return
		}
		callback(a.loadOrRecreate(internalName, params))
	})
}

// loadOrRecreate runs on the main routine after any materialization
func (a *Adapter) loadOrRecreate(internalName string, params CreateParams) Resource {
	res, err := a.engine.LoadWorld(internalName)
	if err == nil && res != nil {
		return res
	}
	if err != nil {
		wmlog.Warnf("resource: engine load of %s failed (%v), re-creating via engine creator", internalName, err)
	}

	res, err = a.engine.CreateWorld(internalName, params)
	if err != nil {
		wmlog.Errorf("resource: engine failed to re-create world %s: %v", internalName, err)
		return nil
	}
	return res
}

// Delete unloads the world and deletes its backing files recursively. Players
// still present are relocated to the fallback world first. The callback
// receives false when unloading or any file deletion fails.
func (a *Adapter) Delete(internalName string, storagePath string, callback func(bool)) {
	if !world.IsSafeName(internalName) {
		wmlog.Warnf("resource: refusing to delete world with unsafe name %q", internalName)
		callback(false)
		return
	}
	if storagePath != "" && !world.IsSafeName(storagePath) {
		storagePath = ""
	}

	if res := a.engine.GetWorld(internalName); res != nil {
		if !a.evacuate(res) {
			wmlog.Errorf("resource: cannot relocate players out of %s, delete aborted", internalName)
			callback(false)
			return
		}
		if err := a.engine.UnloadWorld(internalName); err != nil {
			wmlog.Errorf("resource: cannot unload world %s: %v", internalName, err)
			callback(false)
			return
		}
	}

	primaryDir := filepath.Join(a.engine.WorldsDirectory(), internalName)
	archiveDir := a.archiveDir(internalName, storagePath)

	async.AppendAsyncJob(_FS_ASYNC_JOB_GROUP, func() (res interface{}, err error) {
		if dirExists(primaryDir) {
			if err := RemoveTree(primaryDir); err != nil {
				return nil, err
			}
		}
		if dirExists(archiveDir) {
			if err := RemoveTree(archiveDir); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}, func(res interface{}, err error) {
		if err != nil {
			wmlog.Errorf("resource: deleting files of world %s failed: %v", internalName, err)
			callback(false)
			return
		}
		callback(true)
	})
}

// evacuate relocates every player in the resource to the fallback world
func (a *Adapter) evacuate(res Resource) bool {
	fallback := a.engine.FallbackWorld()
	if fallback == nil || fallback.Name() == res.Name() {
		return len(res.Players()) == 0
	}

	ok := true
	for _, player := range res.Players() {
		if !fallback.Teleport(player, 0, 64, 0, 0, 0) {
			wmlog.Warnf("resource: cannot relocate %s out of %s", player.Name(), res.Name())
			ok = false
		}
	}
	return ok
}

func (a *Adapter) archiveDir(internalName string, storagePath string) string {
	if storagePath != "" {
		return filepath.Join(a.storageRoot, storagePath, internalName)
	}
	return filepath.Join(a.storageRoot, internalName)
}

// Archive copies the world's backing data from the primary location into the
// managed storage tree, for unloaded safekeeping. Reported through the
// callback; a partial copy reports failure.
func (a *Adapter) Archive(internalName string, storagePath string, callback func(bool)) {
	if !world.IsSafeName(internalName) || (storagePath != "" && !world.IsSafeName(storagePath)) {
		wmlog.Warnf("resource: refusing to archive world with unsafe name %q / subpath %q", internalName, storagePath)
		callback(false)
		return
	}

	primaryDir := filepath.Join(a.engine.WorldsDirectory(), internalName)
	archiveDir := a.archiveDir(internalName, storagePath)

	async.AppendAsyncJob(_FS_ASYNC_JOB_GROUP, func() (res interface{}, err error) {
		if !dirExists(primaryDir) {
			return nil, os.ErrNotExist
		}
		return nil, CopyTree(primaryDir, archiveDir)
	}, func(res interface{}, err error) {
		if err != nil {
			wmlog.Errorf("resource: archiving world %s failed: %v", internalName, err)
			callback(false)
			return
		}
		callback(true)
	})
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
