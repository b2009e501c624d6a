package manager

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"

	"github.com/mirrorworlds/worldmesh/engine/config"
	"github.com/mirrorworlds/worldmesh/engine/post"
	"github.com/mirrorworlds/worldmesh/resource"
	"github.com/mirrorworlds/worldmesh/resource/localengine"
	"github.com/mirrorworlds/worldmesh/store"
	"github.com/mirrorworlds/worldmesh/world"
)

func init() {
	go func() {
		for {
			post.Tick()
			time.Sleep(time.Millisecond)
		}
	}()
}

// memStorage is an in-memory world storage with switchable failures
type memStorage struct {
	records   map[string]*world.Record
	nextID    int64
	saveErr   error
	deleteErr error
}

func newMemStorage() *memStorage {
	return &memStorage{records: map[string]*world.Record{}, nextID: 1}
}

func (ms *memStorage) LoadAll() ([]*world.Record, error) {
	records := make([]*world.Record, 0, len(ms.records))
	for _, r := range ms.records {
		clone := *r
		records = append(records, &clone)
	}
	return records, nil
}

func (ms *memStorage) Save(record *world.Record) error {
	if ms.saveErr != nil {
		return ms.saveErr
	}
	if !record.IsPersisted() {
		record.ID = ms.nextID
		ms.nextID++
	}
	clone := *record
	ms.records[record.InternalName] = &clone
	return nil
}

func (ms *memStorage) Delete(record *world.Record) error {
	if ms.deleteErr != nil {
		return ms.deleteErr
	}
	delete(ms.records, record.InternalName)
	return nil
}

func (ms *memStorage) IsEOF(err error) bool { return false }
func (ms *memStorage) Close()               {}

type testRig struct {
	cfg     *config.ServerConfig
	engine  *localengine.LocalEngine
	storage *memStorage
	store   *store.Store
	manager *Manager
}

func newTestRig(t *testing.T) *testRig {
	cfg := &config.ServerConfig{
		ServerName:      "worlds",
		CrossServer:     false,
		StorageRoot:     t.TempDir(),
		WorldsDirectory: t.TempDir(),
		FallbackWorld:   "world",
	}

	engine, err := localengine.New(cfg)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	storage := newMemStorage()
	st := store.NewStoreWithEngine(storage)
	t.Cleanup(st.Shutdown)

	template := world.Settings{GameMode: world.GameModeSurvival, TimeCycle: true, TickSpeed: 3, MobSpawning: true}
	mgr := NewManager(cfg, st, resource.NewAdapter(engine, cfg), engine, template)
	return &testRig{cfg: cfg, engine: engine, storage: storage, store: st, manager: mgr}
}

func (rig *testRig) createWorld(t *testing.T, displayName string, owner world.PlayerID) *world.Record {
	t.Helper()
	done := make(chan *world.Record, 1)
	rig.manager.CreateWorld(displayName, owner, world.DefaultIcon, nil, func(r *world.Record) {
		done <- r
	})
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("create of %s never completed", displayName)
		return nil
	}
}

func TestCreateWorldLocally(t *testing.T) {
	rig := newTestRig(t)

	record := rig.createWorld(t, "Home", "owner-1")
	if record == nil {
		t.Fatalf("create failed")
	}

	if record.InternalName[:3] != world.InternalNamePrefix {
		t.Errorf("internal name %s misses the prefix", record.InternalName)
	}
	if !record.IsPersisted() {
		t.Errorf("created record should be persisted")
	}
	assert.Equal(t, int32(3), record.Settings.TickSpeed)
	assert.Equal(t, world.GameModeSurvival, record.Settings.GameMode)

	// retrievable through the registry
	if rig.manager.GetByName(record.InternalName) != record {
		t.Errorf("GetByName should find the new record")
	}
	if rig.manager.GetByDisplayName("hOmE") != record {
		t.Errorf("display name lookup should be case-insensitive")
	}

	// the resource is live with settings applied
	res := rig.manager.GetLoaded(record)
	if res == nil {
		t.Fatalf("new world should be loaded")
	}
	assert.Equal(t, int32(3), res.(interface{ Rule(string) interface{} }).Rule("tickSpeed"))
}

func TestCreateWorldOwnerLimit(t *testing.T) {
	rig := newTestRig(t)
	rig.cfg.MaxWorldsPerOwner = 2

	if rig.createWorld(t, "One", "owner-1") == nil {
		t.Fatalf("first create failed")
	}
	if rig.createWorld(t, "Two", "owner-1") == nil {
		t.Fatalf("second create failed")
	}
	if rig.createWorld(t, "Three", "owner-1") != nil {
		t.Fatalf("third create should hit the owner limit")
	}
	if rig.createWorld(t, "Other", "owner-2") == nil {
		t.Fatalf("another owner should not be limited")
	}
}

func TestCreateWorldRollsBackOnSaveFailure(t *testing.T) {
	rig := newTestRig(t)
	rig.storage.saveErr = errors.New("database on fire")

	if rig.createWorld(t, "Home", "owner-1") != nil {
		t.Fatalf("create should fail when persisting fails")
	}
	assert.Equal(t, 0, rig.manager.NumWorlds())
}

func TestLoadWorldIdempotent(t *testing.T) {
	rig := newTestRig(t)
	record := rig.createWorld(t, "Home", "owner-1")

	load := func() resource.Resource {
		done := make(chan resource.Resource, 1)
		rig.manager.LoadWorld(record, func(res resource.Resource) { done <- res })
		select {
		case res := <-done:
			return res
		case <-time.After(5 * time.Second):
			t.Fatalf("load never completed")
			return nil
		}
	}

	first := load()
	second := load()
	if first == nil || first != second {
		t.Fatalf("loading twice should yield the same live resource")
	}
}

func TestDeleteWorld(t *testing.T) {
	rig := newTestRig(t)
	record := rig.createWorld(t, "Doomed", "owner-1")

	done := make(chan bool, 1)
	rig.manager.DeleteWorld(record, nil, func(ok bool) { done <- ok })
	if ok := <-done; !ok {
		t.Fatalf("delete failed")
	}

	if rig.manager.GetByName(record.InternalName) != nil {
		t.Errorf("deleted world should leave the registry")
	}
	if rig.engine.GetWorld(record.InternalName) != nil {
		t.Errorf("deleted world should be unloaded")
	}
	if rig.storage.records[record.InternalName] != nil {
		t.Errorf("deleted world should leave the storage")
	}
}

func TestDeleteWorldFailureKeepsRecord(t *testing.T) {
	rig := newTestRig(t)
	record := rig.createWorld(t, "Sticky", "owner-1")
	rig.storage.deleteErr = errors.New("database on fire")

	done := make(chan bool, 1)
	rig.manager.DeleteWorld(record, nil, func(ok bool) { done <- ok })
	if ok := <-done; ok {
		t.Fatalf("delete should report failure")
	}

	if rig.manager.GetByName(record.InternalName) != record {
		t.Errorf("failed delete must keep the record registered")
	}
	if rig.storage.records[record.InternalName] == nil {
		t.Errorf("failed delete must keep the stored row")
	}
}

func TestTeleportLocally(t *testing.T) {
	rig := newTestRig(t)
	record := rig.createWorld(t, "Home", "owner-1")
	record.SetSpawnPoint(world.SpawnPoint{World: record.InternalName, X: 5, Y: 70, Z: -5})

	player := rig.engine.AddPlayer("player-1", "Alice")
	if !rig.manager.Teleport(player, record) {
		t.Fatalf("teleport should be initiated")
	}

	// local teleports complete synchronously once the world is live
	assert.Equal(t, record.InternalName, player.WorldName())
	x, y, z, _, _ := player.Position()
	assert.Equal(t, 5.0, x)
	assert.Equal(t, 70.0, y)
	assert.Equal(t, -5.0, z)
}

func TestHandleRemoteCreateDuplicateIsNoop(t *testing.T) {
	rig := newTestRig(t)

	settings := rig.manager.Template()
	rig.manager.HandleRemoteCreateWorld("wm_cafebabe", "Remote", "owner-9", "DIAMOND", settings)
	first := rig.manager.GetByName("wm_cafebabe")
	if first == nil {
		t.Fatalf("remote create should register the world")
	}

	rig.manager.HandleRemoteCreateWorld("wm_cafebabe", "Remote Again", "owner-8", "DIRT", settings)
	if rig.manager.GetByName("wm_cafebabe") != first {
		t.Fatalf("duplicate remote create must be a no-op")
	}
	assert.Equal(t, "Remote", first.DisplayName)
}

func TestHandleRemoteCreateRejectsUnsafeName(t *testing.T) {
	rig := newTestRig(t)
	rig.manager.HandleRemoteCreateWorld("../evil", "Evil", "owner-9", "DIRT", rig.manager.Template())
	if rig.manager.NumWorlds() != 0 {
		t.Fatalf("unsafe remote create must be rejected")
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	rig := newTestRig(t)
	record := rig.createWorld(t, "Home", "owner-1")

	bad := record.Settings
	bad.TimeCycle = false
	bad.FixedTime = 30000

	done := make(chan bool, 1)
	rig.manager.UpdateSettings(record, bad, func(ok bool) { done <- ok })
	if ok := <-done; ok {
		t.Fatalf("invalid settings should be rejected")
	}

	good := record.Settings
	good.TimeCycle = false
	good.FixedTime = 18000
	rig.manager.UpdateSettings(record, good, func(ok bool) { done <- ok })
	if ok := <-done; !ok {
		t.Fatalf("valid settings should be accepted")
	}
	assert.Equal(t, int64(18000), record.Settings.FixedTime)
}

func TestAccessibleWorlds(t *testing.T) {
	rig := newTestRig(t)
	home := rig.createWorld(t, "Home", "owner-1")
	rig.createWorld(t, "Base", "owner-2")
	shared := rig.createWorld(t, "Shared", "owner-2")

	trusted := make(chan bool, 1)
	rig.manager.TrustPlayer(shared, "owner-1", func(ok bool) { trusted <- ok })
	if ok := <-trusted; !ok {
		t.Fatalf("trust failed")
	}

	accessible := rig.manager.GetAccessibleWorlds("owner-1")
	if len(accessible) != 2 {
		t.Fatalf("owner-1 should access 2 worlds, got %d", len(accessible))
	}
	assert.Equal(t, home.DisplayName, accessible[0].DisplayName)
	assert.Equal(t, shared.DisplayName, accessible[1].DisplayName)

	owned := rig.manager.GetWorldsByOwner("owner-2")
	if len(owned) != 2 {
		t.Fatalf("owner-2 should own 2 worlds, got %d", len(owned))
	}
}
