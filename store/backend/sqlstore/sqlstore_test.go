package sqlstore

import (
	"testing"

	"github.com/bmizerany/assert"

	"github.com/mirrorworlds/worldmesh/world"
)

func openTestStorage(t *testing.T) *sqlWorldStorage {
	es, err := OpenSQL("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(es.Close)
	return es.(*sqlWorldStorage)
}

func testRecord() *world.Record {
	r := world.NewRecord("Home", "owner-1", "DIAMOND", world.Settings{
		GameMode:  world.GameModeCreative,
		Pvp:       true,
		TimeCycle: true,
		TickSpeed: 7,
	})
	r.StoragePath = "Alice"
	r.Trust("guest-1")
	r.Trust("guest-2")
	r.SetSpawnPoint(world.SpawnPoint{World: r.InternalName, X: 1.5, Y: 64, Z: -8.25, Yaw: 90, Pitch: -5})
	return r
}

func TestSaveLoadRoundTrip(t *testing.T) {
	es := openTestStorage(t)

	r := testRecord()
	if err := es.Save(r); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !r.IsPersisted() {
		t.Fatalf("save should assign an id")
	}

	records, err := es.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	loaded := records[0]
	assert.Equal(t, r.ID, loaded.ID)
	assert.Equal(t, "Home", loaded.DisplayName)
	assert.Equal(t, r.InternalName, loaded.InternalName)
	assert.Equal(t, world.PlayerID("owner-1"), loaded.OwnerID)
	assert.Equal(t, "DIAMOND", loaded.Icon)
	assert.Equal(t, "Alice", loaded.StoragePath)
	assert.Equal(t, r.Settings, loaded.Settings)
	assert.Equal(t, r.CreatedAt.Unix(), loaded.CreatedAt.Unix())
	if !loaded.IsTrusted("guest-1") || !loaded.IsTrusted("guest-2") {
		t.Errorf("trusted players lost: %v", loaded.TrustedPlayers)
	}
	if loaded.SpawnPoint == nil {
		t.Fatalf("spawn point lost")
	}
	assert.Equal(t, *r.SpawnPoint, *loaded.SpawnPoint)
}

func TestSaveUpdatesExisting(t *testing.T) {
	es := openTestStorage(t)

	r := testRecord()
	if err := es.Save(r); err != nil {
		t.Fatalf("save: %v", err)
	}
	id := r.ID

	r.DisplayName = "Base"
	r.Untrust("guest-2")
	r.SpawnPoint = nil
	r.Settings.Pvp = false
	if err := es.Save(r); err != nil {
		t.Fatalf("second save: %v", err)
	}
	assert.Equal(t, id, r.ID)

	records, err := es.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("update should not create a second row, got %d", len(records))
	}
	loaded := records[0]
	assert.Equal(t, "Base", loaded.DisplayName)
	assert.Equal(t, false, loaded.Settings.Pvp)
	if loaded.IsTrusted("guest-2") {
		t.Errorf("guest-2 should be gone")
	}
	if loaded.SpawnPoint != nil {
		t.Errorf("spawn point should be gone")
	}
}

func TestDeleteCascades(t *testing.T) {
	es := openTestStorage(t)

	r := testRecord()
	if err := es.Save(r); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := es.Delete(r); err != nil {
		t.Fatalf("delete: %v", err)
	}

	records, err := es.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records after delete, got %d", len(records))
	}

	// dependent rows must cascade with the world row
	for _, table := range []string{"world_settings", "trusted_players", "spawn_points"} {
		var n int
		if err := es.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s should be empty after cascade, got %d rows", table, n)
		}
	}
}

func TestDeleteUnpersistedIsNoop(t *testing.T) {
	es := openTestStorage(t)

	r := world.NewRecord("Never Saved", "owner-1", world.DefaultIcon, world.Settings{})
	if err := es.Delete(r); err != nil {
		t.Fatalf("deleting an unpersisted record should be a no-op, got %v", err)
	}
}

func TestFailedSaveKeepsRecordUnpersisted(t *testing.T) {
	es := openTestStorage(t)

	// break the last statement of the save transaction
	if _, err := es.db.Exec(`DROP TABLE spawn_points`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	r := testRecord()
	if err := es.Save(r); err == nil {
		t.Fatalf("save should fail")
	}
	if r.IsPersisted() {
		t.Fatalf("rolled back save must not assign an id, got %d", r.ID)
	}

	var n int
	if err := es.db.QueryRow(`SELECT COUNT(*) FROM worlds`).Scan(&n); err != nil {
		t.Fatalf("count worlds: %v", err)
	}
	if n != 0 {
		t.Fatalf("rolled back save left %d world rows", n)
	}
}

func TestLoadDegradesBadIconAndGameMode(t *testing.T) {
	es := openTestStorage(t)

	r := testRecord()
	if err := es.Save(r); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := es.db.Exec(`UPDATE worlds SET icon = 'no such icon' WHERE id = ?`, r.ID); err != nil {
		t.Fatalf("corrupt icon: %v", err)
	}
	if _, err := es.db.Exec(`UPDATE world_settings SET game_mode = 'hardcore' WHERE world_id = ?`, r.ID); err != nil {
		t.Fatalf("corrupt game mode: %v", err)
	}

	records, err := es.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("bad values must degrade to defaults, not drop the record")
	}
	assert.Equal(t, world.DefaultIcon, records[0].Icon)
	assert.Equal(t, world.DefaultGameMode, records[0].Settings.GameMode)
}
