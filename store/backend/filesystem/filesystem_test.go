package filesystem

import (
	"testing"

	"github.com/bmizerany/assert"

	"github.com/mirrorworlds/worldmesh/world"
)

func TestFileSystemRoundTrip(t *testing.T) {
	dir := t.TempDir()
	es, err := OpenDirectory(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	r := world.NewRecord("Home", "owner-1", "DIAMOND", world.Settings{
		GameMode:  world.GameModeAdventure,
		TimeCycle: true,
		TickSpeed: 3,
	})
	r.Trust("guest-1")
	r.SetSpawnPoint(world.SpawnPoint{World: r.InternalName, X: 10, Y: 70, Z: 10})

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
	assert.Equal(t, r.InternalName, loaded.InternalName)
	assert.Equal(t, r.Settings, loaded.Settings)
	if !loaded.IsTrusted("guest-1") {
		t.Errorf("trusted players lost")
	}
	if loaded.SpawnPoint == nil || loaded.SpawnPoint.World != r.InternalName {
		t.Errorf("spawn point lost")
	}

	if err := es.Delete(r); err != nil {
		t.Fatalf("delete: %v", err)
	}
	records, err = es.LoadAll()
	if err != nil {
		t.Fatalf("load after delete: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records after delete")
	}
}

func TestIDsContinueAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	es, err := OpenDirectory(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	first := world.NewRecord("First", "owner-1", world.DefaultIcon, world.Settings{TimeCycle: true})
	if err := es.Save(first); err != nil {
		t.Fatalf("save: %v", err)
	}

	es2, err := OpenDirectory(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	second := world.NewRecord("Second", "owner-1", world.DefaultIcon, world.Settings{TimeCycle: true})
	if err := es2.Save(second); err != nil {
		t.Fatalf("save after reopen: %v", err)
	}

	if second.ID <= first.ID {
		t.Fatalf("ids must keep growing across reopen: %d then %d", first.ID, second.ID)
	}
}
