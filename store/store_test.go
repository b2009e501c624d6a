package store

import (
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/mirrorworlds/worldmesh/engine/post"
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

// stubStorage records operations in order and fails on demand
type stubStorage struct {
	ops       []string
	records   map[string]*world.Record
	nextID    int64
	deleteErr error
}

func newStubStorage() *stubStorage {
	return &stubStorage{records: map[string]*world.Record{}, nextID: 1}
}

func (ss *stubStorage) LoadAll() ([]*world.Record, error) {
	ss.ops = append(ss.ops, "loadall")
	records := make([]*world.Record, 0, len(ss.records))
	for _, r := range ss.records {
		records = append(records, r)
	}
	return records, nil
}

func (ss *stubStorage) Save(record *world.Record) error {
	ss.ops = append(ss.ops, "save "+record.InternalName)
	if !record.IsPersisted() {
		record.ID = ss.nextID
		ss.nextID++
	}
	clone := *record
	ss.records[record.InternalName] = &clone
	return nil
}

func (ss *stubStorage) Delete(record *world.Record) error {
	ss.ops = append(ss.ops, "delete "+record.InternalName)
	if ss.deleteErr != nil {
		return ss.deleteErr
	}
	delete(ss.records, record.InternalName)
	return nil
}

func (ss *stubStorage) IsEOF(err error) bool { return false }
func (ss *stubStorage) Close()               {}

func waitCallback(t *testing.T, done chan error) error {
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("callback never arrived")
		return nil
	}
}

func TestStoreSaveAssignsID(t *testing.T) {
	engine := newStubStorage()
	s := NewStoreWithEngine(engine)
	defer s.Shutdown()

	r := world.NewRecord("Home", "owner-1", world.DefaultIcon, world.Settings{TimeCycle: true})
	done := make(chan error, 1)
	s.Save(r, func(err error) { done <- err })

	if err := waitCallback(t, done); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !r.IsPersisted() {
		t.Fatalf("save should assign an id")
	}
}

func TestStoreOperationsRunInOrder(t *testing.T) {
	engine := newStubStorage()
	s := NewStoreWithEngine(engine)
	defer s.Shutdown()

	a := world.NewRecord("A", "owner-1", world.DefaultIcon, world.Settings{TimeCycle: true})
	b := world.NewRecord("B", "owner-1", world.DefaultIcon, world.Settings{TimeCycle: true})

	s.Save(a, nil)
	s.Save(b, nil)
	s.Delete(a, nil)
	done := make(chan error, 1)
	s.LoadAll(func(records []*world.Record, err error) {
		if len(records) != 1 || records[0].InternalName != b.InternalName {
			t.Errorf("expected only %s to survive, got %d records", b.InternalName, len(records))
		}
		done <- err
	})

	if err := waitCallback(t, done); err != nil {
		t.Fatalf("loadall: %v", err)
	}

	want := []string{"save " + a.InternalName, "save " + b.InternalName, "delete " + a.InternalName, "loadall"}
	if len(engine.ops) != len(want) {
		t.Fatalf("ops = %v", engine.ops)
	}
	for i, op := range want {
		if engine.ops[i] != op {
			t.Fatalf("op %d = %q, want %q", i, engine.ops[i], op)
		}
	}
}

func TestStoreDeleteErrorReachesCallback(t *testing.T) {
	engine := newStubStorage()
	engine.deleteErr = errors.New("disk on fire")
	s := NewStoreWithEngine(engine)
	defer s.Shutdown()

	r := world.NewRecord("Doomed", "owner-1", world.DefaultIcon, world.Settings{TimeCycle: true})
	saved := make(chan error, 1)
	s.Save(r, func(err error) { saved <- err })
	if err := waitCallback(t, saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	deleted := make(chan error, 1)
	s.Delete(r, func(err error) { deleted <- err })
	if err := waitCallback(t, deleted); err == nil {
		t.Fatalf("delete error should reach the callback")
	}

	// the backing row must survive the failed delete
	if engine.records[r.InternalName] == nil {
		t.Fatalf("record should still be stored after a failed delete")
	}
}
