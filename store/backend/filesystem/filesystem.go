package filesystem

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack"

	"github.com/mirrorworlds/worldmesh/engine/ds"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
	"github.com/mirrorworlds/worldmesh/store/common"
	"github.com/mirrorworlds/worldmesh/world"
)

const _WORLD_DOC_SUFFIX = ".world"

// FileSystemWorldStorage persists one msgpack document per world under a
// directory. It serves single-server installs that run without a database.
type FileSystemWorldStorage struct {
	directory string
	nextID    int64
}

type spawnDoc struct {
	X     float64
	Y     float64
	Z     float64
	Yaw   float32
	Pitch float32
}

type worldDoc struct {
	ID           int64
	Name         string
	OwnerID      string
	InternalName string
	Icon         string
	StoragePath  string
	CreatedAt    int64
	Settings     world.Settings
	Trusted      []string
	Spawn        *spawnDoc
}

// OpenDirectory opens a directory as world storage
func OpenDirectory(directory string) (storecommon.WorldStorage, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, err
	}

	es := &FileSystemWorldStorage{directory: directory, nextID: 1}

	// next id continues after the largest persisted one
	docs, err := es.readAllDocs()
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc.ID >= es.nextID {
			es.nextID = doc.ID + 1
		}
	}
	return es, nil
}

func (es *FileSystemWorldStorage) getFilePath(internalName string) string {
	return filepath.Join(es.directory, internalName+_WORLD_DOC_SUFFIX)
}

func (es *FileSystemWorldStorage) readAllDocs() ([]*worldDoc, error) {
	pat := filepath.Join(es.directory, "*"+_WORLD_DOC_SUFFIX)
	files, err := filepath.Glob(pat)
	if err != nil {
		return nil, err
	}

	docs := make([]*worldDoc, 0, len(files))
	for _, fpath := range files {
		dataBytes, err := ioutil.ReadFile(fpath)
		if err != nil {
			wmlog.Warnf("filesystem storage: cannot read %s: %v", fpath, err)
			continue
		}

		var doc worldDoc
		if err := msgpack.Unmarshal(dataBytes, &doc); err != nil {
			wmlog.Warnf("filesystem storage: cannot parse %s: %v", fpath, err)
			continue
		}

		_, fn := filepath.Split(fpath)
		if doc.InternalName != strings.TrimSuffix(fn, _WORLD_DOC_SUFFIX) {
			wmlog.Warnf("filesystem storage: %s holds mismatching world %s, skipped", fpath, doc.InternalName)
			continue
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

func (es *FileSystemWorldStorage) LoadAll() ([]*world.Record, error) {
	docs, err := es.readAllDocs()
	if err != nil {
		return nil, err
	}

	records := make([]*world.Record, 0, len(docs))
	for _, doc := range docs {
		r := &world.Record{
			ID:             doc.ID,
			DisplayName:    doc.Name,
			InternalName:   doc.InternalName,
			OwnerID:        world.PlayerID(doc.OwnerID),
			Icon:           doc.Icon,
			StoragePath:    doc.StoragePath,
			Settings:       doc.Settings,
			TrustedPlayers: ds.StringSet{},
			CreatedAt:      time.Unix(doc.CreatedAt, 0),
		}
		for _, playerID := range doc.Trusted {
			r.TrustedPlayers.Add(playerID)
		}
		if !world.IsValidIcon(r.Icon) {
			wmlog.Warnf("filesystem storage: world %s has unknown icon %q, using %s", r.InternalName, r.Icon, world.DefaultIcon)
			r.Icon = world.DefaultIcon
		}
		if _, ok := world.ParseGameMode(string(doc.Settings.GameMode)); !ok {
			wmlog.Warnf("filesystem storage: world %s has unknown game mode %q, using %s", r.InternalName, doc.Settings.GameMode, world.DefaultGameMode)
			r.Settings.GameMode = world.DefaultGameMode
		}
		if doc.Spawn != nil {
			r.SpawnPoint = &world.SpawnPoint{
				World: doc.InternalName,
				X:     doc.Spawn.X,
				Y:     doc.Spawn.Y,
				Z:     doc.Spawn.Z,
				Yaw:   doc.Spawn.Yaw,
				Pitch: doc.Spawn.Pitch,
			}
		}
		records = append(records, r)
	}
	return records, nil
}

func (es *FileSystemWorldStorage) Save(record *world.Record) error {
	if !record.IsPersisted() {
		record.ID = es.nextID
		es.nextID++
	}

	doc := &worldDoc{
		ID:           record.ID,
		Name:         record.DisplayName,
		OwnerID:      string(record.OwnerID),
		InternalName: record.InternalName,
		Icon:         record.Icon,
		StoragePath:  record.StoragePath,
		CreatedAt:    record.CreatedAt.Unix(),
		Settings:     record.Settings,
		Trusted:      record.TrustedPlayers.ToList(),
	}
	if record.SpawnPoint != nil {
		doc.Spawn = &spawnDoc{
			X:     record.SpawnPoint.X,
			Y:     record.SpawnPoint.Y,
			Z:     record.SpawnPoint.Z,
			Yaw:   record.SpawnPoint.Yaw,
			Pitch: record.SpawnPoint.Pitch,
		}
	}

	dataBytes, err := msgpack.Marshal(doc)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(es.getFilePath(record.InternalName), dataBytes, 0644)
}

func (es *FileSystemWorldStorage) Delete(record *world.Record) error {
	if !record.IsPersisted() {
		return nil
	}

	err := os.Remove(es.getFilePath(record.InternalName))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (es *FileSystemWorldStorage) IsEOF(err error) bool {
	return false
}

func (es *FileSystemWorldStorage) Close() {
	// nothing to do
}
