package sqlstore

import (
	"database/sql"
	"database/sql/driver"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/mirrorworlds/worldmesh/engine/ds"
	"github.com/mirrorworlds/worldmesh/engine/netutil"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
	"github.com/mirrorworlds/worldmesh/store/common"
	"github.com/mirrorworlds/worldmesh/world"
)

type sqlWorldStorage struct {
	driverName     string
	dataSourceName string
	db             *sql.DB
}

// OpenSQL opens a relational database as world storage. Supported drivers
// are "mysql" (go-sql-driver) and "sqlite" (modernc).
func OpenSQL(driverName string, dataSourceName string) (storecommon.WorldStorage, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}

	if driverName == "sqlite" {
		// modernc sqlite serializes on a single connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	es := &sqlWorldStorage{
		driverName:     driverName,
		dataSourceName: dataSourceName,
		db:             db,
	}
	if err = es.createTablesIfNotExists(); err != nil {
		db.Close()
		return nil, err
	}
	return es, nil
}

func (es *sqlWorldStorage) createTablesIfNotExists() error {
	idColumn := "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	if es.driverName == "sqlite" {
		idColumn = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS worlds(
			id ` + idColumn + `,
			name VARCHAR(64) NOT NULL,
			owner_id VARCHAR(64) NOT NULL,
			internal_name VARCHAR(64) NOT NULL UNIQUE,
			icon VARCHAR(64) NOT NULL,
			storage_path VARCHAR(255) NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS world_settings(
			world_id BIGINT NOT NULL PRIMARY KEY,
			game_mode VARCHAR(16) NOT NULL,
			pvp_enabled BOOLEAN NOT NULL,
			mob_spawning BOOLEAN NOT NULL,
			redstone_enabled BOOLEAN NOT NULL,
			physics_enabled BOOLEAN NOT NULL,
			weather_enabled BOOLEAN NOT NULL,
			fluid_flow BOOLEAN NOT NULL,
			time_cycle BOOLEAN NOT NULL,
			fixed_time BIGINT NOT NULL,
			tick_speed INT NOT NULL,
			keep_inventory BOOLEAN NOT NULL,
			announce_deaths BOOLEAN NOT NULL,
			fall_damage BOOLEAN NOT NULL,
			hunger_depletion BOOLEAN NOT NULL,
			fire_spread BOOLEAN NOT NULL,
			leaf_decay BOOLEAN NOT NULL,
			block_updates BOOLEAN NOT NULL,
			FOREIGN KEY(world_id) REFERENCES worlds(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS trusted_players(
			world_id BIGINT NOT NULL,
			player_id VARCHAR(64) NOT NULL,
			PRIMARY KEY(world_id, player_id),
			FOREIGN KEY(world_id) REFERENCES worlds(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS spawn_points(
			world_id BIGINT NOT NULL PRIMARY KEY,
			x DOUBLE NOT NULL,
			y DOUBLE NOT NULL,
			z DOUBLE NOT NULL,
			yaw FLOAT NOT NULL,
			pitch FLOAT NOT NULL,
			FOREIGN KEY(world_id) REFERENCES worlds(id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range stmts {
		if _, err := es.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "create table failed")
		}
	}
	return nil
}

func (es *sqlWorldStorage) LoadAll() ([]*world.Record, error) {
	rows, err := es.db.Query(
		`SELECT w.id, w.name, w.owner_id, w.internal_name, w.icon, w.storage_path, w.created_at,
			s.game_mode, s.pvp_enabled, s.mob_spawning, s.redstone_enabled, s.physics_enabled,
			s.weather_enabled, s.fluid_flow, s.time_cycle, s.fixed_time, s.tick_speed,
			s.keep_inventory, s.announce_deaths, s.fall_damage, s.hunger_depletion,
			s.fire_spread, s.leaf_decay, s.block_updates,
			p.x, p.y, p.z, p.yaw, p.pitch
		FROM worlds w
		LEFT JOIN world_settings s ON s.world_id = w.id
		LEFT JOIN spawn_points p ON p.world_id = w.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := map[int64]*world.Record{}
	var records []*world.Record
	for rows.Next() {
		var r world.Record
		var createdAt int64
		var gameMode sql.NullString
		var pvp, mobs, redstone, physics, weather, fluid, timeCycle sql.NullBool
		var fixedTime, tickSpeed sql.NullInt64
		var keepInv, announce, fallDmg, hunger, fire, leaf, blockUpd sql.NullBool
		var x, y, z sql.NullFloat64
		var yaw, pitch sql.NullFloat64

		err := rows.Scan(&r.ID, &r.DisplayName, &r.OwnerID, &r.InternalName, &r.Icon, &r.StoragePath, &createdAt,
			&gameMode, &pvp, &mobs, &redstone, &physics, &weather, &fluid, &timeCycle, &fixedTime, &tickSpeed,
			&keepInv, &announce, &fallDmg, &hunger, &fire, &leaf, &blockUpd,
			&x, &y, &z, &yaw, &pitch)
		if err != nil {
			// one bad row never fails the whole load
			wmlog.Warnf("sqlstore: skipping unreadable world row: %v", err)
			continue
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		r.TrustedPlayers = ds.StringSet{}

		if !world.IsValidIcon(r.Icon) {
			wmlog.Warnf("sqlstore: world %s has unknown icon %q, using %s", r.InternalName, r.Icon, world.DefaultIcon)
			r.Icon = world.DefaultIcon
		}

		mode, ok := world.ParseGameMode(gameMode.String)
		if !ok {
			wmlog.Warnf("sqlstore: world %s has unknown game mode %q, using %s", r.InternalName, gameMode.String, world.DefaultGameMode)
		}
		r.Settings = world.Settings{
			GameMode:        mode,
			Pvp:             pvp.Bool,
			MobSpawning:     mobs.Bool,
			Redstone:        redstone.Bool,
			Physics:         physics.Bool,
			Weather:         weather.Bool,
			FluidFlow:       fluid.Bool,
			TimeCycle:       timeCycle.Bool,
			FixedTime:       fixedTime.Int64,
			TickSpeed:       int32(tickSpeed.Int64),
			KeepInventory:   keepInv.Bool,
			AnnounceDeaths:  announce.Bool,
			FallDamage:      fallDmg.Bool,
			HungerDepletion: hunger.Bool,
			FireSpread:      fire.Bool,
			LeafDecay:       leaf.Bool,
			BlockUpdates:    blockUpd.Bool,
		}

		if x.Valid {
			r.SpawnPoint = &world.SpawnPoint{
				World: r.InternalName,
				X:     x.Float64,
				Y:     y.Float64,
				Z:     z.Float64,
				Yaw:   float32(yaw.Float64),
				Pitch: float32(pitch.Float64),
			}
		}

		byID[r.ID] = &r
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trusted, err := es.db.Query(`SELECT world_id, player_id FROM trusted_players`)
	if err != nil {
		return nil, err
	}
	defer trusted.Close()
	for trusted.Next() {
		var worldID int64
		var playerID string
		if err := trusted.Scan(&worldID, &playerID); err != nil {
			wmlog.Warnf("sqlstore: skipping unreadable trusted player row: %v", err)
			continue
		}
		if r := byID[worldID]; r != nil {
			r.TrustedPlayers.Add(playerID)
		}
	}
	return records, trusted.Err()
}

func (es *sqlWorldStorage) Save(record *world.Record) error {
	tx, err := es.db.Begin()
	if err != nil {
		return err
	}

	worldID, err := es.saveInTx(tx, record)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	// adopt the generated id only once the transaction is durable; a rolled
	// back save leaves the record unpersisted
	record.ID = worldID
	return nil
}

func (es *sqlWorldStorage) saveInTx(tx *sql.Tx, record *world.Record) (int64, error) {
	worldID := record.ID
	if !record.IsPersisted() {
		res, err := tx.Exec(
			`INSERT INTO worlds(name, owner_id, internal_name, icon, storage_path, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
			record.DisplayName, string(record.OwnerID), record.InternalName, record.Icon, record.StoragePath, record.CreatedAt.Unix())
		if err != nil {
			return worldID, errors.Wrap(err, "insert world failed")
		}
		worldID, err = res.LastInsertId()
		if err != nil {
			return worldID, errors.Wrap(err, "get inserted world id failed")
		}
	} else {
		_, err := tx.Exec(
			`UPDATE worlds SET name = ?, owner_id = ?, icon = ?, storage_path = ? WHERE id = ?`,
			record.DisplayName, string(record.OwnerID), record.Icon, record.StoragePath, worldID)
		if err != nil {
			return worldID, errors.Wrap(err, "update world failed")
		}
	}

	// REPLACE INTO works on both mysql and sqlite
	s := &record.Settings
	_, err := tx.Exec(
		`REPLACE INTO world_settings(world_id, game_mode, pvp_enabled, mob_spawning, redstone_enabled,
			physics_enabled, weather_enabled, fluid_flow, time_cycle, fixed_time, tick_speed,
			keep_inventory, announce_deaths, fall_damage, hunger_depletion, fire_spread, leaf_decay, block_updates)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		worldID, string(s.GameMode), s.Pvp, s.MobSpawning, s.Redstone,
		s.Physics, s.Weather, s.FluidFlow, s.TimeCycle, s.FixedTime, s.TickSpeed,
		s.KeepInventory, s.AnnounceDeaths, s.FallDamage, s.HungerDepletion, s.FireSpread, s.LeafDecay, s.BlockUpdates)
	if err != nil {
		return worldID, errors.Wrap(err, "save settings failed")
	}

	if _, err = tx.Exec(`DELETE FROM trusted_players WHERE world_id = ?`, worldID); err != nil {
		return worldID, errors.Wrap(err, "clear trusted players failed")
	}
	for playerID := range record.TrustedPlayers {
		if _, err = tx.Exec(`INSERT INTO trusted_players(world_id, player_id) VALUES(?, ?)`, worldID, playerID); err != nil {
			return worldID, errors.Wrap(err, "insert trusted player failed")
		}
	}

	if record.SpawnPoint != nil {
		sp := record.SpawnPoint
		_, err = tx.Exec(
			`REPLACE INTO spawn_points(world_id, x, y, z, yaw, pitch) VALUES(?, ?, ?, ?, ?, ?)`,
			worldID, sp.X, sp.Y, sp.Z, sp.Yaw, sp.Pitch)
		if err != nil {
			return worldID, errors.Wrap(err, "save spawn point failed")
		}
	} else {
		if _, err = tx.Exec(`DELETE FROM spawn_points WHERE world_id = ?`, worldID); err != nil {
			return worldID, errors.Wrap(err, "clear spawn point failed")
		}
	}
	return worldID, nil
}

func (es *sqlWorldStorage) Delete(record *world.Record) error {
	if !record.IsPersisted() {
		return nil
	}

	// dependent rows cascade
	_, err := es.db.Exec(`DELETE FROM worlds WHERE id = ?`, record.ID)
	return err
}

func (es *sqlWorldStorage) IsEOF(err error) bool {
	cause := errors.Cause(err)
	return cause == driver.ErrBadConn || netutil.IsConnectionError(cause)
}

func (es *sqlWorldStorage) Close() {
	es.db.Close()
}
