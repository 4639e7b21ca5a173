// Package kvstore opens the core.KVStore selected by the configuration.
package kvstore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/qlass/backend/core"
	appfs "github.com/qlass/backend/fs"
	"github.com/qlass/backend/storage/database"
	"github.com/qlass/backend/storage/kvstore/badgerkv"
	"github.com/qlass/backend/storage/kvstore/inmemkv"
	"github.com/qlass/backend/storage/kvstore/pgkv"
)

// Open opens the store of conf.Storage.Driver. Postgres databases are created and migrated first.
func Open(ctx context.Context, conf *core.Config, logger core.Logger) (core.KVStore, error) {
	switch conf.Storage.Driver {
	case core.StorageMemory:
		return inmemkv.Open(), nil

	case core.StorageBadger, "":
		bconf := badgerkv.DefaultConfig(conf.Storage.BadgerPath)
		bconf.SyncWrites = conf.Storage.BadgerSyncWrites
		bconf.Logger = logger
		store, err := badgerkv.Open(bconf)
		if err != nil {
			return nil, errors.Wrap(err, "opening badger store")
		}
		return store, nil

	case core.StoragePostgres:
		if err := database.CreateIfNotExist(ctx, conf.Database); err != nil {
			return nil, errors.Wrap(err, "creating database")
		}
		db, err := database.Open(conf.Database)
		if err != nil {
			return nil, errors.Wrap(err, "opening database")
		}
		if err = database.Ping(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		if err = database.Migrate(db, appfs.FS); err != nil {
			_ = db.Close()
			return nil, err
		}
		return pgkv.New(db), nil
	}
	return nil, errors.Errorf("unknown storage driver %q", conf.Storage.Driver)
}
