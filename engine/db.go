/*
The engine assembles the store: disk manager, sharded buffer pool,
catalog, transaction registry and lock manager, wired together from one
Config.

This is also the logging boundary. The storage packages below stay
silent; the engine reports lifecycle events (open, close) through an
injected logrus logger.
*/
package engine

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mkihara/harudb/catalog"
	"github.com/mkihara/harudb/execution"
	"github.com/mkihara/harudb/storage/buffer"
	"github.com/mkihara/harudb/storage/disk"
	"github.com/mkihara/harudb/transaction"
	"github.com/mkihara/harudb/transaction/lock"
)

// dataFileName is the single page file under DataDir
const dataFileName = "harudb.db"

// DB is an open store
type DB struct {
	cfg Config
	log *logrus.Logger

	dm      *disk.Manager
	pool    *buffer.Pool
	catalog *catalog.Catalog
	txns    *transaction.Registry
	locks   *lock.Manager
}

// Open assembles a store from the config. log may be nil for a silent
// engine.
func Open(cfg Config, log *logrus.Logger) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.New()
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.ErrorLevel)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, errors.Wrap(err, "os.MkdirAll failed")
	}
	dm, err := disk.NewManager(filepath.Join(cfg.DataDir, dataFileName))
	if err != nil {
		return nil, errors.Wrap(err, "disk.NewManager failed")
	}

	pool := buffer.NewPool(cfg.NumInstances, cfg.PoolSize, dm)
	txns := transaction.NewRegistry()
	locks := lock.NewManager(txns)
	txns.BindLockManager(locks)

	db := &DB{
		cfg:     cfg,
		log:     log,
		dm:      dm,
		pool:    pool,
		catalog: catalog.NewCatalog(pool),
		txns:    txns,
		locks:   locks,
	}
	log.WithFields(logrus.Fields{
		"data_dir":  cfg.DataDir,
		"instances": cfg.NumInstances,
		"frames":    pool.PoolSize(),
	}).Info("database opened")
	return db, nil
}

// Catalog returns the catalog
func (db *DB) Catalog() *catalog.Catalog {
	return db.catalog
}

// LockManager returns the lock manager
func (db *DB) LockManager() *lock.Manager {
	return db.locks
}

// Begin starts a transaction at the engine's default isolation level
func (db *DB) Begin() *transaction.Tx {
	return db.txns.Begin(transaction.ParseIsolationLevel(db.cfg.Isolation))
}

// BeginAt starts a transaction at an explicit isolation level
func (db *DB) BeginAt(level transaction.IsolationLevel) *transaction.Tx {
	return db.txns.Begin(level)
}

// Commit finishes the transaction
func (db *DB) Commit(tx *transaction.Tx) error {
	return db.txns.Commit(tx)
}

// Abort rolls the transaction back
func (db *DB) Abort(tx *transaction.Tx) error {
	return db.txns.Abort(tx)
}

// ExecContext builds the execution context for one statement
func (db *DB) ExecContext(tx *transaction.Tx) *execution.Context {
	return execution.NewContext(tx, db.catalog, db.locks)
}

// Flush writes every resident page to disk
func (db *DB) Flush() error {
	if err := db.pool.FlushAllPages(); err != nil {
		return errors.Wrap(err, "pool.FlushAllPages failed")
	}
	if err := db.dm.Sync(); err != nil {
		return errors.Wrap(err, "dm.Sync failed")
	}
	return nil
}

// Stats reports coarse engine counters
func (db *DB) Stats() map[string]int {
	return map[string]int{
		"frames":     db.pool.PoolSize(),
		"disk_pages": db.dm.NumPages(),
	}
}

// Close flushes all pages and closes the data file
func (db *DB) Close() error {
	if err := db.Flush(); err != nil {
		return err
	}
	if err := db.dm.Close(); err != nil {
		return err
	}
	db.log.WithField("data_dir", db.cfg.DataDir).Info("database closed")
	return nil
}
