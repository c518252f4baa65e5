// Package engine wires the disk manager, buffer pool, and catalog
// together into a single embeddable storage core: Open a database file,
// get back table and index handles, Close it when done.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/emberdb/storage/core/storage/btree"
	"github.com/emberdb/storage/core/storage/buffer"
	"github.com/emberdb/storage/core/storage/catalog"
	"github.com/emberdb/storage/core/storage/disk"
	"github.com/emberdb/storage/core/storage/record"
	"github.com/emberdb/storage/core/storage/storageerr"
	"github.com/emberdb/storage/core/storage/txnhooks"
	"github.com/emberdb/storage/pkg/config"
	"github.com/emberdb/storage/pkg/logger"
	"github.com/emberdb/storage/pkg/telemetry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// backgroundFlushInterval and backgroundFlushRate bound how aggressively
// the opportunistic flusher writes back dirty, unpinned frames.
const (
	backgroundFlushInterval = 2 * time.Second
	backgroundFlushRate     = 200 // pages/sec
)

// Engine is a single open database: one file, one buffer pool, one
// catalog. It is the unit of lifetime the rest of this core is built
// around — everything else (tables, indexes, iterators) is reached
// through it.
type Engine struct {
	cfg config.Config

	disk *disk.Manager
	bpm  *buffer.PoolManager

	roots   *btree.IndexRoots
	catalog *catalog.Manager

	logger           *zap.Logger
	telemetry        *telemetry.Telemetry
	telemetryShutdown telemetry.ShutdownFunc

	logManager txnhooks.LogManager
}

// Open opens (or creates, per cfg.CreateIfMissing) the database file
// named by cfg.DataFile, bringing up logging, telemetry, the buffer
// pool, and the catalog in that order.
func Open(cfg config.Config) (*Engine, error) {
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tel, telShutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	diskManager, err := disk.OpenOrCreate(cfg.DataFile, cfg.CreateIfMissing, log)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}

	metrics, err := buffer.NewMetrics(tel.Meter)
	if err != nil {
		diskManager.Close()
		return nil, fmt.Errorf("init buffer pool metrics: %w", err)
	}

	bpm, err := buffer.New(diskManager, cfg.BufferPoolSize, cfg.Replacer, nil, log, metrics)
	if err != nil {
		diskManager.Close()
		return nil, fmt.Errorf("init buffer pool: %w", err)
	}

	fresh := diskManager.NumAllocatedPages() == 0
	if fresh {
		if err := reserveFixedPages(bpm); err != nil {
			diskManager.Close()
			return nil, fmt.Errorf("reserve catalog/index-roots pages: %w", err)
		}
	}

	roots := btree.NewIndexRoots(bpm)
	catalogManager, err := catalog.Open(bpm, roots, nil, log, fresh)
	if err != nil {
		diskManager.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	e := &Engine{
		cfg:               cfg,
		disk:              diskManager,
		bpm:               bpm,
		roots:             roots,
		catalog:           catalogManager,
		logger:            log,
		telemetry:         tel,
		telemetryShutdown: telShutdown,
	}

	limiter := rate.NewLimiter(rate.Limit(backgroundFlushRate), backgroundFlushRate)
	bpm.StartBackgroundFlusher(context.Background(), backgroundFlushInterval, limiter)

	log.Info("storage engine opened", zap.String("data_file", cfg.DataFile), zap.Bool("fresh", fresh))
	return e, nil
}

// reserveFixedPages allocates logical pages 1 and 2 — catalog.MetaPageID
// and btree.IndexRootsPageID — on a brand-new database file, before
// anything else touches the allocator. Without this the bitmap would
// never learn those two slots are spoken for, and a later AllocatePage
// could hand either of them out again out from under the catalog.
func reserveFixedPages(bpm *buffer.PoolManager) error {
	metaFrame, err := bpm.NewPage()
	if err != nil {
		return err
	}
	if metaFrame.ID() != catalog.MetaPageID {
		bpm.UnpinPage(metaFrame.ID(), false)
		return fmt.Errorf("%w: expected first page allocated to be %d, got %d", storageerr.ErrCorruption, catalog.MetaPageID, metaFrame.ID())
	}
	if err := bpm.UnpinPage(metaFrame.ID(), false); err != nil {
		return err
	}

	rootsFrame, err := bpm.NewPage()
	if err != nil {
		return err
	}
	if rootsFrame.ID() != btree.IndexRootsPageID {
		bpm.UnpinPage(rootsFrame.ID(), false)
		return fmt.Errorf("%w: expected second page allocated to be %d, got %d", storageerr.ErrCorruption, btree.IndexRootsPageID, rootsFrame.ID())
	}
	return bpm.UnpinPage(rootsFrame.ID(), false)
}

// CreateTable defines a new table named name with the given schema.
func (e *Engine) CreateTable(name string, schema *record.Schema) (*catalog.TableInfo, error) {
	return e.catalog.CreateTable(name, schema)
}

// CreateIndex defines a new index named indexName on table, keyed by
// keyColumns in the order given.
func (e *Engine) CreateIndex(tableName, indexName string, keyColumns []string) (*catalog.IndexInfo, error) {
	return e.catalog.CreateIndex(tableName, indexName, keyColumns)
}

// DropTable removes a table and every index built on it.
func (e *Engine) DropTable(name string) error {
	return e.catalog.DropTable(name)
}

// DropIndex removes the named index from table.
func (e *Engine) DropIndex(tableName, indexName string) error {
	return e.catalog.DropIndex(tableName, indexName)
}

// Table looks up a table handle by name.
func (e *Engine) Table(name string) (*catalog.TableInfo, error) {
	return e.catalog.GetTable(name)
}

// Index looks up an index handle by table and index name.
func (e *Engine) Index(tableName, indexName string) (*catalog.IndexInfo, error) {
	return e.catalog.GetIndex(tableName, indexName)
}

// ListTables returns every table currently defined.
func (e *Engine) ListTables() []*catalog.TableInfo {
	return e.catalog.ListTables()
}

// ListIndexes returns every index currently defined on table.
func (e *Engine) ListIndexes(tableName string) []*catalog.IndexInfo {
	return e.catalog.ListIndexes(tableName)
}

// BufferPool exposes the underlying pool manager for callers that need
// page-level access beyond the table/index API — building a new index
// manager variant, for instance.
func (e *Engine) BufferPool() *buffer.PoolManager { return e.bpm }

// Logger returns the engine's configured logger, for callers embedding
// it that want to log under the same sink.
func (e *Engine) Logger() *zap.Logger { return e.logger }

// Close flushes every dirty page, stops the background flusher, and
// closes the underlying file.
func (e *Engine) Close() error {
	e.bpm.Close()
	if err := e.bpm.FlushAllPages(); err != nil {
		e.logger.Warn("flush on close failed", zap.Error(err))
	}
	if err := e.disk.Close(); err != nil {
		return err
	}
	if e.telemetryShutdown != nil {
		if err := e.telemetryShutdown(context.Background()); err != nil {
			e.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	return e.logger.Sync()
}
