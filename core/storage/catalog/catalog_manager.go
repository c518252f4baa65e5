package catalog

import (
	"fmt"
	"sync"

	"github.com/emberdb/storage/core/storage/btree"
	"github.com/emberdb/storage/core/storage/buffer"
	"github.com/emberdb/storage/core/storage/heap"
	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/record"
	"github.com/emberdb/storage/core/storage/storageerr"
	"github.com/emberdb/storage/core/storage/txnhooks"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TableInfo bundles a table's metadata with a live handle onto its heap.
type TableInfo struct {
	Meta *TableMeta
	Heap *heap.TableHeap
}

// IndexInfo bundles an index's metadata with a live handle onto its tree.
type IndexInfo struct {
	Meta *IndexMeta
	Tree *btree.BTree
}

// Manager owns the catalog meta page and every table/index meta page it
// references, and is the only component that creates or drops tables
// and indexes.
type Manager struct {
	mu sync.Mutex

	bpm   *buffer.PoolManager
	roots *btree.IndexRoots
	log   txnhooks.LogManager
	logger *zap.Logger

	meta *catalogMeta

	tables     map[uint32]*TableInfo
	tableNames map[string]uint32

	indexes        map[uint32]*IndexInfo
	indexNamesByTable map[string]map[string]uint32
}

// Open loads an existing catalog from MetaPageID, or — if init is true
// — initializes a brand-new, empty one there.
func Open(bpm *buffer.PoolManager, roots *btree.IndexRoots, logManager txnhooks.LogManager, logger *zap.Logger, init bool) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		bpm:               bpm,
		roots:             roots,
		log:               logManager,
		logger:            logger,
		tables:            make(map[uint32]*TableInfo),
		tableNames:        make(map[string]uint32),
		indexes:           make(map[uint32]*IndexInfo),
		indexNamesByTable: make(map[string]map[string]uint32),
	}

	if init {
		m.meta = newCatalogMeta()
		return m, m.flushMeta()
	}

	frame, err := bpm.FetchPage(MetaPageID)
	if err != nil {
		return nil, err
	}
	frame.RLock()
	m.meta = deserializeCatalogMeta(frame.Data())
	frame.RUnlock()
	if err := bpm.UnpinPage(MetaPageID, false); err != nil {
		return nil, err
	}

	for _, e := range m.meta.tables {
		if err := m.loadTable(e.tableID, e.metaPage); err != nil {
			return nil, err
		}
	}
	for _, e := range m.meta.indexes {
		if err := m.loadIndex(e.indexID, e.metaPage); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) flushMeta() error {
	frame, err := m.bpm.FetchPage(MetaPageID)
	if err != nil {
		return err
	}
	frame.Lock()
	m.meta.serializeTo(frame.Data())
	frame.Unlock()
	return m.bpm.UnpinPage(MetaPageID, true)
}

func (m *Manager) loadTable(tableID uint32, metaPageID page.ID) error {
	frame, err := m.bpm.FetchPage(metaPageID)
	if err != nil {
		return err
	}
	frame.RLock()
	tm, err := DeserializeTableMeta(frame.Data())
	frame.RUnlock()
	if unpinErr := m.bpm.UnpinPage(metaPageID, false); unpinErr != nil && err == nil {
		err = unpinErr
	}
	if err != nil {
		return err
	}
	h := heap.Open(m.bpm, tm.Schema, tm.FirstPageID, m.log, m.logger)
	m.tables[tableID] = &TableInfo{Meta: tm, Heap: h}
	m.tableNames[tm.Name] = tableID
	return nil
}

func (m *Manager) loadIndex(indexID uint32, metaPageID page.ID) error {
	frame, err := m.bpm.FetchPage(metaPageID)
	if err != nil {
		return err
	}
	frame.RLock()
	im, err := DeserializeIndexMeta(frame.Data())
	frame.RUnlock()
	if unpinErr := m.bpm.UnpinPage(metaPageID, false); unpinErr != nil && err == nil {
		err = unpinErr
	}
	if err != nil {
		return err
	}
	tableInfo, ok := m.tables[im.TableID]
	if !ok {
		return fmt.Errorf("%w: index %q owning table %d not loaded", storageerr.ErrCorruption, im.Name, im.TableID)
	}
	keySize := estimateKeySize(tableInfo.Meta.Schema, im.KeyColumns)
	tree := btree.New(m.bpm, m.roots, indexID, keySize, btree.BytesComparator, m.logger)
	m.indexes[indexID] = &IndexInfo{Meta: im, Tree: tree}
	byTable := m.indexNamesByTable[tableInfo.Meta.Name]
	if byTable == nil {
		byTable = make(map[string]uint32)
		m.indexNamesByTable[tableInfo.Meta.Name] = byTable
	}
	byTable[im.Name] = indexID
	return nil
}

// CreateTable allocates a fresh heap and meta page for a new table
// named name with the given schema.
func (m *Manager) CreateTable(name string, schema *record.Schema) (*TableInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tableNames[name]; exists {
		return nil, fmt.Errorf("%w: table %q", storageerr.ErrAlreadyExists, name)
	}

	h, err := heap.Create(m.bpm, schema, m.log, m.logger)
	if err != nil {
		return nil, err
	}

	metaFrame, err := m.bpm.NewPage()
	if err != nil {
		return nil, err
	}
	tableID := m.meta.nextTableID
	m.meta.nextTableID++

	tm := &TableMeta{TableID: tableID, Name: name, FirstPageID: h.FirstPageID(), Schema: schema}
	metaFrame.Lock()
	tm.SerializeTo(metaFrame.Data())
	metaFrame.Unlock()
	metaPageID := metaFrame.ID()
	if err := m.bpm.UnpinPage(metaPageID, true); err != nil {
		return nil, err
	}

	m.meta.tables = append(m.meta.tables, tableEntry{tableID: tableID, metaPage: metaPageID})
	if err := m.flushMeta(); err != nil {
		return nil, err
	}

	info := &TableInfo{Meta: tm, Heap: h}
	m.tables[tableID] = info
	m.tableNames[name] = tableID
	return info, nil
}

// CreateIndex allocates a meta page and an empty B+ tree for a new
// index named indexName on tableName, keyed by keyColumns in the order
// given.
func (m *Manager) CreateIndex(tableName, indexName string, keyColumns []string) (*IndexInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableID, ok := m.tableNames[tableName]
	if !ok {
		return nil, fmt.Errorf("%w: table %q", storageerr.ErrNotFound, tableName)
	}
	tableInfo := m.tables[tableID]

	if byTable, ok := m.indexNamesByTable[tableName]; ok {
		if _, exists := byTable[indexName]; exists {
			return nil, fmt.Errorf("%w: index %q on table %q", storageerr.ErrAlreadyExists, indexName, tableName)
		}
	}

	keyColumnIdx := make([]uint32, len(keyColumns))
	for i, name := range keyColumns {
		idx, err := tableInfo.Meta.Schema.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		keyColumnIdx[i] = idx
	}

	metaFrame, err := m.bpm.NewPage()
	if err != nil {
		return nil, err
	}
	indexID := m.meta.nextIndexID
	m.meta.nextIndexID++

	im := &IndexMeta{IndexID: indexID, Name: indexName, TableID: tableID, KeyColumns: keyColumnIdx}
	metaFrame.Lock()
	im.SerializeTo(metaFrame.Data())
	metaFrame.Unlock()
	metaPageID := metaFrame.ID()
	if err := m.bpm.UnpinPage(metaPageID, true); err != nil {
		return nil, err
	}

	m.meta.indexes = append(m.meta.indexes, indexEntry{indexID: indexID, metaPage: metaPageID})
	if err := m.flushMeta(); err != nil {
		return nil, err
	}

	keySize := estimateKeySize(tableInfo.Meta.Schema, keyColumnIdx)
	tree := btree.New(m.bpm, m.roots, indexID, keySize, btree.BytesComparator, m.logger)

	info := &IndexInfo{Meta: im, Tree: tree}
	m.indexes[indexID] = info
	byTable := m.indexNamesByTable[tableName]
	if byTable == nil {
		byTable = make(map[string]uint32)
		m.indexNamesByTable[tableName] = byTable
	}
	byTable[indexName] = indexID

	m.logger.Debug("created index", zap.String("index", indexName), zap.String("table", tableName), zap.String("session", uuid.NewString()))
	return info, nil
}

// DropTable removes a table and every index built on it.
func (m *Manager) DropTable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableID, ok := m.tableNames[name]
	if !ok {
		return fmt.Errorf("%w: table %q", storageerr.ErrNotFound, name)
	}

	if byTable, ok := m.indexNamesByTable[name]; ok {
		for indexName := range byTable {
			if err := m.dropIndexLocked(name, indexName); err != nil {
				return err
			}
		}
		delete(m.indexNamesByTable, name)
	}

	for i, e := range m.meta.tables {
		if e.tableID == tableID {
			m.meta.tables = append(m.meta.tables[:i], m.meta.tables[i+1:]...)
			break
		}
	}
	delete(m.tables, tableID)
	delete(m.tableNames, name)
	return m.flushMeta()
}

// DropIndex removes the named index from table and destroys its tree.
// Every path returns a value — the original this is grounded on
// declares a non-void return type but falls off the end without one on
// its only code path.
func (m *Manager) DropIndex(tableName, indexName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropIndexLocked(tableName, indexName)
}

func (m *Manager) dropIndexLocked(tableName, indexName string) error {
	byTable, ok := m.indexNamesByTable[tableName]
	if !ok {
		return fmt.Errorf("%w: no indexes on table %q", storageerr.ErrNotFound, tableName)
	}
	indexID, ok := byTable[indexName]
	if !ok {
		return fmt.Errorf("%w: index %q on table %q", storageerr.ErrNotFound, indexName, tableName)
	}
	info := m.indexes[indexID]

	if err := info.Tree.Destroy(); err != nil {
		return err
	}

	for i, e := range m.meta.indexes {
		if e.indexID == indexID {
			if err := m.bpm.DeletePage(e.metaPage); err != nil {
				return err
			}
			m.meta.indexes = append(m.meta.indexes[:i], m.meta.indexes[i+1:]...)
			break
		}
	}

	delete(m.indexes, indexID)
	delete(byTable, indexName)
	return m.flushMeta()
}

func (m *Manager) GetTable(name string) (*TableInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tableID, ok := m.tableNames[name]
	if !ok {
		return nil, fmt.Errorf("%w: table %q", storageerr.ErrNotFound, name)
	}
	return m.tables[tableID], nil
}

func (m *Manager) GetIndex(tableName, indexName string) (*IndexInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byTable, ok := m.indexNamesByTable[tableName]
	if !ok {
		return nil, fmt.Errorf("%w: no indexes on table %q", storageerr.ErrNotFound, tableName)
	}
	indexID, ok := byTable[indexName]
	if !ok {
		return nil, fmt.Errorf("%w: index %q on table %q", storageerr.ErrNotFound, indexName, tableName)
	}
	return m.indexes[indexID], nil
}

func (m *Manager) ListTables() []*TableInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*TableInfo, 0, len(m.tables))
	for _, t := range m.tables {
		out = append(out, t)
	}
	return out
}

func (m *Manager) ListIndexes(tableName string) []*IndexInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	byTable, ok := m.indexNamesByTable[tableName]
	if !ok {
		return nil
	}
	out := make([]*IndexInfo, 0, len(byTable))
	for _, id := range byTable {
		out = append(out, m.indexes[id])
	}
	return out
}

// estimateKeySize sums the fixed widths of keyColumns; variable-width
// (varchar) key columns fall back to their declared capacity, matching
// how a fixed-size B+ tree key slot has to be reserved up front.
func estimateKeySize(schema *record.Schema, keyColumns []uint32) int {
	size := 0
	for _, idx := range keyColumns {
		col := schema.Columns[idx]
		if col.Type == record.TypeVarchar {
			size += int(col.Length)
		} else {
			size += int(col.FixedLength())
		}
	}
	return size
}
