/*
The catalog maps names to tables and indexes.

Each table owns a heap; each index owns an extendible hash table over one
integer column. Both are backed by the same buffer pool. The catalog keeps
dual maps (oid to table, name to oid) under one reader-writer mutex.
*/
package catalog

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/storage/hash"
	"github.com/mkihara/harudb/storage/heap"
	"github.com/mkihara/harudb/tuple"
)

// BufferPool is the slice of the buffer pool the catalog's tables and
// indexes need
type BufferPool interface {
	heap.BufferPool
	hash.BufferPool
}

// TableInfo binds a table's name, oid, schema and heap
type TableInfo struct {
	Name   string
	OID    common.TableOID
	Schema *tuple.Schema
	Heap   *heap.TableHeap
}

// Catalog tracks every table and index
type Catalog struct {
	mu   sync.RWMutex
	pool BufferPool

	tables     map[common.TableOID]*TableInfo
	tableNames map[string]common.TableOID
	indexes    map[string][]*IndexInfo

	nextTableOID common.TableOID
	nextIndexOID common.IndexOID
}

// NewCatalog initializes an empty catalog over the pool
func NewCatalog(pool BufferPool) *Catalog {
	return &Catalog{
		pool:         pool,
		tables:       make(map[common.TableOID]*TableInfo),
		tableNames:   make(map[string]common.TableOID),
		indexes:      make(map[string][]*IndexInfo),
		nextTableOID: common.FirstTableOID,
	}
}

// CreateTable registers a new table and creates its heap
func (c *Catalog) CreateTable(name string, schema *tuple.Schema) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tableNames[name]; ok {
		return nil, errors.Errorf("table %q already exists", name)
	}
	th, err := heap.NewTableHeap(c.pool, schema)
	if err != nil {
		return nil, errors.Wrap(err, "heap.NewTableHeap failed")
	}
	info := &TableInfo{
		Name:   name,
		OID:    c.nextTableOID,
		Schema: schema,
		Heap:   th,
	}
	c.nextTableOID++
	c.tables[info.OID] = info
	c.tableNames[name] = info.OID
	return info, nil
}

// GetTable resolves a table oid
func (c *Catalog) GetTable(oid common.TableOID) (*TableInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.tables[oid]
	if !ok {
		return nil, errors.Errorf("no table with oid %d", oid)
	}
	return info, nil
}

// GetTableByName resolves a table name
func (c *Catalog) GetTableByName(name string) (*TableInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	oid, ok := c.tableNames[name]
	if !ok {
		return nil, errors.Errorf("no table named %q", name)
	}
	return c.tables[oid], nil
}

// CreateIndex builds a hash index over one integer column of the table.
// existing tuples are not back-filled: indexes are created before data is
// loaded in this store.
func (c *Catalog) CreateIndex(tableName, indexName string, keyAttr int) (*IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	oid, ok := c.tableNames[tableName]
	if !ok {
		return nil, errors.Errorf("no table named %q", tableName)
	}
	table := c.tables[oid]
	if keyAttr >= table.Schema.NumColumns() {
		return nil, errors.Errorf("key attr %d out of range for table %q", keyAttr, tableName)
	}
	col := table.Schema.Column(keyAttr)
	if col.Kind != tuple.KindInt {
		return nil, errors.Errorf("index key column %q is not an integer", col.Name)
	}

	ix := &IndexInfo{
		Name:      indexName,
		OID:       c.nextIndexOID,
		table:     hash.NewTable(c.pool, nil),
		keySchema: tuple.NewSchema(col),
		keyAttrs:  []int{keyAttr},
	}
	c.nextIndexOID++
	c.indexes[tableName] = append(c.indexes[tableName], ix)
	return ix, nil
}

// GetTableIndexes returns every index built on the table
func (c *Catalog) GetTableIndexes(tableName string) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexes[tableName]
}
