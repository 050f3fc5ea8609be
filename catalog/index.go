package catalog

import (
	"github.com/pkg/errors"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/storage/hash"
	"github.com/mkihara/harudb/transaction"
	"github.com/mkihara/harudb/tuple"
)

// IndexInfo is a hash index over one integer column of a table.
// it projects tuples to their index key and forwards entry maintenance to
// the extendible hash table. it implements transaction.IndexWriter so
// aborts can undo entries through the write set.
type IndexInfo struct {
	Name string
	OID  common.IndexOID

	table     *hash.Table
	keySchema *tuple.Schema
	keyAttrs  []int
}

// GetKeySchema returns the schema of the projected key
func (ix *IndexInfo) GetKeySchema() *tuple.Schema {
	return ix.keySchema
}

// GetKeyAttrs returns the positions of the key columns in the table schema
func (ix *IndexInfo) GetKeyAttrs() []int {
	return ix.keyAttrs
}

// KeyFromTuple projects the tuple to its index key
func (ix *IndexInfo) KeyFromTuple(t *tuple.Tuple) (int64, error) {
	attr := ix.keyAttrs[0]
	if attr >= t.NumValues() {
		return 0, errors.Errorf("index %q: key attr %d out of range", ix.Name, attr)
	}
	v := t.Value(attr)
	if v.Kind() != tuple.KindInt {
		return 0, errors.Errorf("index %q: key column is not an integer", ix.Name)
	}
	return v.Int(), nil
}

// InsertEntry adds (key, rid) to the index
func (ix *IndexInfo) InsertEntry(key int64, rid common.RID, tx *transaction.Tx) error {
	ok, err := ix.table.Insert(key, rid)
	if err != nil {
		return errors.Wrap(err, "hash table insert failed")
	}
	if !ok {
		return errors.Errorf("index %q: duplicate entry (%d, %s)", ix.Name, key, rid)
	}
	return nil
}

// DeleteEntry removes (key, rid) from the index
func (ix *IndexInfo) DeleteEntry(key int64, rid common.RID, tx *transaction.Tx) error {
	ok, err := ix.table.Remove(key, rid)
	if err != nil {
		return errors.Wrap(err, "hash table remove failed")
	}
	if !ok {
		return errors.Errorf("index %q: entry (%d, %s) not present", ix.Name, key, rid)
	}
	return nil
}

// ScanKey returns every rid indexed under key
func (ix *IndexInfo) ScanKey(key int64) ([]common.RID, error) {
	return ix.table.GetValue(key)
}
