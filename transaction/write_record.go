package transaction

import "github.com/mkihara/harudb/common"

// WriteType classifies an index mutation
type WriteType int

const (
	WriteInsert WriteType = iota
	WriteDelete
	WriteUpdate
)

// IndexWriter is the slice of an index the undo path needs. the catalog's
// index wrapper implements it; the interface lives here so the registry
// can roll back without importing the catalog.
type IndexWriter interface {
	InsertEntry(key int64, rid common.RID, tx *Tx) error
	DeleteEntry(key int64, rid common.RID, tx *Tx) error
}

// IndexWriteRecord remembers one index mutation so an abort can undo it:
// an insert is undone by deleting the key, a delete by re-inserting it,
// an update by swapping the new key back for the old one.
type IndexWriteRecord struct {
	RID   common.RID
	Table common.TableOID
	Type  WriteType
	Index IndexWriter
	// the key written (for updates: the new key)
	Key int64
	// the key replaced; meaningful for updates only
	OldKey int64
}
