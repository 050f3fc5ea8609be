package common

// oid is object id.
// this is allocated uniquely to every object registered in the catalog.
type oid uint32

// TableOID identifies a table.
// the catalog maps the oid to the table's schema and heap.
type TableOID oid

// IndexOID identifies an index built on a table.
type IndexOID oid

const (
	// InvalidTableOID means the table does not exist
	InvalidTableOID TableOID = 0
	// FirstTableOID is the oid allocated to the first table created
	FirstTableOID TableOID = 1
)
