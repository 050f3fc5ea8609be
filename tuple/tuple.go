/*
Tuple is an ordered list of values conforming to a schema.

The on-heap encoding is little-endian and schema-driven: integers take 8
fixed bytes, strings a 4-byte length prefix plus the bytes. The schema is
not stored with the tuple; the catalog supplies it on the way back in.

After insertion a tuple remembers the rid it lives at so executors can
thread it through locks and indexes.
*/
package tuple

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/mkihara/harudb/common"
)

// Tuple is one row
type Tuple struct {
	values []Value
	rid    common.RID
}

// NewTuple builds a row from its values
func NewTuple(values ...Value) *Tuple {
	return &Tuple{values: values, rid: common.RID{PageID: common.InvalidPageID}}
}

// Value returns the i-th cell
func (t *Tuple) Value(i int) Value {
	return t.values[i]
}

// NumValues returns the cell count
func (t *Tuple) NumValues() int {
	return len(t.values)
}

// RID returns where the tuple lives in its heap; invalid for tuples that
// were never inserted
func (t *Tuple) RID() common.RID {
	return t.rid
}

// SetRID records the tuple's heap location
func (t *Tuple) SetRID(rid common.RID) {
	t.rid = rid
}

// Serialize encodes the tuple for the given schema
func (t *Tuple) Serialize(s *Schema) ([]byte, error) {
	if len(t.values) != s.NumColumns() {
		return nil, errors.Errorf("tuple has %d values, schema %d columns", len(t.values), s.NumColumns())
	}
	var buf []byte
	for i, v := range t.values {
		col := s.Column(i)
		if v.Kind() != col.Kind {
			return nil, errors.Errorf("column %q: value kind mismatch", col.Name)
		}
		switch col.Kind {
		case KindInt:
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(v.Int()))
			buf = append(buf, b[:]...)
		case KindString:
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(len(v.Str())))
			buf = append(buf, b[:]...)
			buf = append(buf, v.Str()...)
		default:
			return nil, errors.Errorf("column %q: unstorable kind", col.Name)
		}
	}
	return buf, nil
}

// Deserialize decodes a tuple for the given schema
func Deserialize(data []byte, s *Schema) (*Tuple, error) {
	values := make([]Value, 0, s.NumColumns())
	off := 0
	for i := 0; i < s.NumColumns(); i++ {
		col := s.Column(i)
		switch col.Kind {
		case KindInt:
			if off+8 > len(data) {
				return nil, errors.Errorf("column %q: truncated tuple", col.Name)
			}
			values = append(values, NewIntValue(int64(binary.LittleEndian.Uint64(data[off:]))))
			off += 8
		case KindString:
			if off+4 > len(data) {
				return nil, errors.Errorf("column %q: truncated tuple", col.Name)
			}
			n := int(binary.LittleEndian.Uint32(data[off:]))
			off += 4
			if off+n > len(data) {
				return nil, errors.Errorf("column %q: truncated tuple", col.Name)
			}
			values = append(values, NewStringValue(string(data[off:off+n])))
			off += n
		default:
			return nil, errors.Errorf("column %q: unstorable kind", col.Name)
		}
	}
	return NewTuple(values...), nil
}
