package tuple

import "github.com/pkg/errors"

// Column describes one tuple attribute
type Column struct {
	Name string
	Kind Kind
}

// Schema is the ordered attribute list of a table or of an operator's
// output
type Schema struct {
	columns []Column
}

// NewSchema initializes a schema from its columns
func NewSchema(columns ...Column) *Schema {
	return &Schema{columns: columns}
}

// NumColumns returns the attribute count
func (s *Schema) NumColumns() int {
	return len(s.columns)
}

// Column returns the i-th attribute
func (s *Schema) Column(i int) Column {
	return s.columns[i]
}

// ColumnIndex resolves an attribute name to its position
func (s *Schema) ColumnIndex(name string) (int, error) {
	for i, c := range s.columns {
		if c.Name == name {
			return i, nil
		}
	}
	return 0, errors.Errorf("column %q not in schema", name)
}
