// Package schema describes fixed-width wire formats for delimited log records.
package schema

import (
	"bytes"
	"strings"

	"github.com/tabflow/tabflow/pkg/errors"
)

// Schema describes one delimited wire format: an ordered set of field names
// and the single-byte delimiter separating them on each line.
type Schema struct {
	Fields    []string
	Delimiter byte
}

// Clickstream returns the clickstream wire format: four tab-separated
// fields per line, in fixed order.
func Clickstream() Schema {
	return Schema{
		Fields:    []string{"prev", "curr", "type", "n"},
		Delimiter: '\t',
	}
}

// NumFields returns the number of fields a valid line must carry.
func (s Schema) NumFields() int {
	return len(s.Fields)
}

// Validate checks that the schema is usable.
func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return errors.New(errors.CodeInvalidSchema, "schema has no fields")
	}
	for _, f := range s.Fields {
		if f == "" {
			return errors.New(errors.CodeInvalidSchema, "schema has an empty field name")
		}
	}
	if s.Delimiter == '\n' || s.Delimiter == '\r' {
		return errors.New(errors.CodeInvalidSchema, "delimiter conflicts with line terminator")
	}
	return nil
}

// Split splits one line into fields on the schema delimiter.
// It returns ok=false when the field count does not match the schema arity;
// field values are never trimmed or coerced.
func (s Schema) Split(line []byte) ([]string, bool) {
	parts := bytes.Split(line, []byte{s.Delimiter})
	if len(parts) != len(s.Fields) {
		return nil, false
	}
	fields := make([]string, len(parts))
	for i, p := range parts {
		fields[i] = string(p)
	}
	return fields, true
}

// String returns a human-readable description of the schema.
func (s Schema) String() string {
	return strings.Join(s.Fields, ",")
}
