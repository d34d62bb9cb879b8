// Package transform implements the per-record reshaping stage: decode a
// base64 payload, parse it as delimited text against a fixed schema, and
// re-serialize the valid rows as CSV.
package transform

import (
	"bytes"
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/lixenwraith/log"

	"github.com/tabflow/tabflow/internal/pool"
	"github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/schema"
)

// Transformer reshapes delimited payloads into CSV bodies.
// It is stateless per call and safe for concurrent use.
type Transformer struct {
	schema  schema.Schema
	logger  *log.Logger
	buffers *pool.Pool
}

// New creates a Transformer for the given wire schema.
func New(s schema.Schema, logger *log.Logger) (*Transformer, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Transformer{
		schema:  s,
		logger:  logger,
		buffers: pool.NewPool(pool.DefaultBufferSize),
	}, nil
}

// Schema returns the wire schema this transformer enforces.
func (t *Transformer) Schema() schema.Schema {
	return t.schema
}

// ReshapePayload decodes a base64 payload, reshapes it, and re-encodes the
// result. The returned string is the base64 CSV body.
func (t *Transformer) ReshapePayload(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.DecodeFailed(err)
	}

	out, err := t.Reshape(raw)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(out), nil
}

// Reshape parses raw payload bytes as newline-separated, delimiter-split
// lines and serializes the valid rows as CSV: one line per row, comma
// separated, minimally quoted, no header. Lines that are blank are skipped;
// lines whose field count does not match the schema are dropped with a
// warning. Zero valid rows serialize to an empty body. Field bytes pass
// through untouched: no trimming, no type conversion.
func (t *Transformer) Reshape(raw []byte) ([]byte, error) {
	if !utf8.Valid(raw) {
		return nil, errors.InvalidUTF8()
	}

	buf := t.buffers.Get()
	defer t.buffers.Put(buf)

	lines := pool.NewPayloadScanner(raw)
	for line := lines.Next(); line != nil; line = lines.Next() {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		fields, ok := t.schema.Split(line)
		if !ok {
			if t.logger != nil {
				t.logger.Warn("msg", "Skipping malformed line",
					"component", "transform",
					"expected_fields", t.schema.NumFields(),
					"line", string(line))
			}
			continue
		}

		writeRow(buf, fields)
	}

	// Copy out of the pooled buffer before it is reused.
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// writeRow serializes one row: comma separated, newline terminated. A field
// is quoted only when it contains a comma, quote, or line break; quotes are
// doubled inside quoted fields. Leading and trailing whitespace stays bare.
func writeRow(buf *pool.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if !strings.ContainsAny(f, ",\"\r\n") {
			buf.WriteString(f)
			continue
		}
		buf.WriteByte('"')
		for j := 0; j < len(f); j++ {
			if f[j] == '"' {
				buf.WriteByte('"')
			}
			buf.WriteByte(f[j])
		}
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
}
