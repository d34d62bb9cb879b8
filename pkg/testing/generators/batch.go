// Package generators provides test data generation utilities.
package generators

import (
	"encoding/base64"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/tabflow/tabflow/pkg/firehose"
	"github.com/tabflow/tabflow/pkg/schema"
)

// BatchGenerator generates synthetic clickstream invocation events.
type BatchGenerator struct {
	rng *rand.Rand

	// Schema is the wire format to generate against.
	Schema schema.Schema

	// LinesPerRecord is the number of payload lines per record.
	LinesPerRecord int

	// MalformedRate is the probability a line carries the wrong field count.
	MalformedRate float64

	// BlankRate is the probability of injecting a blank line.
	BlankRate float64
}

var samplePages = []string{
	"other-search",
	"other-internal",
	"Main_Page",
	"Hyperlink",
	"Data_pipeline",
	"Stream_processing",
	"Comma-separated_values",
}

var sampleTypes = []string{"link", "external", "other"}

// NewBatchGenerator creates a generator with default settings.
func NewBatchGenerator(seed int64) *BatchGenerator {
	return &BatchGenerator{
		rng:            rand.New(rand.NewSource(seed)),
		Schema:         schema.Clickstream(),
		LinesPerRecord: 10,
	}
}

// Line generates one well-formed payload line.
func (g *BatchGenerator) Line() string {
	fields := make([]string, g.Schema.NumFields())
	for i := range fields {
		switch g.Schema.Fields[i] {
		case "prev", "curr":
			fields[i] = samplePages[g.rng.Intn(len(samplePages))]
		case "type":
			fields[i] = sampleTypes[g.rng.Intn(len(sampleTypes))]
		case "n":
			fields[i] = fmt.Sprintf("%d", g.rng.Intn(10000)+1)
		default:
			fields[i] = fmt.Sprintf("v%d", g.rng.Intn(1000))
		}
	}
	return strings.Join(fields, string(g.Schema.Delimiter))
}

// Payload generates one decoded payload body of n lines, subject to the
// configured malformed and blank rates.
func (g *BatchGenerator) Payload(n int) []byte {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if g.BlankRate > 0 && g.rng.Float64() < g.BlankRate {
			sb.WriteString("\n")
		}
		if g.MalformedRate > 0 && g.rng.Float64() < g.MalformedRate {
			sb.WriteString("malformed line without enough fields\n")
			continue
		}
		sb.WriteString(g.Line())
		sb.WriteString("\n")
	}
	return []byte(sb.String())
}

// Record generates one input record with a fresh record ID and an encoded
// payload.
func (g *BatchGenerator) Record() firehose.Record {
	return firehose.Record{
		RecordID: uuid.NewString(),
		Data:     base64.StdEncoding.EncodeToString(g.Payload(g.LinesPerRecord)),
	}
}

// Event generates an invocation event of n records.
func (g *BatchGenerator) Event(n int) firehose.Event {
	records := make([]firehose.Record, n)
	for i := range records {
		records[i] = g.Record()
	}
	return firehose.Event{Records: records}
}
