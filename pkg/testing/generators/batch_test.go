package generators

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/lixenwraith/log"

	"github.com/tabflow/tabflow/pkg/firehose"
	"github.com/tabflow/tabflow/pkg/schema"
	"github.com/tabflow/tabflow/pkg/transform"
)

func TestLine_MatchesSchema(t *testing.T) {
	g := NewBatchGenerator(42)

	for i := 0; i < 50; i++ {
		line := g.Line()
		if _, ok := g.Schema.Split([]byte(line)); !ok {
			t.Fatalf("Generated line does not match schema: %q", line)
		}
	}
}

func TestEvent_Shape(t *testing.T) {
	g := NewBatchGenerator(42)
	g.LinesPerRecord = 5

	event := g.Event(10)
	if len(event.Records) != 10 {
		t.Fatalf("Expected 10 records, got %d", len(event.Records))
	}

	seen := make(map[string]bool)
	for _, rec := range event.Records {
		if rec.RecordID == "" {
			t.Error("Record has empty ID")
		}
		if seen[rec.RecordID] {
			t.Errorf("Duplicate record ID %s", rec.RecordID)
		}
		seen[rec.RecordID] = true

		payload, err := base64.StdEncoding.DecodeString(rec.Data)
		if err != nil {
			t.Fatalf("Record payload is not valid base64: %v", err)
		}
		lines := strings.Count(string(payload), "\n")
		if lines != 5 {
			t.Errorf("Expected 5 lines, got %d", lines)
		}
	}
}

func TestGeneratedEvent_TransformsCleanly(t *testing.T) {
	g := NewBatchGenerator(7)
	tr, err := transform.New(schema.Clickstream(), log.NewLogger())
	if err != nil {
		t.Fatalf("transform.New failed: %v", err)
	}
	h := firehose.NewHandler(tr, "test-bucket", log.NewLogger())

	resp, err := h.Handle(context.Background(), g.Event(25))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	for _, rec := range resp.Records {
		if rec.Result != firehose.ResultOk {
			t.Errorf("Record %s: expected Ok, got %s", rec.RecordID, rec.Result)
		}
	}
}

func TestMalformedRate_DropsLines(t *testing.T) {
	g := NewBatchGenerator(99)
	g.MalformedRate = 1.0 // every line malformed

	tr, err := transform.New(schema.Clickstream(), log.NewLogger())
	if err != nil {
		t.Fatalf("transform.New failed: %v", err)
	}

	out, err := tr.Reshape(g.Payload(20))
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Expected empty body for all-malformed payload, got %q", string(out))
	}
}

func TestDeterministic(t *testing.T) {
	a := NewBatchGenerator(1).Payload(10)
	b := NewBatchGenerator(1).Payload(10)
	if string(a) != string(b) {
		t.Error("Same seed should produce the same payload")
	}
}
