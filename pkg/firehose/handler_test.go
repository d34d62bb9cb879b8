package firehose

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/lixenwraith/log"

	"github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/schema"
	"github.com/tabflow/tabflow/pkg/transform"
)

func newTestHandler(t *testing.T, opts ...Option) *Handler {
	t.Helper()
	tr, err := transform.New(schema.Clickstream(), log.NewLogger())
	if err != nil {
		t.Fatalf("transform.New failed: %v", err)
	}
	return NewHandler(tr, "test-bucket", log.NewLogger(), opts...)
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func decode(t *testing.T, s string) string {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		t.Fatalf("Output data is not valid base64: %v", err)
	}
	return string(b)
}

func TestHandle_WellFormedBatch(t *testing.T) {
	h := newTestHandler(t)

	event := Event{Records: []Record{
		{RecordID: "r1", Data: encode("a\tb\tc\t1\nx\ty\tz\t2\n")},
		{RecordID: "r2", Data: encode("p\tq\tr\t3\n")},
	}}

	resp, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(resp.Records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(resp.Records))
	}
	if resp.Records[0].RecordID != "r1" || resp.Records[1].RecordID != "r2" {
		t.Errorf("Record IDs not preserved in order: %+v", resp.Records)
	}
	if resp.Records[0].Result != ResultOk {
		t.Errorf("Expected Ok, got %s", resp.Records[0].Result)
	}
	if got := decode(t, resp.Records[0].Data); got != "a,b,c,1\nx,y,z,2\n" {
		t.Errorf("Expected CSV body, got %q", got)
	}
	if got := decode(t, resp.Records[1].Data); got != "p,q,r,3\n" {
		t.Errorf("Expected CSV body, got %q", got)
	}
}

func TestHandle_MissingBucketFailsBatch(t *testing.T) {
	tr, err := transform.New(schema.Clickstream(), log.NewLogger())
	if err != nil {
		t.Fatalf("transform.New failed: %v", err)
	}
	h := NewHandler(tr, "", log.NewLogger())

	calls := 0
	h.observer = func(TransformedRecord) { calls++ }

	_, err = h.Handle(context.Background(), Event{Records: []Record{
		{RecordID: "r1", Data: encode("a\tb\tc\t1\n")},
	}})
	if err == nil {
		t.Fatal("Expected configuration error")
	}
	if !errors.IsCode(err, errors.CodeMissingBucket) {
		t.Errorf("Expected CodeMissingBucket, got %v", errors.GetCode(err))
	}
	if calls != 0 {
		t.Errorf("Expected no record processed, observer saw %d", calls)
	}
}

func TestHandle_FailureIsolation(t *testing.T) {
	h := newTestHandler(t)

	badData := "%%% not base64 %%%"
	event := Event{Records: []Record{
		{RecordID: "good-1", Data: encode("a\tb\tc\t1\n")},
		{RecordID: "bad", Data: badData},
		{RecordID: "good-2", Data: encode("x\ty\tz\t2\n")},
	}}

	resp, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(resp.Records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(resp.Records))
	}

	if resp.Records[0].Result != ResultOk || resp.Records[2].Result != ResultOk {
		t.Errorf("Healthy records affected by a bad neighbor: %+v", resp.Records)
	}
	if resp.Records[1].Result != ResultProcessingFailed {
		t.Errorf("Expected ProcessingFailed, got %s", resp.Records[1].Result)
	}
	if resp.Records[1].Data != badData {
		t.Errorf("Failed record payload modified: %q", resp.Records[1].Data)
	}
}

func TestHandle_AllMalformedLinesIsOk(t *testing.T) {
	h := newTestHandler(t)

	resp, err := h.Handle(context.Background(), Event{Records: []Record{
		{RecordID: "r1", Data: encode("badline\nanother bad line\n")},
	}})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp.Records[0].Result != ResultOk {
		t.Errorf("Expected Ok for all-malformed payload, got %s", resp.Records[0].Result)
	}
	if got := decode(t, resp.Records[0].Data); got != "" {
		t.Errorf("Expected empty body, got %q", got)
	}
}

func TestHandle_InvalidUTF8Fails(t *testing.T) {
	h := newTestHandler(t)

	raw := base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0x00})
	resp, err := h.Handle(context.Background(), Event{Records: []Record{
		{RecordID: "r1", Data: raw},
	}})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp.Records[0].Result != ResultProcessingFailed {
		t.Errorf("Expected ProcessingFailed, got %s", resp.Records[0].Result)
	}
	if resp.Records[0].Data != raw {
		t.Errorf("Failed record payload modified")
	}
}

func TestHandle_EmptyBatch(t *testing.T) {
	h := newTestHandler(t)

	resp, err := h.Handle(context.Background(), Event{})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(resp.Records) != 0 {
		t.Errorf("Expected empty response, got %d records", len(resp.Records))
	}
}

func TestHandle_ParallelMatchesSequential(t *testing.T) {
	seq := newTestHandler(t)
	par := newTestHandler(t, WithWorkers(4))

	var records []Record
	for i := 0; i < 100; i++ {
		data := fmt.Sprintf("p%d\tc%d\tlink\t%d\n", i, i, i)
		if i%7 == 0 {
			data = "malformed line without tabs\n" + data
		}
		rec := Record{RecordID: fmt.Sprintf("rec-%03d", i), Data: encode(data)}
		if i%13 == 0 {
			rec.Data = "*** broken base64 ***"
		}
		records = append(records, rec)
	}
	event := Event{Records: records}

	want, err := seq.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Sequential handle failed: %v", err)
	}
	got, err := par.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Parallel handle failed: %v", err)
	}

	if len(got.Records) != len(want.Records) {
		t.Fatalf("Length mismatch: %d vs %d", len(got.Records), len(want.Records))
	}
	for i := range want.Records {
		if got.Records[i] != want.Records[i] {
			t.Errorf("Record %d differs: %+v vs %+v", i, got.Records[i], want.Records[i])
		}
	}
}

func TestHandle_ObserverSeesEveryRecordInOrder(t *testing.T) {
	var seen []string
	h := newTestHandler(t, WithObserver(func(rec TransformedRecord) {
		seen = append(seen, rec.RecordID)
	}))

	event := Event{Records: []Record{
		{RecordID: "a", Data: encode("a\tb\tc\t1\n")},
		{RecordID: "b", Data: "bad"},
		{RecordID: "c", Data: encode("x\ty\tz\t2\n")},
	}}
	if _, err := h.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(seen) != len(want) {
		t.Fatalf("Observer saw %d records, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("Observer order: got %v, want %v", seen, want)
			break
		}
	}
}
