package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lixenwraith/log"

	"github.com/tabflow/tabflow/pkg/firehose"
	"github.com/tabflow/tabflow/pkg/schema"
	"github.com/tabflow/tabflow/pkg/transform"
)

func newTestServer(t *testing.T, bucket string) *Server {
	t.Helper()
	tr, err := transform.New(schema.Clickstream(), log.NewLogger())
	if err != nil {
		t.Fatalf("transform.New failed: %v", err)
	}
	h := firehose.NewHandler(tr, bucket, log.NewLogger())
	return NewServer(h, log.NewLogger(), "test", 0)
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, "test-bucket")

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestServer_Version(t *testing.T) {
	s := newTestServer(t, "test-bucket")

	req := httptest.NewRequest("GET", "/version", nil)
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if body["version"] != "test" {
		t.Errorf("Expected version test, got %q", body["version"])
	}
}

func TestServer_Transform(t *testing.T) {
	s := newTestServer(t, "test-bucket")

	payload := base64.StdEncoding.EncodeToString([]byte("a\tb\tc\t1\nx\ty\tz\t2\n"))
	event := `{"records":[{"recordId":"r1","data":"` + payload + `"}]}`

	req := httptest.NewRequest("POST", "/transform", strings.NewReader(event))
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp firehose.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(resp.Records))
	}
	if resp.Records[0].RecordID != "r1" {
		t.Errorf("Expected recordId r1, got %q", resp.Records[0].RecordID)
	}
	if resp.Records[0].Result != firehose.ResultOk {
		t.Errorf("Expected Ok, got %s", resp.Records[0].Result)
	}

	decoded, err := base64.StdEncoding.DecodeString(resp.Records[0].Data)
	if err != nil {
		t.Fatalf("Response data is not valid base64: %v", err)
	}
	if string(decoded) != "a,b,c,1\nx,y,z,2\n" {
		t.Errorf("Expected CSV body, got %q", string(decoded))
	}
}

func TestServer_Transform_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, "test-bucket")

	req := httptest.NewRequest("GET", "/transform", nil)
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestServer_Transform_InvalidJSON(t *testing.T) {
	s := newTestServer(t, "test-bucket")

	req := httptest.NewRequest("POST", "/transform", strings.NewReader("{not json"))
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestServer_Transform_MissingBucket(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest("POST", "/transform", strings.NewReader(`{"records":[]}`))
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Invalid JSON error envelope: %v", err)
	}
	if body["error"] == "" {
		t.Error("Expected error message in envelope")
	}
}
