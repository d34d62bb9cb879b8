package pool

import (
	"testing"
)

func TestBuffer_WriteAndReset(t *testing.T) {
	buf := &Buffer{}
	buf.WriteString("hello")
	buf.WriteByte('!')
	if buf.Len() != 6 {
		t.Errorf("Expected length 6, got %d", buf.Len())
	}
	if string(buf.Bytes()) != "hello!" {
		t.Errorf("Expected %q, got %q", "hello!", string(buf.Bytes()))
	}

	buf.Reset()
	if buf.Len() != 0 {
		t.Errorf("Expected empty after reset, got %d", buf.Len())
	}
}

func TestPool_ReturnsEmptyBuffers(t *testing.T) {
	p := NewPool(128)

	buf := p.Get()
	buf.WriteString("data")
	p.Put(buf)

	buf2 := p.Get()
	if buf2.Len() != 0 {
		t.Errorf("Pooled buffer not reset, has %d bytes", buf2.Len())
	}
}

func TestPayloadScanner_Lines(t *testing.T) {
	s := NewPayloadScanner([]byte("one\ntwo\nthree"))

	want := []string{"one", "two", "three"}
	for i, w := range want {
		line := s.Next()
		if line == nil {
			t.Fatalf("Line %d: unexpected end of payload", i)
		}
		if string(line) != w {
			t.Errorf("Line %d: expected %q, got %q", i, w, string(line))
		}
	}
	if line := s.Next(); line != nil {
		t.Errorf("Expected end of payload, got %q", string(line))
	}
}

func TestPayloadScanner_PreservesCarriageReturns(t *testing.T) {
	s := NewPayloadScanner([]byte("a\r\nb\rc\n"))

	if line := s.Next(); string(line) != "a\r" {
		t.Errorf("Expected carriage return kept in line, got %q", string(line))
	}
	if line := s.Next(); string(line) != "b\rc" {
		t.Errorf("Expected embedded carriage return kept, got %q", string(line))
	}
	if line := s.Next(); line != nil {
		t.Errorf("Expected end of payload, got %q", string(line))
	}
}

func TestPayloadScanner_BlankLines(t *testing.T) {
	s := NewPayloadScanner([]byte("\n\na\n"))

	var lines []string
	for line := s.Next(); line != nil; line = s.Next() {
		lines = append(lines, string(line))
	}
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d: %q", len(lines), lines)
	}
	if lines[0] != "" || lines[1] != "" || lines[2] != "a" {
		t.Errorf("Unexpected lines: %q", lines)
	}
}

func TestPayloadScanner_Empty(t *testing.T) {
	s := NewPayloadScanner(nil)
	if line := s.Next(); line != nil {
		t.Errorf("Expected nil for empty payload, got %q", string(line))
	}
}
