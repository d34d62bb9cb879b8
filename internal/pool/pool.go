// Package pool provides reusable output buffers and raw payload line
// iteration for the transform hot path.
package pool

import (
	"bytes"
	"sync"
)

// DefaultBufferSize is the initial capacity of pooled buffers. Reshaped
// bodies are rarely larger than their payloads, so one payload-sized
// buffer seldom regrows.
const DefaultBufferSize = 64 * 1024

// Buffer is an append-only byte buffer for assembling a reshaped body.
// Writes cannot fail.
type Buffer struct {
	b []byte
}

// WriteString appends s to the buffer.
func (buf *Buffer) WriteString(s string) {
	buf.b = append(buf.b, s...)
}

// WriteByte appends a single byte to the buffer.
func (buf *Buffer) WriteByte(c byte) {
	buf.b = append(buf.b, c)
}

// Reset clears the buffer for reuse, keeping its capacity.
func (buf *Buffer) Reset() {
	buf.b = buf.b[:0]
}

// Len returns the number of bytes written.
func (buf *Buffer) Len() int {
	return len(buf.b)
}

// Bytes returns the assembled body. The slice is invalidated by the next
// Reset.
func (buf *Buffer) Bytes() []byte {
	return buf.b
}

// Pool recycles Buffers across records.
type Pool struct {
	pool sync.Pool
}

// NewPool creates a pool whose buffers start at the given capacity.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	p := &Pool{}
	p.pool.New = func() any {
		return &Buffer{b: make([]byte, 0, size)}
	}
	return p
}

// Get retrieves an empty buffer from the pool.
func (p *Pool) Get() *Buffer {
	buf := p.pool.Get().(*Buffer)
	buf.Reset()
	return buf
}

// Put returns a buffer to the pool.
func (p *Pool) Put(buf *Buffer) {
	p.pool.Put(buf)
}

// PayloadScanner yields the newline-separated lines of a decoded payload.
// Only the newline itself is consumed: every other byte of the line,
// carriage returns included, reaches the caller untouched.
type PayloadScanner struct {
	data []byte
	pos  int
}

// NewPayloadScanner creates a scanner over the given payload bytes.
func NewPayloadScanner(data []byte) *PayloadScanner {
	return &PayloadScanner{data: data}
}

// Next returns the next line without its trailing newline, sharing the
// payload's backing array. A blank line comes back empty but non-nil;
// nil means the payload is exhausted. A trailing newline does not
// produce a final empty line.
func (s *PayloadScanner) Next() []byte {
	if s.pos >= len(s.data) {
		return nil
	}
	rest := s.data[s.pos:]
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		s.pos += i + 1
		return rest[:i]
	}
	s.pos = len(s.data)
	return rest
}
