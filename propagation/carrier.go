package propagation

import (
	"bytes"
	"net/http"
)

// ============================================================================
// HTTP carriers
// ============================================================================

// HeaderReader reads string headers from an incoming carrier.
type HeaderReader interface {
	// Read returns the value of a header, if present.
	Read(name string) (string, bool)
	// ReadAll returns every header on the carrier.
	ReadAll() map[string]string
}

// HeaderWriter writes string headers onto an outgoing carrier.
type HeaderWriter interface {
	Write(name, value string)
}

// HeaderMap is an in-memory carrier for tests and non-HTTP transports
// that still speak name/value pairs.
type HeaderMap map[string]string

// Read returns the value of a header, if present.
func (h HeaderMap) Read(name string) (string, bool) {
	v, ok := h[name]
	return v, ok
}

// ReadAll returns every header on the carrier.
func (h HeaderMap) ReadAll() map[string]string { return h }

// Write sets a header, replacing any previous value.
func (h HeaderMap) Write(name, value string) { h[name] = value }

// HeaderCarrier adapts a net/http header to the carrier contracts.
type HeaderCarrier struct {
	Header http.Header
}

// Read returns the first value of a header, if present.
func (c HeaderCarrier) Read(name string) (string, bool) {
	if values := c.Header.Values(name); len(values) > 0 {
		return values[0], true
	}
	return "", false
}

// ReadAll returns the first value of every header.
func (c HeaderCarrier) ReadAll() map[string]string {
	all := make(map[string]string, len(c.Header))
	for name := range c.Header {
		if v, ok := c.Read(name); ok {
			all[name] = v
		}
	}
	return all
}

// Write sets a header, replacing any previous values.
func (c HeaderCarrier) Write(name, value string) { c.Header.Set(name, value) }

// ============================================================================
// Binary carriers
// ============================================================================

// ByteStreamReader reads the raw bytes of an incoming binary carrier.
type ByteStreamReader interface {
	Read(p []byte) (int, error)
	ReadAll() ([]byte, error)
}

// ByteStreamWriter writes the raw bytes of an outgoing binary carrier.
type ByteStreamWriter interface {
	Write(p []byte) (int, error)
}

// BytesCarrier is an in-memory binary carrier.
type BytesCarrier struct {
	buf bytes.Buffer
}

// NewBytesCarrier returns a carrier preloaded with data, which may be
// nil for an outgoing carrier.
func NewBytesCarrier(data []byte) *BytesCarrier {
	c := &BytesCarrier{}
	c.buf.Write(data)
	return c
}

func (c *BytesCarrier) Read(p []byte) (int, error) { return c.buf.Read(p) }

// ReadAll consumes and returns the remaining bytes.
func (c *BytesCarrier) ReadAll() ([]byte, error) { return c.buf.Next(c.buf.Len()), nil }

func (c *BytesCarrier) Write(p []byte) (int, error) { return c.buf.Write(p) }

// Bytes returns the bytes written so far without consuming them.
func (c *BytesCarrier) Bytes() []byte { return c.buf.Bytes() }

// Len returns the number of unread bytes.
func (c *BytesCarrier) Len() int { return c.buf.Len() }
