// Package progress provides the shared atomic byte counter the transfer
// engine hands to callers inside a Started event. Workers add to it with
// relaxed semantics as bytes are read or written; a UI samples it on its own
// cadence instead of receiving a per-byte event stream.
package progress

import "sync/atomic"

// Counter is a monotonically non-decreasing approximation of bytes
// transferred so far, safe for concurrent updates from many chunk workers.
type Counter struct {
	n atomic.Uint64
}

// Add adds delta bytes to the counter. Safe to call from any goroutine.
func (c *Counter) Add(delta int64) {
	if delta <= 0 {
		return
	}
	c.n.Add(uint64(delta))
}

// Load returns the current approximate byte count.
func (c *Counter) Load() uint64 {
	return c.n.Load()
}

// CountingReader wraps an io.Reader (or io.ReadCloser) so every successfully
// read byte is added to a shared Counter. Used by upload workers to turn a
// bounded chunk reader into a progress-reporting one without per-byte events.
type CountingReader struct {
	R       Reader
	Counter *Counter
}

// Reader is the minimal io.Reader surface CountingReader needs; kept local
// so this package does not have to import io just for the one method.
type Reader interface {
	Read(p []byte) (int, error)
}

func (cr *CountingReader) Read(p []byte) (int, error) {
	n, err := cr.R.Read(p)
	if n > 0 {
		cr.Counter.Add(int64(n))
	}
	return n, err
}
