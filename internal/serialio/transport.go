package serialio

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Infinite requests a blocking read with no deadline. A zero timeout defers
// to the transport's configured default timeout instead.
const Infinite time.Duration = -1

// Status tags the outcome of a Read/ReadExact call.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusTimeout
)

// ReadOutcome is the tagged result of a read: either the count of bytes
// actually read, or an error/timeout indication. A timeout is distinguished
// from an error so probing callers (the handshake, in particular) can treat
// it as expected.
type ReadOutcome struct {
	Status Status
	Count  int
	Err    error
}

// OK reports whether the read completed successfully.
func (r ReadOutcome) OK() bool { return r.Status == StatusOK }

// Timeout reports whether the read outcome was a timeout rather than an
// error.
func (r ReadOutcome) Timeout() bool { return r.Status == StatusTimeout }

func (r ReadOutcome) String() string {
	switch r.Status {
	case StatusOK:
		return fmt.Sprintf("ok(%d)", r.Count)
	case StatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("error(%v)", r.Err)
	}
}

func success(n int) ReadOutcome     { return ReadOutcome{Status: StatusOK, Count: n} }
func timeout() ReadOutcome          { return ReadOutcome{Status: StatusTimeout} }
func failure(err error) ReadOutcome { return ReadOutcome{Status: StatusError, Err: err} }

// Transport owns one OS-level serial handle plus the bookkeeping the Grid+
// driver needs to pace the wire: the instant the last read or write
// returned, whether or not it succeeded. A zero-value Transport is already "closed" and rejects every
// operation, matching a failed Open.
type Transport struct {
	mu             sync.Mutex
	port           serial.Port
	lastReadAt     time.Time
	lastWriteAt    time.Time
	defaultTimeout time.Duration
}

// Open acquires the character device at path with the given framing. On any
// failure the returned Transport is closed (Closed() reports true) rather
// than nil, so callers can use it uniformly with OpenNoThrow-style code.
func Open(path string, config Config) (*Transport, error) {
	port, err := serial.Open(path, config.mode())
	if err != nil {
		return &Transport{}, fmt.Errorf("serialio: open %s: %w", path, err)
	}
	return &Transport{port: port}, nil
}

// Closed reports whether the transport holds no usable handle.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port == nil
}

// Write writes the full buffer or fails; a short write is treated as a
// failure since the wire protocol has no notion of partial commands.
func (t *Transport) Write(data []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return false
	}

	n, err := t.port.Write(data)
	t.lastWriteAt = time.Now()
	return err == nil && n == len(data)
}

// Read performs a single read into buf, waiting up to timeout for data to
// arrive. Passing Infinite blocks until at least one byte is available.
func (t *Transport) Read(buf []byte, timeout time.Duration) ReadOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readLocked(buf, timeout)
}

// SetDefaultTimeout sets the timeout applied to reads invoked with a zero
// duration. With no default configured, such reads block indefinitely.
func (t *Transport) SetDefaultTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultTimeout = d
}

func (t *Transport) readLocked(buf []byte, to time.Duration) ReadOutcome {
	if t.port == nil {
		return failure(errClosed)
	}

	if to == 0 {
		to = t.defaultTimeout
		if to == 0 {
			to = Infinite
		}
	}

	if to == Infinite {
		if err := t.port.SetReadTimeout(serial.NoTimeout); err != nil {
			return failure(err)
		}
	} else if to < 0 {
		return timeout()
	} else {
		if err := t.port.SetReadTimeout(to); err != nil {
			return failure(err)
		}
	}

	n, err := t.port.Read(buf)
	t.lastReadAt = time.Now()

	if err != nil {
		return failure(err)
	}
	if n == 0 && to != Infinite {
		// go.bug.st/serial reports a VTIME-style read timeout as a
		// zero-byte, nil-error result rather than a distinct error.
		return timeout()
	}
	return success(n)
}

// ReadExact loops internal reads until count bytes have been delivered, or
// an error/timeout interrupts it. The supplied timeout bounds each inner
// read, not the call as a whole.
func (t *Transport) ReadExact(buf []byte, count int, to time.Duration) ReadOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return failure(errClosed)
	}
	if count > len(buf) {
		return failure(fmt.Errorf("serialio: buffer too small for %d bytes", count))
	}

	read := 0
	for read < count {
		outcome := t.readLocked(buf[read:count], to)
		if !outcome.OK() {
			return outcome
		}
		read += outcome.Count
	}
	return success(read)
}

// LastAccessAt returns the later of the last read and write instants
// (failed attempts included). The Grid+ driver paces the wire from this value; it is computed
// outside of any write/read call so the pacing sleep never holds the
// transport's mutex.
func (t *Transport) LastAccessAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastReadAt.After(t.lastWriteAt) {
		return t.lastReadAt
	}
	return t.lastWriteAt
}

// Close releases the underlying handle. It is safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

var errClosed = fmt.Errorf("serialio: transport is closed")
