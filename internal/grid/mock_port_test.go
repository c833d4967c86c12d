package grid

import (
	"sync"
	"time"

	"github.com/lucacastoro/gridfan/internal/serialio"
)

// mockPort is a scriptable stand-in for *serialio.Transport used to drive
// the driver's handshake, pacing, and command-shape behaviour without a real
// serial device attached.
type mockPort struct {
	mu sync.Mutex

	writes     [][]byte
	lastAccess time.Time
	closed     bool

	// accessLog records the wall-clock instant of every write and read,
	// in order, so pacing tests can inspect the gaps between them.
	accessLog []time.Time

	// reads is consumed in order by Read/ReadExact; when empty, every
	// further read times out.
	reads []mockRead
}

type mockRead struct {
	data []byte
	err  error
}

func (m *mockPort) Write(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), data...)
	m.writes = append(m.writes, cp)
	m.lastAccess = time.Now()
	m.accessLog = append(m.accessLog, m.lastAccess)
	return true
}

func (m *mockPort) nextRead() (mockRead, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reads) == 0 {
		return mockRead{}, false
	}
	r := m.reads[0]
	m.reads = m.reads[1:]
	m.lastAccess = time.Now()
	m.accessLog = append(m.accessLog, m.lastAccess)
	return r, true
}

func (m *mockPort) Read(buf []byte, _ time.Duration) serialio.ReadOutcome {
	r, ok := m.nextRead()
	if !ok {
		return serialio.ReadOutcome{Status: serialio.StatusTimeout}
	}
	if r.err != nil {
		return serialio.ReadOutcome{Status: serialio.StatusError, Err: r.err}
	}
	n := copy(buf, r.data)
	return serialio.ReadOutcome{Status: serialio.StatusOK, Count: n}
}

func (m *mockPort) ReadExact(buf []byte, count int, timeout time.Duration) serialio.ReadOutcome {
	r, ok := m.nextRead()
	if !ok {
		return serialio.ReadOutcome{Status: serialio.StatusTimeout}
	}
	if r.err != nil {
		return serialio.ReadOutcome{Status: serialio.StatusError, Err: r.err}
	}
	n := copy(buf, r.data)
	if n != count {
		return serialio.ReadOutcome{Status: serialio.StatusError}
	}
	return serialio.ReadOutcome{Status: serialio.StatusOK, Count: n}
}

func (m *mockPort) LastAccessAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAccess
}

func (m *mockPort) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
