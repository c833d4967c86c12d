package grid

import (
	"errors"
	"fmt"
	"time"

	"github.com/lucacastoro/gridfan/internal/serialio"
)

// minPacing is the minimum wall-clock gap the driver enforces between the
// end of one on-wire exchange and the start of the next.
const minPacing = 50 * time.Millisecond

const (
	handshakeTimeout  = 5 * time.Second
	handshakePing     = 100 * time.Millisecond
	handshakeRetry    = 200 * time.Millisecond
	defaultReplyWait  = 500 * time.Millisecond
	defaultIOTimeout  = 5 * time.Second
	defaultDevicePath = "/dev/GridPlus0"
	defaultBaudRate   = 4800
)

// ErrWire tags every recoverable failure the driver can produce: short
// writes, read errors or timeouts, and protocol violations. The supervisor
// treats every error satisfying errors.Is(err, ErrWire) as one strike
// against its consecutive-failure counter.
var ErrWire = errors.New("grid: wire error")

// port is the subset of *serialio.Transport the driver depends on; it
// exists so tests can substitute a mock transport.
type port interface {
	Write(data []byte) bool
	Read(buf []byte, timeout time.Duration) serialio.ReadOutcome
	ReadExact(buf []byte, count int, timeout time.Duration) serialio.ReadOutcome
	LastAccessAt() time.Time
	Closed() bool
	Close() error
}

// Controller owns one serial transport and the six fan handles that borrow
// from it. A closed controller (failed open or handshake) reports Closed()
// true and Fans() empty.
type Controller struct {
	transport port
	fans      [FanCount]Fan
	closed    bool
}

// Open opens the Grid+ at path, performs the handshake, and returns a ready
// controller. On any failure it returns a non-nil error and a controller
// that reports Closed() true.
func Open(path string) (*Controller, error) {
	if path == "" {
		path = defaultDevicePath
	}

	tr, err := serialio.Open(path, serialio.New8N1(defaultBaudRate))
	if err != nil {
		return &Controller{closed: true}, fmt.Errorf("grid: %w", err)
	}

	c := newController(tr)
	if err := c.handshake(handshakeTimeout); err != nil {
		tr.Close()
		c.closed = true
		return c, err
	}
	tr.SetDefaultTimeout(defaultIOTimeout)
	return c, nil
}

// OpenNoThrow is equivalent to Open but never returns an error: failures are
// only observable via Closed().
func OpenNoThrow(path string) *Controller {
	c, _ := Open(path)
	return c
}

func newController(tr port) *Controller {
	c := &Controller{transport: tr}
	for i := 0; i < FanCount; i++ {
		c.fans[i] = Fan{transport: tr, index: MinFanIndex + i}
	}
	return c
}

// Closed reports whether the controller has no usable transport.
func (c *Controller) Closed() bool {
	return c == nil || c.closed || c.transport == nil || c.transport.Closed()
}

// Fans returns the controller's fan handles in index order 1..6. It is
// empty when the controller is closed.
func (c *Controller) Fans() []*Fan {
	if c.Closed() {
		return nil
	}
	out := make([]*Fan, FanCount)
	for i := range c.fans {
		out[i] = &c.fans[i]
	}
	return out
}

// Close releases the underlying transport.
func (c *Controller) Close() error {
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}

// handshake repeatedly pings the controller until it replies with pingOK or
// the deadline elapses.
func (c *Controller) handshake(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1)

	for {
		pace(c.transport)

		if !c.transport.Write([]byte{opPing}) {
			return fmt.Errorf("%w: handshake write failed", ErrWire)
		}

		outcome := c.transport.Read(buf, handshakePing)
		if outcome.OK() && buf[0] == pingOK {
			return nil
		}

		now := time.Now()
		if !now.Before(deadline) {
			return fmt.Errorf("grid: handshake timed out after %s", timeout)
		}

		sleepUntil := now.Add(handshakeRetry)
		if sleepUntil.After(deadline) {
			sleepUntil = deadline
		}
		time.Sleep(time.Until(sleepUntil))

		if !time.Now().Before(deadline) {
			return fmt.Errorf("grid: handshake timed out after %s", timeout)
		}
	}
}

// pace blocks until minPacing has elapsed since the transport's last
// access. It runs outside of the transport's critical section so
// the sleep never holds the port's mutex.
func pace(p port) {
	wait := time.Until(p.LastAccessAt().Add(minPacing))
	if wait > 0 {
		time.Sleep(wait)
	}
}

// get and setPercent take the transport directly rather than hanging off
// *Controller, since Fan needs to issue the same wire exchanges without
// owning a Controller of its own.

func get(transport port, op byte, fanIndex int, timeout time.Duration) (uint16, error) {
	if fanIndex < MinFanIndex || fanIndex > MaxFanIndex {
		return 0, fmt.Errorf("%w: fan index %d out of range", ErrWire, fanIndex)
	}

	pace(transport)
	if !transport.Write(getRequest(op, fanIndex)) {
		return 0, fmt.Errorf("%w: I/O error writing request", ErrWire)
	}

	pace(transport)
	reply := make([]byte, 5)
	outcome := transport.ReadExact(reply, 5, timeout)
	if !outcome.OK() {
		return 0, fmt.Errorf("%w: I/O error reading reply: %v", ErrWire, outcome)
	}

	value, ok := parseGetReply(reply)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected data in reply %v", ErrWire, reply)
	}
	return value, nil
}

func setPercent(transport port, fanIndex int, pct int) error {
	if fanIndex < MinFanIndex || fanIndex > MaxFanIndex {
		return fmt.Errorf("%w: fan index %d out of range", ErrWire, fanIndex)
	}
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: invalid percent value %d", ErrWire, pct)
	}

	pace(transport)
	if !transport.Write(setVoltageRequest(fanIndex, pct)) {
		return fmt.Errorf("%w: I/O error writing request", ErrWire)
	}

	pace(transport)
	ack := make([]byte, 1)
	outcome := transport.ReadExact(ack, 1, defaultReplyWait)
	if !outcome.OK() {
		return fmt.Errorf("%w: I/O error reading ack: %v", ErrWire, outcome)
	}
	if ack[0] != ackOK {
		return fmt.Errorf("%w: invalid data, ack byte was 0x%02X", ErrWire, ack[0])
	}
	return nil
}
