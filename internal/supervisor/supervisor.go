// Package supervisor drives the sample -> decide -> actuate control loop:
// the only place that ties the thermal source, the transfer function, and
// the fan controller driver together into a long-running service.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lucacastoro/gridfan/internal/grid"
	"github.com/lucacastoro/gridfan/internal/logging"
	"github.com/lucacastoro/gridfan/internal/thermal"
	"github.com/lucacastoro/gridfan/internal/transfer"
)

const (
	tickInterval   = 1 * time.Second
	recoveryWait   = 5 * time.Second
	hysteresisBand = 5
	slewDownLimit  = 10
	maxStrikes     = 5

	// neverApplied is the sentinel lastAppliedDuty value meaning "no duty
	// has ever been sent to the fans".
	neverApplied = -1
)

// Fan is the subset of *grid.Fan the control loop depends on.
type Fan interface {
	Index() int
	Speed(timeout time.Duration) (int, error)
	SetPercent(pct int) error
}

// Controller is the subset of *grid.Controller the control loop depends on.
// Depending on this interface rather than the concrete type lets tests
// drive the loop without a real or mocked serial device underneath.
type Controller interface {
	Fans() []Fan
	Closed() bool
	Close() error
}

// Opener constructs a fresh, ready (or closed, on failure) fan controller.
// It exists so the supervisor's recovery path and tests can both drive
// construction without depending on grid.Open directly.
type Opener func() (Controller, error)

// gridController adapts *grid.Controller to the Controller interface: the
// one place that knows about the concrete driver package.
type gridController struct {
	inner *grid.Controller
}

// WrapController adapts a concrete *grid.Controller for use by Supervisor.
func WrapController(c *grid.Controller) Controller {
	return gridController{inner: c}
}

func (g gridController) Fans() []Fan {
	fans := g.inner.Fans()
	out := make([]Fan, len(fans))
	for i, f := range fans {
		out[i] = f
	}
	return out
}

func (g gridController) Closed() bool { return g.inner.Closed() }
func (g gridController) Close() error { return g.inner.Close() }

// OpenGrid returns an Opener that opens a fresh Grid+ controller at path on
// each call, suitable for both initial construction and the recovery path.
func OpenGrid(path string) Opener {
	return func() (Controller, error) {
		c, err := grid.Open(path)
		return WrapController(c), err
	}
}

// Snapshot is the latest published measurement: what the status socket and
// the SNMP exporter read, refreshed once per tick.
type Snapshot struct {
	TemperatureCelsius float64
	AppliedDutyPercent int
	FanRPM             [grid.FanCount]int
	SampledAt          time.Time
}

// Supervisor owns the control loop's state. lastAppliedDuty and
// consecutiveErrors are touched only by Run's goroutine; the verbose toggle
// is an atomic written by the signal goroutine in main and read here, and
// stop is signalled by cancelling the context passed to Run.
type Supervisor struct {
	log        logging.Logger
	source     thermal.Source
	sensorName string
	transfer   transfer.Function
	open       Opener

	controller Controller

	lastAppliedDuty   int
	consecutiveErrors int
	verbose           bool

	verboseToggle atomic.Bool

	snapMu   sync.RWMutex
	snapshot Snapshot

	// tickInterval and recoveryWait default to the production constants;
	// tests shrink them to keep the control loop's timing logic fast to
	// exercise without changing its shape.
	tickInterval time.Duration
	recoveryWait time.Duration
}

// New constructs a Supervisor around an already-open controller.
func New(log logging.Logger, source thermal.Source, sensorName string, fn transfer.Function, controller Controller, open Opener) *Supervisor {
	return &Supervisor{
		log:             log,
		source:          source,
		sensorName:      sensorName,
		transfer:        fn,
		open:            open,
		controller:      controller,
		lastAppliedDuty: neverApplied,
		tickInterval:    tickInterval,
		recoveryWait:    recoveryWait,
	}
}

// ToggleVerbose requests that verbose logging be flipped on the next tick.
// Safe to call from a signal handler.
func (s *Supervisor) ToggleVerbose() {
	s.verboseToggle.Store(true)
}

// Snapshot returns the most recently published measurement.
func (s *Supervisor) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapshot
}

// Run drives the control loop until ctx is cancelled or the strike
// threshold is reached. It returns the signal-termination distinction the
// caller needs for the terminal log line: ok is true for a clean stop
// (ctx cancellation), false when the loop gave up (strike threshold reached
// or the controller could not be re-initialized).
func (s *Supervisor) Run(ctx context.Context) (ok bool) {
	for {
		if ctx.Err() != nil {
			return true
		}

		if err := s.tick(ctx); err != nil {
			if !s.handleFailure(ctx, err) {
				return ctx.Err() != nil
			}
			continue
		}

		s.consecutiveErrors = 0

		if !s.sleep(ctx, s.tickInterval) {
			return true
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) error {
	if s.verboseToggle.CompareAndSwap(true, false) {
		s.verbose = !s.verbose
		s.log.Info("verbose mode toggled", "verbose", s.verbose)
	}

	sensor, err := thermal.Find(ctx, s.source, s.sensorName)
	if err != nil {
		return err
	}
	temp := sensor.Celsius

	target := s.transfer.Apply(temp)

	if s.verbose {
		s.log.Info("sampled", "temperature_celsius", temp, "target_duty_percent", target)
	}

	changed := false
	if target > s.lastAppliedDuty {
		s.lastAppliedDuty = target
		changed = true
	} else if s.lastAppliedDuty-target > hysteresisBand {
		s.lastAppliedDuty = max(target, s.lastAppliedDuty-slewDownLimit)
		changed = true
	}

	if changed {
		if err := s.actuate(s.lastAppliedDuty); err != nil {
			return err
		}
	}

	// RPM is only read when this tick actuated: a hold tick (duty
	// unchanged within the hysteresis band) must generate no wire traffic
	// at all, so it republishes the previous RPM reading alongside the
	// fresh temperature and duty.
	s.publishSnapshot(temp, changed)
	return nil
}

func (s *Supervisor) actuate(duty int) error {
	for _, fan := range s.controller.Fans() {
		if err := fan.SetPercent(duty); err != nil {
			return err
		}
		if s.verbose {
			s.log.Info("applied duty", "fan", fan.Index(), "duty_percent", duty)
		}
	}
	return nil
}

func (s *Supervisor) publishSnapshot(temp float64, refreshRPM bool) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	snap := s.snapshot
	snap.TemperatureCelsius = temp
	snap.AppliedDutyPercent = s.lastAppliedDuty
	snap.SampledAt = time.Now()

	if refreshRPM {
		for i, fan := range s.controller.Fans() {
			if i >= len(snap.FanRPM) {
				break
			}
			rpm, err := fan.Speed(0)
			if err != nil {
				s.log.Warn("reading fan speed failed", "fan", fan.Index(), "error", err)
				continue
			}
			snap.FanRPM[i] = rpm
		}
	}

	s.snapshot = snap
}

// handleFailure implements the strike/backoff/reinit policy. It returns
// false when the loop should give up.
func (s *Supervisor) handleFailure(ctx context.Context, err error) bool {
	s.consecutiveErrors++

	if s.consecutiveErrors >= maxStrikes {
		s.log.Error("too many consecutive errors, giving up", "error", err, "strikes", s.consecutiveErrors)
		return false
	}

	s.log.Warn("tick failed", "error", err, "strikes", s.consecutiveErrors)

	if !s.sleep(ctx, s.recoveryWait) {
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	if s.controller != nil {
		s.controller.Close()
	}

	fresh, openErr := s.open()
	if openErr != nil || fresh == nil || fresh.Closed() {
		s.log.Error("could not re-initialize the controller", "error", openErr)
		return false
	}
	s.controller = fresh

	// The reopened device's fan state is unknown (a failed actuation may
	// have raised lastAppliedDuty without the fans ever receiving it), so
	// the next tick must re-actuate as if from a cold start.
	s.lastAppliedDuty = neverApplied
	return true
}

// sleep waits for d, interruptible by ctx cancellation. It returns false if
// the wait was interrupted by cancellation rather than elapsing.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// ErrSensorAbsent is the error cmd/gridfand wraps a failed startup lookup
// of the configured sensor in (thermal.Find failing, whether the sensor is
// missing or enumeration itself failed).
var ErrSensorAbsent = errors.New("supervisor: named sensor not present")
