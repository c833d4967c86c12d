// Package statussock exposes the control loop's latest measurement over a
// local Unix domain socket. It is read-only by design: the only request it
// understands is "status", and there is no verb that changes daemon
// behaviour, so it is not a remote management surface.
package statussock

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/lucacastoro/gridfan/internal/logging"
	"github.com/lucacastoro/gridfan/internal/supervisor"
)

// Request is the only message the server accepts.
type Request struct {
	Cmd string `json:"cmd"`
}

// Response carries either a populated Status or an error message.
type Response struct {
	Status string  `json:"status"`
	Msg    string  `json:"msg,omitempty"`
	Data   *Status `json:"data,omitempty"`
}

// Status is the JSON-shaped view of a supervisor.Snapshot sent to clients.
type Status struct {
	TemperatureCelsius float64   `json:"temperature_celsius"`
	AppliedDutyPercent int       `json:"applied_duty_percent"`
	FanRPM             []int     `json:"fan_rpm"`
	SampledAt          time.Time `json:"sampled_at"`
}

func fromSnapshot(snap supervisor.Snapshot) Status {
	rpm := make([]int, len(snap.FanRPM))
	copy(rpm, snap.FanRPM[:])
	return Status{
		TemperatureCelsius: snap.TemperatureCelsius,
		AppliedDutyPercent: snap.AppliedDutyPercent,
		FanRPM:             rpm,
		SampledAt:          snap.SampledAt,
	}
}

// Server accepts connections on a Unix socket and answers status queries.
type Server struct {
	path   string
	log    logging.Logger
	source func() supervisor.Snapshot
}

// New constructs a Server bound to path. source is consulted for every
// incoming request; it is normally (*supervisor.Supervisor).Snapshot.
func New(path string, log logging.Logger, source func() supervisor.Snapshot) *Server {
	return &Server{path: path, log: log, source: source}
}

// Run listens on the configured socket path until ctx is cancelled. It
// removes any stale socket file left over from a previous run before
// binding, and removes its own socket file on the way out.
func (s *Server) Run(ctx context.Context) error {
	os.Remove(s.path)

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("statussock: listening on %s: %w", s.path, err)
	}
	defer os.Remove(s.path)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.log.Info("status socket listening", "path", s.path)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accepting status connection failed", "error", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	var req Request
	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	if err := decoder.Decode(&req); err != nil {
		encoder.Encode(Response{Status: "error", Msg: "invalid JSON"})
		return
	}

	if req.Cmd != "status" {
		encoder.Encode(Response{Status: "error", Msg: "unknown command"})
		return
	}

	status := fromSnapshot(s.source())
	encoder.Encode(Response{Status: "ok", Data: &status})
}

// Query dials the status socket at path and returns the current status.
func Query(path string, timeout time.Duration) (Status, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return Status{}, fmt.Errorf("statussock: dialing %s: %w", path, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	if err := json.NewEncoder(conn).Encode(Request{Cmd: "status"}); err != nil {
		return Status{}, fmt.Errorf("statussock: sending request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Status{}, fmt.Errorf("statussock: reading response: %w", err)
	}
	if resp.Status != "ok" || resp.Data == nil {
		return Status{}, fmt.Errorf("statussock: server error: %s", resp.Msg)
	}
	return *resp.Data, nil
}
