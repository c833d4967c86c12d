// Package snmpexport pushes the control loop's latest measurement out to an
// SNMP collector on a fixed interval. It is write-only: an SNMP SET against
// a remote community, never a listener, so it does not constitute a remote
// management surface for the daemon itself.
package snmpexport

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/lucacastoro/gridfan/internal/logging"
	"github.com/lucacastoro/gridfan/internal/supervisor"
)

// Config describes the SNMP collector to push to and the cadence to push
// at. Exporting is skipped entirely when Enabled is false.
type Config struct {
	Enabled     bool
	Host        string
	Port        uint16
	Community   string
	Interval    time.Duration
	TempOIDBase string
	FanOIDBase  string
}

const connectTimeout = 2 * time.Second

// Exporter owns the SNMP client and the source of snapshots to push.
type Exporter struct {
	cfg    Config
	log    logging.Logger
	client *gosnmp.GoSNMP
	source func() supervisor.Snapshot
}

// New constructs an Exporter. source is polled once per interval for the
// measurement to publish; it is normally (*supervisor.Supervisor).Snapshot.
func New(cfg Config, log logging.Logger, source func() supervisor.Snapshot) *Exporter {
	return &Exporter{cfg: cfg, log: log, source: source}
}

// Run connects to the collector and pushes one update per Config.Interval
// until ctx is cancelled. It returns nil on a disabled configuration or a
// clean shutdown; a connection failure at startup is returned immediately
// so the caller can decide whether it is fatal.
func (e *Exporter) Run(ctx context.Context) error {
	if !e.cfg.Enabled {
		return nil
	}

	e.client = &gosnmp.GoSNMP{
		Target:    e.cfg.Host,
		Port:      e.cfg.Port,
		Community: e.cfg.Community,
		Version:   gosnmp.Version2c,
		Timeout:   connectTimeout,
	}
	if err := e.client.Connect(); err != nil {
		return fmt.Errorf("snmpexport: connecting to %s:%d: %w", e.cfg.Host, e.cfg.Port, err)
	}
	defer e.client.Conn.Close()

	e.log.Info("snmp exporter connected", "host", e.cfg.Host, "port", e.cfg.Port)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.push(); err != nil {
				e.log.Warn("snmp push failed", "error", err)
			}
		}
	}
}

func (e *Exporter) push() error {
	pdus := buildPDUs(e.cfg, e.source())
	if _, err := e.client.Set(pdus); err != nil {
		return fmt.Errorf("snmpexport: sending update: %w", err)
	}
	return nil
}

// buildPDUs translates one measurement snapshot into the PDU set sent in a
// single SNMP SET: one octet-string temperature reading, one integer duty
// percent, and one integer RPM reading per fan.
func buildPDUs(cfg Config, snap supervisor.Snapshot) []gosnmp.SnmpPDU {
	pdus := []gosnmp.SnmpPDU{
		{
			Name:  fmt.Sprintf("%s.temperature", cfg.TempOIDBase),
			Type:  gosnmp.OctetString,
			Value: fmt.Sprintf("%.1f", snap.TemperatureCelsius),
		},
		{
			Name:  fmt.Sprintf("%s.duty", cfg.FanOIDBase),
			Type:  gosnmp.Integer,
			Value: snap.AppliedDutyPercent,
		},
	}
	for i, rpm := range snap.FanRPM {
		pdus = append(pdus, gosnmp.SnmpPDU{
			Name:  fmt.Sprintf("%s.%d.rpm", cfg.FanOIDBase, i+1),
			Type:  gosnmp.Integer,
			Value: rpm,
		})
	}
	return pdus
}
