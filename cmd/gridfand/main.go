// gridfand drives an NZXT Grid+ fan controller from CPU temperature. It
// samples a named thermal sensor once a second, maps the reading to a duty
// percent through a configurable transfer function, and applies it to
// every fan channel, with hysteresis and a slew limit on the way down.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/lucacastoro/gridfan/internal/config"
	"github.com/lucacastoro/gridfan/internal/grid"
	"github.com/lucacastoro/gridfan/internal/logging"
	"github.com/lucacastoro/gridfan/internal/snmpexport"
	"github.com/lucacastoro/gridfan/internal/statussock"
	"github.com/lucacastoro/gridfan/internal/supervisor"
	"github.com/lucacastoro/gridfan/internal/thermal"
	"github.com/lucacastoro/gridfan/internal/transfer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gridfand: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	flags := pflag.NewFlagSet("gridfand", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "./gridfand.yml", "path to the daemon configuration file")
	flags.BoolP("help", "h", false, "show help")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if help, _ := flags.GetBool("help"); help {
		flags.PrintDefaults()
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log, err := logging.New(logging.Sink(cfg.Logger.Sink))
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	controller, err := grid.Open(cfg.Device.Path)
	if err != nil {
		log.Error("cannot access the fan controller", "error", err)
		return fmt.Errorf("opening fan controller: %w", err)
	}

	source := thermal.GopsutilSource{}
	if _, err := thermal.Find(context.Background(), source, cfg.Sensor.Name); err != nil {
		log.Error("cannot find the configured temperature sensor", "error", err)
		return fmt.Errorf("%w: %s", supervisor.ErrSensorAbsent, cfg.Sensor.Name)
	}

	fn, err := transferFunction(cfg.Transfer)
	if err != nil {
		return err
	}

	log.Info("started", "device", cfg.Device.Path, "sensor", cfg.Sensor.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := supervisor.New(log, source, cfg.Sensor.Name, fn, supervisor.WrapController(controller), supervisor.OpenGrid(cfg.Device.Path))

	var wg sync.WaitGroup

	if cfg.StatusSocket.Enabled {
		srv := statussock.New(cfg.StatusSocket.Path, log, sup.Snapshot)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				log.Warn("status socket stopped", "error", err)
			}
		}()
	}

	if cfg.SNMP.Enabled {
		exporter := snmpexport.New(snmpConfig(cfg.SNMP), log, sup.Snapshot)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := exporter.Run(ctx); err != nil {
				log.Warn("snmp exporter stopped", "error", err)
			}
		}()
	}

	signalName := watchSignals(cancel, sup)

	if ok := sup.Run(ctx); !ok {
		log.Error("control loop gave up")
	}

	cancel()
	wg.Wait()
	controller.Close()

	if name := signalName(); name != "" {
		log.Info("terminated", "signal", name)
	} else {
		log.Info("terminated")
	}

	// Giving up after repeated wire errors is a runtime condition, not a
	// startup failure, so it still exits 0 — only fatal startup errors
	// above return non-nil here.
	return nil
}

// watchSignals installs the daemon's signal handling: SIGINT/SIGQUIT/SIGTERM
// cancel the run context, SIGUSR1 toggles the supervisor's verbose mode. It
// returns a function reporting the name of the signal that triggered
// shutdown, or "" if shutdown was not signal-driven.
func watchSignals(cancel context.CancelFunc, sup *supervisor.Supervisor) func() string {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGUSR1)

	var mu sync.Mutex
	var received string

	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGUSR1 {
				sup.ToggleVerbose()
				continue
			}
			mu.Lock()
			received = sig.String()
			mu.Unlock()
			cancel()
			return
		}
	}()

	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return received
	}
}

func transferFunction(cfg config.TransferConfig) (transfer.Function, error) {
	var algo transfer.Algorithm
	switch cfg.Algorithm {
	case "linear", "":
		algo = transfer.Linear
	case "softplus":
		algo = transfer.Softplus
	case "logistic":
		algo = transfer.Logistic
	default:
		return transfer.Function{}, fmt.Errorf("unknown transfer algorithm %q", cfg.Algorithm)
	}
	return transfer.Function{
		Algorithm: algo,
		MinTemp:   cfg.MinTemp,
		MaxTemp:   cfg.MaxTemp,
		MinDuty:   cfg.MinDuty,
		MaxDuty:   cfg.MaxDuty,
		Steepness: cfg.Steepness,
	}, nil
}

func snmpConfig(cfg config.SNMPConfig) snmpexport.Config {
	return snmpexport.Config{
		Enabled:     cfg.Enabled,
		Host:        cfg.Host,
		Port:        cfg.Port,
		Community:   cfg.Community,
		Interval:    cfg.Interval,
		TempOIDBase: cfg.TempOIDBase,
		FanOIDBase:  cfg.FanOIDBase,
	}
}
