// gridfanctl is the read-only companion CLI to gridfand: it reports the
// daemon's last published measurement and helps locate the controller's
// serial device. It has no verb that changes daemon behaviour.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/pflag"
	"go.bug.st/serial"

	"github.com/lucacastoro/gridfan/internal/statussock"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gridfanctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printHelp()
		return nil
	}

	switch os.Args[1] {
	case "status":
		return runStatus(os.Args[2:])
	case "list-serial":
		return runListSerial()
	case "help", "-h", "--help":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

func printHelp() {
	fmt.Println("gridfanctl")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  gridfanctl <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  status              Show the daemon's last measurement")
	fmt.Println("    --socket          Path to the status socket (default: /run/gridfand.sock)")
	fmt.Println("    --json            Output as JSON")
	fmt.Println("  list-serial         List candidate serial devices")
	fmt.Println("  help                Show this help")
}

func runStatus(args []string) error {
	var socketPath string
	var jsonOutput bool

	flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
	flags.StringVar(&socketPath, "socket", "/run/gridfand.sock", "path to the status socket")
	flags.BoolVar(&jsonOutput, "json", false, "output as JSON")
	if err := flags.Parse(args); err != nil {
		return err
	}

	status, err := statussock.Query(socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("querying %s: %w", socketPath, err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Printf("temperature: %.1f C\n", status.TemperatureCelsius)
	fmt.Printf("duty:        %d%%\n", status.AppliedDutyPercent)
	for i, rpm := range status.FanRPM {
		fmt.Printf("fan %d:       %d rpm\n", i+1, rpm)
	}
	fmt.Printf("sampled at:  %s\n", status.SampledAt.Format(time.RFC3339))
	return nil
}

func runListSerial() error {
	devices := findSerialDevices()
	if len(devices) == 0 {
		fmt.Println("no serial devices found")
		return nil
	}
	for _, device := range devices {
		fmt.Println(device)
	}
	return nil
}

// findSerialDevices globs the platform-conventional tty paths and keeps
// only the ones that can actually be opened at the controller's 4800 baud.
func findSerialDevices() []string {
	var searchPaths []string
	switch runtime.GOOS {
	case "darwin":
		searchPaths = []string{"/dev/tty.usb*"}
	case "linux":
		searchPaths = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}
	case "freebsd":
		searchPaths = []string{"/dev/cuaU*"}
	default:
		searchPaths = []string{"/dev/tty*", "/dev/cu*"}
	}

	var devices []string
	for _, pattern := range searchPaths {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, match := range matches {
			port, err := serial.Open(match, &serial.Mode{BaudRate: 4800})
			if err != nil {
				continue
			}
			port.Close()
			devices = append(devices, match)
		}
	}
	return devices
}
