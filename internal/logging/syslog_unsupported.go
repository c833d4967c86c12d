//go:build windows

package logging

import "fmt"

// NewSyslog is unavailable on platforms with no system log facility.
func NewSyslog() (Logger, error) {
	return nil, fmt.Errorf("logging: syslog sink is not supported on this platform")
}
