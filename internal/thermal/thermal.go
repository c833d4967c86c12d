// Package thermal adapts a named-sensor directory to the single
// floating-point reading the control loop needs: the current temperature,
// in degrees Celsius, of one chosen sensor.
package thermal

import (
	"context"
	"fmt"
)

// Sensor is a single named temperature sensor.
type Sensor struct {
	Name     string
	Celsius  float64
	Critical float64
	High     float64
}

// Source enumerates the temperature sensors visible on the host.
type Source interface {
	Sensors(ctx context.Context) ([]Sensor, error)
}

// Find returns the sensor named exactly name, or an error if no such sensor
// is present. Matching is case-sensitive exact equality. cmd/gridfand treats
// absence at startup as fatal; inside the control loop the supervisor counts
// it as a failed tick.
func Find(ctx context.Context, src Source, name string) (Sensor, error) {
	sensors, err := src.Sensors(ctx)
	if err != nil {
		return Sensor{}, fmt.Errorf("thermal: enumerating sensors: %w", err)
	}
	for _, s := range sensors {
		if s.Name == name {
			return s, nil
		}
	}
	return Sensor{}, fmt.Errorf("thermal: sensor %q not found among %d sensors", name, len(sensors))
}
