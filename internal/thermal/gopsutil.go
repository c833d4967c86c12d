package thermal

import (
	"context"

	"github.com/shirou/gopsutil/v3/host"
)

// GopsutilSource is the default Source, backed by gopsutil's hwmon-style
// sensor enumeration. It performs no caching: every call re-reads the
// underlying sensors, which is exactly what the control loop wants from a
// per-tick sample.
type GopsutilSource struct{}

// Sensors enumerates the host's temperature sensors.
func (GopsutilSource) Sensors(ctx context.Context) ([]Sensor, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Sensor, 0, len(temps))
	for _, t := range temps {
		out = append(out, Sensor{
			Name:     t.SensorKey,
			Celsius:  t.Temperature,
			Critical: t.Critical,
			High:     t.High,
		})
	}
	return out, nil
}
