package transfer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinearRoundTripAgainstReferenceEnvelope(t *testing.T) {
	// A full 0..100 duty envelope, distinct from DefaultLinear's 10% floor,
	// so the endpoints map cleanly.
	f := Function{Algorithm: Linear, MinTemp: 25, MaxTemp: 70, MinDuty: 0, MaxDuty: 100}

	cases := []struct {
		temp float64
		duty int
	}{
		{25, 0},
		{47.5, 50},
		{70, 100},
		{10, 0},
		{90, 100},
	}

	for _, c := range cases {
		require.Equal(t, c.duty, f.Apply(c.temp), "Apply(%v)", c.temp)
	}
}

func TestDefaultLinearFloorsAtMinDuty(t *testing.T) {
	f := DefaultLinear()

	require.Equal(t, 10, f.Apply(25), "DefaultLinear floors duty at 10%% at MinTemp")
	require.Equal(t, 100, f.Apply(70))
	require.Equal(t, 10, f.Apply(10))
	require.Equal(t, 100, f.Apply(90))
}

func TestLinearTruncatesTowardZero(t *testing.T) {
	f := Function{Algorithm: Linear, MinTemp: 0, MaxTemp: 100, MinDuty: 0, MaxDuty: 100}

	// raw = 49.999..., must truncate to 49, not round to 50.
	require.Equal(t, 49, f.Apply(49.999))
}

func TestLinearClampsToRange(t *testing.T) {
	f := Function{Algorithm: Linear, MinTemp: 0, MaxTemp: 100, MinDuty: 20, MaxDuty: 80}

	require.Equal(t, 20, f.Apply(-50))
	require.Equal(t, 80, f.Apply(1000))
}

func TestSoftplusAndLogisticStayWithinEnvelope(t *testing.T) {
	for _, algo := range []Algorithm{Softplus, Logistic} {
		f := Function{Algorithm: algo, MinTemp: 25, MaxTemp: 70, MinDuty: 10, MaxDuty: 100}

		require.GreaterOrEqual(t, f.Apply(25), 10)
		require.LessOrEqual(t, f.Apply(70), 100)
		require.Equal(t, 100, f.Apply(70), "algorithm %s must hit MaxDuty at MaxTemp", algo)

		// monotonic: higher temp never yields lower duty
		prev := f.Apply(20)
		for temp := 25.0; temp <= 75; temp += 5 {
			cur := f.Apply(temp)
			require.GreaterOrEqual(t, cur, prev, "algorithm %s not monotonic at %v", algo, temp)
			prev = cur
		}
	}
}
