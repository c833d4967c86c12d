package grid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandshakeSucceedsOnFirstPingOK(t *testing.T) {
	mock := &mockPort{reads: []mockRead{{data: []byte{pingOK}}}}
	c := newController(mock)

	require.NoError(t, c.handshake(time.Second))
	require.False(t, c.Closed())
	require.Len(t, mock.writes, 1)
	require.Equal(t, []byte{opPing}, mock.writes[0])
}

func TestHandshakeNeverSucceedsTerminatesWithinDeadline(t *testing.T) {
	mock := &mockPort{} // every read times out, forever
	c := newController(mock)

	start := time.Now()
	err := c.handshake(200 * time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	require.LessOrEqual(t, elapsed, 400*time.Millisecond, "handshake must terminate near its deadline")
}

func TestSetPercentCommandShape(t *testing.T) {
	mock := &mockPort{
		reads: []mockRead{
			{data: []byte{pingOK}},
			{data: []byte{ackOK}},
		},
	}
	c := newController(mock)
	require.NoError(t, c.handshake(time.Second))

	require.NoError(t, c.fans[0].SetPercent(100))
	require.Len(t, mock.writes, 2)

	setReq := mock.writes[1]
	require.Equal(t, []byte{0x44, 0x01, 0xC0, 0x00, 0x00, 0x0C, 0x00}, setReq)
}

func TestSetPercentRejectsOutOfRangePercent(t *testing.T) {
	mock := &mockPort{reads: []mockRead{{data: []byte{pingOK}}}}
	c := newController(mock)
	require.NoError(t, c.handshake(time.Second))

	err := c.fans[0].SetPercent(101)
	require.ErrorIs(t, err, ErrWire)
}

func TestGetSpeedParsesBigEndianRPM(t *testing.T) {
	mock := &mockPort{
		reads: []mockRead{
			{data: []byte{pingOK}},
			{data: []byte{0xC0, 0x00, 0x00, 0x01, 0x2C}},
		},
	}
	c := newController(mock)
	require.NoError(t, c.handshake(time.Second))

	speed, err := c.fans[2].Speed(0)
	require.NoError(t, err)
	require.Equal(t, 0x012C, speed)
}

func TestPacingEnforcesMinimumGap(t *testing.T) {
	mock := &mockPort{
		reads: []mockRead{
			{data: []byte{pingOK}},
			{data: []byte{ackOK}},
			{data: []byte{ackOK}},
		},
	}
	c := newController(mock)
	require.NoError(t, c.handshake(time.Second))

	postHandshake := len(mock.accessLog)

	require.NoError(t, c.fans[0].SetPercent(50))
	require.NoError(t, c.fans[0].SetPercent(60))

	// Each SetPercent performs pace->write->pace->read, so every access
	// from here on is paced against the one before it.
	log := mock.accessLog[postHandshake:]
	require.GreaterOrEqual(t, len(log), 4)
	const slack = 5 * time.Millisecond
	for i := 1; i < len(log); i++ {
		gap := log[i].Sub(log[i-1])
		require.GreaterOrEqual(t, gap+slack, minPacing,
			"access %d and %d are only %s apart", i-1, i, gap)
	}
}

func TestEmptyFanRejectsOperations(t *testing.T) {
	var f Fan
	require.Equal(t, 0, f.Index())

	_, err := f.Speed(0)
	require.Error(t, err)

	err = f.SetPercent(50)
	require.Error(t, err)
}

func TestClosedControllerHasEmptyFans(t *testing.T) {
	c := &Controller{closed: true}
	require.True(t, c.Closed())
	require.Empty(t, c.Fans())
}
