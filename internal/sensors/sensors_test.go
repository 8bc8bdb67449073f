package sensors

import (
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/motionsense/internal/imu"
)

func TestScaleRaw(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	s := scaleRaw([6]int16{0, -8192, 16384, 131, -262, 0}, at)
	require.Equal(t, imu.Vector3{X: 0, Y: -0.5, Z: 1}, s.Acceleration)
	require.Equal(t, imu.Vector3{X: 1, Y: -2, Z: 0}, s.Gyroscope)
	require.Equal(t, int64(1700000000123), s.Timestamp)
}

func TestSyntheticCyclesBands(t *testing.T) {
	start := time.UnixMilli(0)
	now := start
	src := NewSynthetic(time.Second, func() time.Time { return now })

	wantBands := []struct{ lo, hi float64 }{{0, 2}, {2, 4}, {4, 7}, {7, math.Inf(1)}, {0, 2}}
	for i, band := range wantBands {
		now = start.Add(time.Duration(i)*time.Second + 250*time.Millisecond)
		s, err := src.Next()
		require.NoError(t, err)
		z := math.Abs(s.Acceleration.Z)
		require.GreaterOrEqual(t, z, band.lo, "phase %d", i)
		require.Less(t, z, band.hi, "phase %d", i)
		require.Equal(t, now.UnixMilli(), s.Timestamp)
	}
}

const replayJSON = `[
	{"acc_x":1,"acc_y":2,"acc_z":3,"gyro_x":4,"gyro_y":5,"gyro_z":6,"timestamp":10},
	{"acc_x":1},
	{"acceleration":{"x":7,"y":8,"z":9},"gyroscope":{"x":0,"y":0,"z":1},"timestamp":20}
]`

func TestReplay(t *testing.T) {
	rp, err := ReadReplay(strings.NewReader(replayJSON), false, nil)
	require.NoError(t, err)
	require.Equal(t, 2, rp.Len(), "invalid entries are skipped")
	stamp := time.UnixMilli(99)
	rp.now = func() time.Time { return stamp }

	s, err := rp.Next()
	require.NoError(t, err)
	require.Equal(t, 3.0, s.Acceleration.Z)
	require.Equal(t, int64(99), s.Timestamp, "replayed samples are restamped")

	s, err = rp.Next()
	require.NoError(t, err)
	require.Equal(t, 7.0, s.Acceleration.X)

	_, err = rp.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReplayLoops(t *testing.T) {
	rp, err := ReadReplay(strings.NewReader(replayJSON), true, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := rp.Next()
		require.NoError(t, err)
	}
}

func TestReplayRejectsEmpty(t *testing.T) {
	_, err := ReadReplay(strings.NewReader(`[{"foo":1}]`), true, nil)
	require.Error(t, err)
	_, err = ReadReplay(strings.NewReader(`{`), true, nil)
	require.Error(t, err)
}
