package orientation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/motionsense/internal/imu"
)

func TestFromAccel(t *testing.T) {
	tests := []struct {
		name        string
		ax, ay, az  float64
		roll, pitch float64
	}{
		{name: "flat", az: 1, roll: 0, pitch: 0},
		{name: "rolled right", ay: 1, roll: 90, pitch: 0},
		{name: "nose down", ax: -1, roll: 0, pitch: 90},
		{name: "upside down", az: -1, roll: 180, pitch: 0},
		{name: "45 roll", ay: 1, az: 1, roll: 45, pitch: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromAccel(tt.ax, tt.ay, tt.az)
			require.InDelta(t, tt.roll, p.Roll, 1e-9)
			require.InDelta(t, tt.pitch, p.Pitch, 1e-9)
			require.Zero(t, p.Yaw)
		})
	}
}

func TestFromSampleIgnoresScale(t *testing.T) {
	s := imu.Sample{Acceleration: imu.Vector3{X: 1, Y: 0, Z: 9.8}}
	scaled := imu.Sample{Acceleration: imu.Vector3{X: 0.1, Y: 0, Z: 0.98}}
	require.InDelta(t, FromSample(s).Pitch, FromSample(scaled).Pitch, 1e-9)
	require.Less(t, FromSample(s).Pitch, 0.0)
}
