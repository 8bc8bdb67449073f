// Package orientation estimates device tilt from accelerometer readings.
package orientation

import (
	"math"

	"github.com/relabs-tech/motionsense/internal/imu"
)

// Pose is the tilt shown next to live samples, in degrees. Yaw needs a
// magnetometer and is always 0.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// FromAccel computes roll and pitch from accelerometer data in any unit:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func FromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  rollRad * 180.0 / math.Pi,
		Pitch: pitchRad * 180.0 / math.Pi,
	}
}

// FromSample computes the tilt of s.
func FromSample(s imu.Sample) Pose {
	return FromAccel(s.Acceleration.X, s.Acceleration.Y, s.Acceleration.Z)
}
