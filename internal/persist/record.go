package persist

import (
	"time"

	"github.com/relabs-tech/motionsense/internal/imu"
)

// Record is one row of the sensor_data sink.
type Record struct {
	ID          uint    `gorm:"primaryKey" json:"-"`
	Activity    *string `gorm:"column:activity;index" json:"activity"`
	SubActivity *string `gorm:"column:sub_activity" json:"sub_activity"`

	AccX float64 `gorm:"column:acc_x" json:"acc_x"`
	AccY float64 `gorm:"column:acc_y" json:"acc_y"`
	AccZ float64 `gorm:"column:acc_z" json:"acc_z"`

	GyroX float64 `gorm:"column:gyro_x" json:"gyro_x"`
	GyroY float64 `gorm:"column:gyro_y" json:"gyro_y"`
	GyroZ float64 `gorm:"column:gyro_z" json:"gyro_z"`

	// Timestamp is when the batch was saved, in ms since epoch. The capture
	// time of the sample is not stored.
	Timestamp int64 `gorm:"column:timestamp" json:"timestamp"`
}

// TableName pins the gorm table name.
func (Record) TableName() string { return "sensor_data" }

// Records maps tagged samples to sink rows stamped with savedAt.
func Records(samples []imu.TaggedSample, savedAt time.Time) []Record {
	ts := savedAt.UnixMilli()
	out := make([]Record, len(samples))
	for i, s := range samples {
		out[i] = Record{
			Activity:    s.Activity,
			SubActivity: s.SubActivity,
			AccX:        s.Acceleration.X,
			AccY:        s.Acceleration.Y,
			AccZ:        s.Acceleration.Z,
			GyroX:       s.Gyroscope.X,
			GyroY:       s.Gyroscope.Y,
			GyroZ:       s.Gyroscope.Z,
			Timestamp:   ts,
		}
	}
	return out
}
