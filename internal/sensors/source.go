// Package sensors provides the sample sources behind the producer binaries.
package sensors

import (
	"github.com/relabs-tech/motionsense/internal/imu"
)

// Source yields one sample per call. Sources are not safe for concurrent use.
type Source interface {
	Next() (imu.Sample, error)
}
