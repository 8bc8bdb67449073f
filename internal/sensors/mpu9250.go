// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/motionsense/internal/imu"
)

// Full-scale sensitivities after Init: ±2g and ±250°/s.
const (
	accelLSBPerG   = 16384.0
	gyroLSBPerDegS = 131.0
)

type mpuSource struct {
	dev *mpu9250.MPU9250
	now func() time.Time
	log *slog.Logger
}

// NewMPU9250 initializes an MPU9250 on spiDev with chip select csPin and
// returns a Source of samples in g and °/s.
func NewMPU9250(spiDev, csPin string, log *slog.Logger) (Source, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "mpu9250", "spi", spiDev)

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", spiDev, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	if _, err := dev.SelfTest(); err != nil {
		log.Warn("self-test failed", "error", err)
	}
	if err := dev.Calibrate(); err != nil {
		log.Warn("calibration failed", "error", err)
	} else {
		log.Info("calibration complete")
	}

	return &mpuSource{dev: dev, now: time.Now, log: log}, nil
}

// Next reads accelerometer and gyroscope registers.
func (s *mpuSource) Next() (imu.Sample, error) {
	var raw [6]int16
	reads := [6]func() (int16, error){
		s.dev.GetAccelerationX, s.dev.GetAccelerationY, s.dev.GetAccelerationZ,
		s.dev.GetRotationX, s.dev.GetRotationY, s.dev.GetRotationZ,
	}
	for i, read := range reads {
		v, err := read()
		if err != nil {
			return imu.Sample{}, fmt.Errorf("IMU axis %d: %w", i, err)
		}
		raw[i] = v
	}
	return scaleRaw(raw, s.now()), nil
}

// scaleRaw converts register counts to g and °/s.
func scaleRaw(raw [6]int16, at time.Time) imu.Sample {
	return imu.Sample{
		Acceleration: imu.Vector3{
			X: float64(raw[0]) / accelLSBPerG,
			Y: float64(raw[1]) / accelLSBPerG,
			Z: float64(raw[2]) / accelLSBPerG,
		},
		Gyroscope: imu.Vector3{
			X: float64(raw[3]) / gyroLSBPerDegS,
			Y: float64(raw[4]) / gyroLSBPerDegS,
			Z: float64(raw[5]) / gyroLSBPerDegS,
		},
		Timestamp: at.UnixMilli(),
	}
}
