// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"

	"github.com/relabs-tech/motionsense/internal/imu"
)

// phase is one stretch of synthetic motion. baseZ places the vertical
// acceleration in a distinct predictor band.
type phase struct {
	baseZ     float64
	amplitude float64
	freq      float64 // Hz
}

var phases = []phase{
	{baseZ: 1, amplitude: 0.3, freq: 0.2},  // sitting
	{baseZ: 3, amplitude: 0.4, freq: 0.3},  // standing
	{baseZ: 5.5, amplitude: 1, freq: 1.8},  // walking
	{baseZ: 9.8, amplitude: 2.5, freq: 2.8}, // running
}

type synthetic struct {
	start     time.Time
	now       func() time.Time
	phaseSpan time.Duration
}

// NewSynthetic returns a Source of smooth sine-wave samples that cycles
// through sitting, standing, walking and running every phaseSpan.
func NewSynthetic(phaseSpan time.Duration, now func() time.Time) Source {
	if now == nil {
		now = time.Now
	}
	if phaseSpan <= 0 {
		phaseSpan = 10 * time.Second
	}
	return &synthetic{start: now(), now: now, phaseSpan: phaseSpan}
}

func (m *synthetic) Next() (imu.Sample, error) {
	at := m.now()
	elapsed := at.Sub(m.start)
	p := phases[int(elapsed/m.phaseSpan)%len(phases)]
	t := elapsed.Seconds()
	w := 2 * math.Pi * p.freq

	return imu.Sample{
		Acceleration: imu.Vector3{
			X: 0.5 * p.amplitude * math.Sin(w*t),
			Y: 0.3 * p.amplitude * math.Cos(w*t*0.7),
			Z: p.baseZ + 0.4*p.amplitude*math.Sin(w*t),
		},
		Gyroscope: imu.Vector3{
			X: 20 * p.amplitude * math.Sin(w*t),
			Y: 15 * p.amplitude * math.Cos(w*t*0.7),
			Z: math.Mod(t*30, 360) / 36,
		},
		Timestamp: at.UnixMilli(),
	}, nil
}
