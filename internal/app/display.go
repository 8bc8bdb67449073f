// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/motionsense/internal/config"
	"github.com/relabs-tech/motionsense/internal/imu"
	"github.com/relabs-tech/motionsense/internal/predict"
	"github.com/relabs-tech/motionsense/internal/stream"
)

// displayState is the latest data for the OLED.
type displayState struct {
	sample     imu.Sample
	haveSample bool
	pred       predict.Prediction
	havePred   bool
	conn       stream.ConnState
}

// displayData guards the state shared between the MQTT callback and the
// refresh loop.
type displayData struct {
	mu    sync.RWMutex
	state displayState
}

func (d *displayData) update(fn func(*displayState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.state)
}

func (d *displayData) snapshot() displayState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// renderStatus draws a 128x64 frame: accel, gyro and the predicted label.
func renderStatus(st displayState) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	line := func(y int, text string) {
		drawer.Dot = fixed.P(0, y)
		drawer.DrawString(text)
	}

	if !st.haveSample {
		line(26, "MotionSense")
		line(39, "Waiting... "+st.conn.String())
		return img
	}

	a, g := st.sample.Acceleration, st.sample.Gyroscope
	line(13, fmt.Sprintf("A%5.1f%5.1f%5.1f", a.X, a.Y, a.Z))
	line(26, fmt.Sprintf("G%5.0f%5.0f%5.0f", g.X, g.Y, g.Z))
	if st.havePred {
		line(45, fmt.Sprintf("%s %d%%", st.pred.Label, st.pred.Confidence))
	} else {
		line(45, "predicting...")
	}
	line(60, st.conn.String())
	return img
}

// RunDisplay shows the live stream on an SSD1306 OLED.
func RunDisplay() error {
	cfg := config.Get()
	logger := config.InitLogger(cfg.LogLevel, cfg.LogFormat).With("component", "display")

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()

	data := &displayData{}
	session := stream.NewSession(nil,
		stream.WithLogger(logger),
		stream.WithWindowSize(cfg.WindowSize),
	)
	if err := session.Configure(streamConfig(cfg, cfg.MQTTClientIDDisplay)); err != nil {
		return err
	}
	predictor := predict.New(
		predict.WithMinSamples(cfg.PredictMinSamples),
		predict.WithOverrideProbability(cfg.PredictOverrideProbability),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dev.Draw(dev.Bounds(), renderStatus(displayState{conn: session.State()}), image.Point{}); err != nil {
		logger.Warn("error showing splash", "error", err)
	}

	err = session.Connect(ctx, func(ts imu.TaggedSample) {
		pred, ok := predictor.Predict(imu.Samples(session.Window()))
		data.update(func(st *displayState) {
			st.sample, st.haveSample = ts.Sample, true
			st.pred, st.havePred = pred, ok
		})
		keepWindow(session, cfg.WindowSize)
	})
	if err != nil {
		return err
	}
	logger.Info("subscribed, starting update loop", "topic", cfg.TopicSensor)

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return session.Disconnect(context.Background())
		case <-ticker.C:
		}
		st := data.snapshot()
		st.conn = session.State()
		if err := dev.Draw(dev.Bounds(), renderStatus(st), image.Point{}); err != nil {
			logger.Warn("error updating display", "error", err)
		}
	}
}
