// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/motionsense/internal/config"
	"github.com/relabs-tech/motionsense/internal/sensors"
)

// pumpSamples publishes one sample from src per interval until ctx is done
// or src is exhausted. Read and publish failures skip the tick.
func pumpSamples(ctx context.Context, src sensors.Source, interval time.Duration, publish publishFunc, log *slog.Logger) (int, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			return sent, nil
		case <-ticker.C:
		}

		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			log.Info("sample source exhausted", "sent", sent)
			return sent, nil
		}
		if err != nil {
			log.Warn("error reading sample", "error", err)
			continue
		}
		payload, err := encodeSample(s)
		if err != nil {
			log.Warn("json marshal error", "error", err)
			continue
		}
		if err := publish(payload); err != nil {
			log.Warn("MQTT publish error", "error", err)
			continue
		}
		sent++
	}
}

// RunReplayProducer publishes samples from REPLAY_FILE, or synthetic
// samples when no file is configured.
func RunReplayProducer() error {
	cfg := config.Get()
	logger := config.InitLogger(cfg.LogLevel, cfg.LogFormat).With("component", "replay")

	var src sensors.Source
	if cfg.ReplayFile != "" {
		rp, err := sensors.LoadReplay(cfg.ReplayFile, cfg.ReplayLoop, logger)
		if err != nil {
			return err
		}
		logger.Info("replaying samples", "file", cfg.ReplayFile, "count", rp.Len(), "loop", cfg.ReplayLoop)
		src = rp
	} else {
		logger.Info("no REPLAY_FILE set, using synthetic samples")
		src = sensors.NewSynthetic(10*time.Second, nil)
	}

	return runProducer(cfg, cfg.MQTTClientIDReplay, src, time.Duration(cfg.ReplayInterval)*time.Millisecond, logger)
}

// RunIMUProducer publishes samples read from the local MPU9250.
func RunIMUProducer() error {
	cfg := config.Get()
	logger := config.InitLogger(cfg.LogLevel, cfg.LogFormat).With("component", "imu_producer")

	var src sensors.Source
	if cfg.IMUUseMock {
		logger.Info("using synthetic IMU source")
		src = sensors.NewSynthetic(10*time.Second, nil)
	} else {
		dev, err := sensors.NewMPU9250(cfg.IMUSPIDevice, cfg.IMUCSPin, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize IMU: %w", err)
		}
		logger.Info("using MPU9250", "spi", cfg.IMUSPIDevice, "cs", cfg.IMUCSPin)
		src = dev
	}

	return runProducer(cfg, cfg.MQTTClientIDIMU, src, time.Duration(cfg.IMUSampleInterval)*time.Millisecond, logger)
}

func runProducer(cfg *config.Config, clientID string, src sensors.Source, interval time.Duration, logger *slog.Logger) error {
	client, err := connectPublisher(cfg, clientID)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	logger.Info("connected to MQTT, starting publish loop", "broker", cfg.MQTTBroker, "topic", cfg.TopicSensor, "interval", interval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sent, err := pumpSamples(ctx, src, interval, topicPublisher(client, cfg.TopicSensor, cfg.MQTTQoS), logger)
	logger.Info("producer stopped", "sent", sent)
	return err
}
