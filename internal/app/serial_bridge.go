package app

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/motionsense/internal/config"
	"github.com/relabs-tech/motionsense/internal/imu"
)

type bridgeStats struct {
	Forwarded int
	Dropped   int
}

// bridgeLines reads newline-delimited JSON samples from r and republishes
// the valid ones in flat form.
func bridgeLines(ctx context.Context, r io.Reader, now func() time.Time, publish publishFunc, log *slog.Logger) (bridgeStats, error) {
	var st bridgeStats
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return st, nil
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		s, err := imu.Decode(line, now)
		if err != nil {
			st.Dropped++
			log.Warn("dropping serial line", "error", err)
			continue
		}
		payload, err := encodeSample(s)
		if err != nil {
			st.Dropped++
			continue
		}
		if err := publish(payload); err != nil {
			st.Dropped++
			log.Warn("MQTT publish error", "error", err)
			continue
		}
		st.Forwarded++
	}
	if err := scanner.Err(); err != nil {
		return st, fmt.Errorf("serial read: %w", err)
	}
	return st, nil
}

// RunSerialBridge forwards samples from the device's serial port to MQTT.
func RunSerialBridge() error {
	cfg := config.Get()
	logger := config.InitLogger(cfg.LogLevel, cfg.LogFormat).With("component", "serial_bridge")
	if cfg.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required for the serial bridge")
	}

	client, err := connectPublisher(cfg, cfg.MQTTClientIDSerial)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	port, err := serial.Open(serial.OpenOptions{
		PortName:        cfg.SerialPort,
		BaudRate:        uint(cfg.SerialBaudRate),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", cfg.SerialPort, err)
	}
	logger.Info("serial port opened", "port", cfg.SerialPort, "baud", cfg.SerialBaudRate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// Unblocks the scanner on shutdown.
		<-ctx.Done()
		port.Close()
	}()

	st, err := bridgeLines(ctx, port, time.Now, topicPublisher(client, cfg.TopicSensor, cfg.MQTTQoS), logger)
	logger.Info("serial bridge stopped", "forwarded", st.Forwarded, "dropped", st.Dropped)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
