package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/motionsense/internal/config"
	"github.com/relabs-tech/motionsense/internal/imu"
	"github.com/relabs-tech/motionsense/internal/orientation"
	"github.com/relabs-tech/motionsense/internal/predict"
	"github.com/relabs-tech/motionsense/internal/stream"
)

// formatConsoleLine renders one sample with its tilt and, when the window
// is long enough, the predicted activity.
func formatConsoleLine(s imu.Sample, p orientation.Pose, pred predict.Prediction, havePred bool) string {
	line := fmt.Sprintf(
		"[IMU] t=%d ax=%7.3f ay=%7.3f az=%7.3f  gx=%8.3f gy=%8.3f gz=%8.3f  ROLL=%6.2f PITCH=%6.2f",
		s.Timestamp,
		s.Acceleration.X, s.Acceleration.Y, s.Acceleration.Z,
		s.Gyroscope.X, s.Gyroscope.Y, s.Gyroscope.Z,
		p.Roll, p.Pitch,
	)
	if havePred {
		line += fmt.Sprintf("  [PRED] %s %d%%", pred.Label, pred.Confidence)
	}
	return line
}

// RunConsoleMQTT prints every valid sample on the sensor topic.
func RunConsoleMQTT() error {
	cfg := config.Get()
	logger := config.InitLogger(cfg.LogLevel, cfg.LogFormat)

	session := stream.NewSession(nil,
		stream.WithLogger(logger),
		stream.WithWindowSize(cfg.WindowSize),
	)
	if err := session.Configure(streamConfig(cfg, cfg.MQTTClientIDConsole)); err != nil {
		return err
	}
	predictor := predict.New(
		predict.WithMinSamples(cfg.PredictMinSamples),
		predict.WithOverrideProbability(cfg.PredictOverrideProbability),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := session.Connect(ctx, func(ts imu.TaggedSample) {
		pred, ok := predictor.Predict(imu.Samples(session.Window()))
		fmt.Println(formatConsoleLine(ts.Sample, orientation.FromSample(ts.Sample), pred, ok))
		keepWindow(session, cfg.WindowSize)
	})
	if err != nil {
		return err
	}
	logger.Info("console: subscribed", "topic", cfg.TopicSensor)

	<-ctx.Done()
	logger.Info("console: shutting down")
	return session.Disconnect(context.Background())
}
