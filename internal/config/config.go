// Package config loads the KEY=VALUE configuration file shared by every
// motionsense binary.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTUsername        string
	MQTTPassword        string
	MQTTQoS             byte
	MQTTClientIDWeb     string
	MQTTClientIDReplay  string
	MQTTClientIDSerial  string
	MQTTClientIDIMU     string
	MQTTClientIDConsole string
	MQTTClientIDDisplay string

	// Topics
	TopicSensor string

	// Stream and prediction
	WindowSize                 int
	PredictMinSamples          int
	PredictOverrideProbability float64

	// Web Server
	WebServerPort int
	GinMode       string   // debug, release or test
	CORSOrigins   []string // empty allows any origin

	// Persistence
	SinkDriver  string // postgres, sqlite or csv
	SinkDSN     string
	CatalogFile string // YAML activity catalog; empty uses the defaults

	// Auth
	AuthDSN       string // sqlite users database when SINK_DRIVER=csv
	JWTSecret     string
	JWTTTLMinutes int

	// Replay producer
	ReplayFile     string // JSON array of samples; empty uses the synthetic source
	ReplayInterval int    // milliseconds
	ReplayLoop     bool

	// Serial bridge
	SerialPort     string
	SerialBaudRate int

	// IMU producer
	IMUSPIDevice      string
	IMUCSPin          string
	IMUSampleInterval int // milliseconds
	IMUUseMock        bool

	// Display
	DisplayUpdateInterval int // milliseconds

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // text or json
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional key set. MQTT_BROKER has
// no default.
func Default() *Config {
	return &Config{
		MQTTQoS:                    1,
		MQTTClientIDWeb:            "motionsense-web",
		MQTTClientIDReplay:         "motionsense-replay",
		MQTTClientIDSerial:         "motionsense-serial",
		MQTTClientIDIMU:            "motionsense-imu",
		MQTTClientIDConsole:        "motionsense-console",
		MQTTClientIDDisplay:        "motionsense-display",
		TopicSensor:                "sensor/nodejs",
		WindowSize:                 20,
		PredictMinSamples:          6,
		PredictOverrideProbability: 0.1,
		WebServerPort:              8080,
		GinMode:                    "release",
		SinkDriver:                 "sqlite",
		SinkDSN:                    "motionsense.db",
		AuthDSN:                    "motionsense-users.db",
		JWTTTLMinutes:              60,
		ReplayInterval:             1000,
		ReplayLoop:                 true,
		SerialBaudRate:             115200,
		IMUSPIDevice:               "/dev/spidev0.0",
		IMUCSPin:                   "8",
		IMUSampleInterval:          50,
		DisplayUpdateInterval:      500,
		LogLevel:                   "info",
		LogFormat:                  "text",
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines over the defaults. Blank lines and lines
// starting with # are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}
		if err := cfg.setValue(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_USERNAME":
		c.MQTTUsername = value
	case "MQTT_PASSWORD":
		c.MQTTPassword = value
	case "MQTT_QOS":
		var qos int
		qos, err = intInRange(key, value, 0, 2)
		c.MQTTQoS = byte(qos)
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_REPLAY":
		c.MQTTClientIDReplay = value
	case "MQTT_CLIENT_ID_SERIAL":
		c.MQTTClientIDSerial = value
	case "MQTT_CLIENT_ID_IMU":
		c.MQTTClientIDIMU = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_SENSOR":
		c.TopicSensor = value

	// Stream and prediction
	case "WINDOW_SIZE":
		c.WindowSize, err = intInRange(key, value, 1, 10000)
	case "PREDICT_MIN_SAMPLES":
		c.PredictMinSamples, err = intInRange(key, value, 1, 10000)
	case "PREDICT_OVERRIDE_PROBABILITY":
		prob, perr := strconv.ParseFloat(value, 64)
		switch {
		case perr != nil:
			err = fmt.Errorf("invalid %s %q: %w", key, value, perr)
		case prob < 0 || prob > 1:
			err = fmt.Errorf("%s must be 0-1, got %v", key, prob)
		}
		c.PredictOverrideProbability = prob

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = intInRange(key, value, 1, 65535)
	case "GIN_MODE":
		switch value {
		case "debug", "release", "test":
			c.GinMode = value
		default:
			err = fmt.Errorf("GIN_MODE must be debug, release or test, got %q", value)
		}
	case "CORS_ORIGINS":
		c.CORSOrigins = nil
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.CORSOrigins = append(c.CORSOrigins, origin)
			}
		}

	// Persistence
	case "SINK_DRIVER":
		switch value {
		case "postgres", "sqlite", "csv":
			c.SinkDriver = value
		default:
			err = fmt.Errorf("SINK_DRIVER must be postgres, sqlite or csv, got %q", value)
		}
	case "SINK_DSN":
		c.SinkDSN = value
	case "CATALOG_FILE":
		c.CatalogFile = value

	// Auth
	case "AUTH_DSN":
		c.AuthDSN = value
	case "JWT_SECRET":
		c.JWTSecret = value
	case "JWT_TTL_MINUTES":
		c.JWTTTLMinutes, err = intInRange(key, value, 1, 60*24*30)

	// Replay producer
	case "REPLAY_FILE":
		c.ReplayFile = value
	case "REPLAY_INTERVAL":
		c.ReplayInterval, err = intInRange(key, value, 1, 3600000)
	case "REPLAY_LOOP":
		c.ReplayLoop, err = boolValue(key, value)

	// Serial bridge
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = intInRange(key, value, 1, 4000000)

	// IMU producer
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = intInRange(key, value, 1, 60000)
	case "IMU_USE_MOCK":
		c.IMUUseMock, err = boolValue(key, value)

	// Display
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = intInRange(key, value, 1, 60000)

	// Logging
	case "LOG_LEVEL":
		if _, lerr := ParseLevel(value); lerr != nil {
			err = lerr
		}
		c.LogLevel = value
	case "LOG_FORMAT":
		switch value {
		case "text", "json":
			c.LogFormat = value
		default:
			err = fmt.Errorf("LOG_FORMAT must be text or json, got %q", value)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return err
}

func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicSensor == "" {
		return fmt.Errorf("TOPIC_SENSOR must not be empty")
	}
	if c.SinkDSN == "" {
		return fmt.Errorf("SINK_DSN is required for SINK_DRIVER=%s", c.SinkDriver)
	}
	return nil
}

func intInRange(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

func boolValue(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

// InitGlobal loads the global configuration from file. Only the first
// call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
