package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SensorSCD4x = "scd4x"
	SensorSim   = "sim"

	BroadcastBLE  = "ble"
	BroadcastMQTT = "mqtt"
	BroadcastNone = "none"
)

type Config struct {
	AppEnv          string
	LogLevel        slog.Level
	DeviceStationID string

	SensorDriver string
	I2CBus       string
	SCD4xAddress uint16

	SamplingInterval time.Duration
	SettleDelay      time.Duration
	TickInterval     time.Duration

	Broadcast    string
	BLEAdapter   string
	BLELocalName string

	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string

	// HTTPAddr serves /healthz. Empty disables the listener.
	HTTPAddr string
}

func LoadFromEnv() (Config, error) {
	appEnv := envOr("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	sensorDriver := strings.ToLower(envOr("SENSOR_DRIVER", SensorSCD4x))
	switch sensorDriver {
	case SensorSCD4x, SensorSim:
	default:
		return Config{}, fmt.Errorf("invalid SENSOR_DRIVER %q (allowed: scd4x, sim)", sensorDriver)
	}

	scd4xAddressStr := envOr("SCD4X_ADDRESS", "0x62")
	scd4xAddress, err := strconv.ParseUint(scd4xAddressStr, 0, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SCD4X_ADDRESS %q: %w", scd4xAddressStr, err)
	}

	samplingInterval, err := positiveDuration("SAMPLING_INTERVAL", "5s")
	if err != nil {
		return Config{}, err
	}
	settleDelay, err := positiveDuration("SETTLE_DELAY", "500ms")
	if err != nil {
		return Config{}, err
	}

	tickIntervalStr := envOr("TICK_INTERVAL", settleDelay.String())
	tickInterval, err := time.ParseDuration(tickIntervalStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid TICK_INTERVAL %q: %w", tickIntervalStr, err)
	}
	if tickInterval < settleDelay {
		return Config{}, fmt.Errorf("TICK_INTERVAL %v must not be shorter than SETTLE_DELAY %v", tickInterval, settleDelay)
	}
	if tickInterval > samplingInterval {
		return Config{}, fmt.Errorf("TICK_INTERVAL %v must not exceed SAMPLING_INTERVAL %v", tickInterval, samplingInterval)
	}

	broadcast := strings.ToLower(envOr("BROADCAST", BroadcastBLE))
	switch broadcast {
	case BroadcastBLE, BroadcastMQTT, BroadcastNone:
	default:
		return Config{}, fmt.Errorf("invalid BROADCAST %q (allowed: ble, mqtt, none)", broadcast)
	}

	mqttPortStr := envOr("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("MQTT_PORT out of range: %d", mqttPort)
	}

	return Config{
		AppEnv:           appEnv,
		LogLevel:         level,
		DeviceStationID:  envOr("DEVICE_STATION_ID", "airsense"),
		SensorDriver:     sensorDriver,
		I2CBus:           strings.TrimSpace(os.Getenv("I2C_BUS")),
		SCD4xAddress:     uint16(scd4xAddress),
		SamplingInterval: samplingInterval,
		SettleDelay:      settleDelay,
		TickInterval:     tickInterval,
		Broadcast:        broadcast,
		BLEAdapter:       envOr("BLE_ADAPTER", "hci0"),
		BLELocalName:     envOr("BLE_LOCAL_NAME", "AirSense"),
		MQTTBroker:       envOr("MQTT_BROKER", "localhost"),
		MQTTPort:         mqttPort,
		MQTTClientID:     envOr("MQTT_CLIENT_ID", "airsense-node"),
		MQTTTopicPrefix:  strings.Trim(envOr("MQTT_TOPIC_PREFIX", "airsense"), "/"),
		HTTPAddr:         strings.TrimSpace(os.Getenv("HTTP_ADDR")),
	}, nil
}

// envOr returns the trimmed value of key, or def when it is unset or blank.
func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func positiveDuration(key, def string) (time.Duration, error) {
	s := envOr(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
