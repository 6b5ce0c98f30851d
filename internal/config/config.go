package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/biedra-watchdog/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Watchdog tuning.
	PollInterval time.Duration
	QueryTimeout time.Duration
	Fallback     domain.Position

	// Device bridge and fix store.
	MQTTBroker   string
	MQTTClientID string
	DeviceID     string
	DatabasePath string
	FixRetention time.Duration

	// Optional Kafka position sink.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaPositionTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "1s")
	if err != nil {
		return nil, err
	}

	queryTimeout, err := parsePositiveDuration("QUERY_TIMEOUT", "2s")
	if err != nil {
		return nil, err
	}

	fixRetention, err := parsePositiveDuration("FIX_RETENTION", "720h")
	if err != nil {
		return nil, err
	}

	fallback, err := parseFallback()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		PollInterval: pollInterval,
		QueryTimeout: queryTimeout,
		Fallback:     fallback,

		MQTTBroker:   sharedcfg.EnvOrDefault("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID: os.Getenv("MQTT_CLIENT_ID"),
		DeviceID:     sharedcfg.EnvOrDefault("DEVICE_ID", "default"),
		DatabasePath: sharedcfg.EnvOrDefault("DATABASE_PATH", "data/fixes.db"),
		FixRetention: fixRetention,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaPositionTopic: sharedcfg.EnvOrDefault("KAFKA_POSITION_TOPIC", "device-positions"),
	}

	if cfg.MQTTBroker == "" {
		return nil, errors.New("MQTT_BROKER is required")
	}
	if cfg.DeviceID == "" {
		return nil, errors.New("DEVICE_ID is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaPositionTopic == "" {
		return nil, errors.New("KAFKA_POSITION_TOPIC is required")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parseFallback reads FALLBACK_LAT/FALLBACK_LNG, defaulting each to Warsaw.
func parseFallback() (domain.Position, error) {
	lat, err := parseCoordinate("FALLBACK_LAT", domain.Warsaw.Latitude)
	if err != nil {
		return domain.Position{}, err
	}
	lng, err := parseCoordinate("FALLBACK_LNG", domain.Warsaw.Longitude)
	if err != nil {
		return domain.Position{}, err
	}

	p := domain.NewPosition().Lat(lat).Lng(lng).Build()
	if err := p.Validate(); err != nil {
		return domain.Position{}, fmt.Errorf("invalid FALLBACK_LAT/FALLBACK_LNG: %w", err)
	}
	return p, nil
}

func parseCoordinate(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
