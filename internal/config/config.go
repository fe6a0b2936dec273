package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/13132klain/Cyber-Mtandao/internal/mpesa"
	postgres "github.com/13132klain/Cyber-Mtandao/internal/storage/postgres"
)

// Config aggregates runtime configuration grouped by concern.
type Config struct {
	ServiceName string
	HTTP        HTTPConfig
	Mpesa       mpesa.Config
	Kafka       KafkaConfig
	Database    postgres.DatabaseConfig
	Email       EmailConfig
}

type HTTPConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers       []string
	OrdersTopic   string
	PaymentsTopic string
	EmailGroup    string
}

type EmailConfig struct {
	DemoRecipient string
}

// Load reads configuration from environment variables, applying sensible
// defaults. Daraja credentials have no defaults; missing ones fail fast
// here rather than on the first payment.
func Load() (Config, error) {
	cfg := Config{
		ServiceName: getEnv("SERVICE_NAME", "cyber-mtandao"),
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_LISTEN_ADDR", ":3000"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:9092")),
			OrdersTopic:   getEnv("KAFKA_ORDERS_TOPIC", "orders.v1"),
			PaymentsTopic: getEnv("KAFKA_PAYMENTS_TOPIC", "payments.v1"),
			EmailGroup:    getEnv("KAFKA_EMAIL_GROUP_ID", "email-workers"),
		},
		Email: EmailConfig{
			DemoRecipient: getEnv("DEMO_TO_EMAIL", "test@example.local"),
		},
	}

	timeoutStr := getEnv("MPESA_HTTP_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return Config{}, fmt.Errorf("parse MPESA_HTTP_TIMEOUT: %w", err)
	}

	cfg.Mpesa = mpesa.Config{
		Environment:    getEnv("MPESA_ENVIRONMENT", mpesa.EnvironmentSandbox),
		ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
		ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
		ShortCode:      getEnv("MPESA_SHORTCODE", "174379"),
		PassKey:        os.Getenv("MPESA_PASSKEY"),
		CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
		CallbackToken:  os.Getenv("MPESA_CALLBACK_TOKEN"),
		Timeout:        timeout,
	}
	for name, v := range map[string]string{
		"MPESA_CONSUMER_KEY":    cfg.Mpesa.ConsumerKey,
		"MPESA_CONSUMER_SECRET": cfg.Mpesa.ConsumerSecret,
		"MPESA_PASSKEY":         cfg.Mpesa.PassKey,
		"MPESA_CALLBACK_URL":    cfg.Mpesa.CallbackURL,
	} {
		if v == "" {
			return Config{}, fmt.Errorf("missing required environment variable %s", name)
		}
	}

	portStr := getEnv("ORDER_DB_PORT", "5432")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Config{}, fmt.Errorf("parse ORDER_DB_PORT: %w", err)
	}

	cfg.Database = postgres.DatabaseConfig{
		Host:     getEnv("ORDER_DB_HOST", "localhost"),
		Port:     port,
		Database: getEnv("ORDER_DB_NAME", "cybermtandao"),
		User:     getEnv("ORDER_DB_USER", "cybermtandaoadmin"),
		Password: getEnv("ORDER_DB_PASSWORD", ""),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
