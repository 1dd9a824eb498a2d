package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// StaticDir, when set, is mounted at / for the demo page and assets.
	// The fan-out core itself serves no markup.
	StaticDir string `env:"STATIC_DIR"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int `env:"MAX_CONNECTIONS_PER_IP" default:"100"`

	// ConnectionRate is the sustained new-connection rate per IP (per second),
	// ConnectionBurst the token-bucket burst size.
	ConnectionRate  float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst int     `env:"CONNECTION_BURST" default:"10"`

	// ClientSendBuffer bounds each connection's outbound queue. A client whose
	// queue stays full during a broadcast sweep is evicted.
	ClientSendBuffer int `env:"CLIENT_SEND_BUFFER" default:"16"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.MaxWebSocketConnections <= 0 {
		return fmt.Errorf("MAX_WEBSOCKET_CONNECTIONS must be positive, got %d", cfg.MaxWebSocketConnections)
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS_PER_IP must be positive, got %d", cfg.MaxConnectionsPerIP)
	}
	if cfg.ConnectionRate <= 0 {
		return fmt.Errorf("CONNECTION_RATE must be positive, got %v", cfg.ConnectionRate)
	}
	if cfg.ConnectionBurst <= 0 {
		return fmt.Errorf("CONNECTION_BURST must be positive, got %d", cfg.ConnectionBurst)
	}
	if cfg.ClientSendBuffer <= 0 {
		return fmt.Errorf("CLIENT_SEND_BUFFER must be positive, got %d", cfg.ClientSendBuffer)
	}

	if cfg.StaticDir != "" {
		info, err := os.Stat(cfg.StaticDir)
		if err != nil {
			return fmt.Errorf("STATIC_DIR %q is not accessible: %w", cfg.StaticDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("STATIC_DIR %q is not a directory", cfg.StaticDir)
		}
	}

	return nil
}
