package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// APIConfig holds the read-only HTTP API settings.
type APIConfig struct {
	Enabled      bool          `envconfig:"API_ENABLED"       default:"true"`
	Addr         string        `envconfig:"API_ADDR"          default:":8081"`
	ReadTimeout  time.Duration `envconfig:"API_READ_TIMEOUT"  default:"10s"`
	WriteTimeout time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout  time.Duration `envconfig:"API_IDLE_TIMEOUT"  default:"60s"`
}

// StoreConfig selects and configures the message store backend.
type StoreConfig struct {
	Backend       string        `envconfig:"STORE_BACKEND"  default:"memory"`
	TTL           time.Duration `envconfig:"STORE_TTL"      default:"24h"`
	EvictInterval time.Duration `envconfig:"STORE_EVICT_INTERVAL" default:"1m"`
	DatabaseURL   string        `envconfig:"DATABASE_URL"`
	RedisAddr     string        `envconfig:"REDIS_ADDR"     default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB"       default:"0"`
}

// ReassemblyConfig controls multipart staleness handling.
type ReassemblyConfig struct {
	StaleTimeout time.Duration `envconfig:"REASSEMBLY_STALE_TIMEOUT" default:"5m"`
	ReapInterval time.Duration `envconfig:"REASSEMBLY_REAP_INTERVAL" default:"30s"`
}

// Config holds the overall application configuration.
type Config struct {
	LogLevel        string `envconfig:"LOG_LEVEL"        default:"info"`
	ConnectionsFile string `envconfig:"CONNECTIONS_FILE" default:"connections.yaml"`
	Store           StoreConfig
	API             APIConfig
	Reassembly      ReassemblyConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	log.Println("Loading configuration from environment variables...")

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, skipping: %v", err)
	} else {
		log.Println(".env loaded")
	}

	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Configuration loaded successfully (store: %s, connections: %s)", cfg.Store.Backend, cfg.ConnectionsFile)
	return &cfg, nil
}
