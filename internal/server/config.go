// Package server provides configuration helpers that define runtime defaults
// and validation for the chat relay service.
package server

import (
	"sync"

	"github.com/kelseyhightower/envconfig"
)

// MongoConfig locates the durable message store. An empty URI disables
// persistence entirely; the relay then runs with in-memory history only.
type MongoConfig struct {
	URI        string `envconfig:"MONGO_URI"`
	Database   string `envconfig:"MONGO_DATABASE" default:"chatrelay"`
	Collection string `envconfig:"MONGO_COLLECTION" default:"messages"`
}

// Config holds the server configuration settings including transport limits
// and the durable store location.
type Config struct {
	Port           string   `envconfig:"SERVER_PORT" default:":8080"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	MaxMessageSize int64    `envconfig:"MAX_MESSAGE_SIZE" default:"512"`
	MaxHistory     int      `envconfig:"MAX_HISTORY" default:"100"`
	Mongo          MongoConfig
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port:           ":8080",
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: 512,
		MaxHistory:     100,
		Mongo: MongoConfig{
			Database:   "chatrelay",
			Collection: "messages",
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 512
	}

	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 100
	}

	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "chatrelay"
	}

	if cfg.Mongo.Collection == "" {
		cfg.Mongo.Collection = "messages"
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := Config{
		Port:           cfg.Port,
		AllowedOrigins: append([]string(nil), cfg.AllowedOrigins...),
		MaxMessageSize: cfg.MaxMessageSize,
		MaxHistory:     cfg.MaxHistory,
		Mongo:          cfg.Mongo,
	}
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset variables fall back to the struct tag defaults.
func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
