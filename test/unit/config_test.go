package unit

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatrelay/internal/server"
)

// TestNewConfigDefaults verifies the built-in defaults used when no
// environment configuration is present.
func TestNewConfigDefaults(t *testing.T) {
	cfg := server.NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, int64(512), cfg.MaxMessageSize)
	assert.Equal(t, 100, cfg.MaxHistory)
	assert.Empty(t, cfg.Mongo.URI)
	assert.Equal(t, "chatrelay", cfg.Mongo.Database)
	assert.Equal(t, "messages", cfg.Mongo.Collection)
}

// TestNewConfigFromEnv verifies that environment variables override the
// struct tag defaults, including comma-separated origin lists.
func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example.com,http://b.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("MAX_HISTORY", "25")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_DATABASE", "chat")
	t.Setenv("MONGO_COLLECTION", "log")

	cfg, err := server.NewConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Port)
	assert.Equal(t, []string{"http://a.example.com", "http://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, 25, cfg.MaxHistory)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "chat", cfg.Mongo.Database)
	assert.Equal(t, "log", cfg.Mongo.Collection)
}

// TestNewConfigFromEnvDefaults verifies the env loader falls back to the
// same defaults as NewConfig when nothing is set.
func TestNewConfigFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "ALLOWED_ORIGINS", "MAX_MESSAGE_SIZE", "MAX_HISTORY", "MONGO_URI"} {
		if prev, ok := os.LookupEnv(key); ok {
			// t.Setenv registers the restore; unset for the test's duration.
			t.Setenv(key, prev)
			_ = os.Unsetenv(key)
		}
	}

	cfg, err := server.NewConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, server.NewConfig().Port, cfg.Port)
	assert.Equal(t, server.NewConfig().MaxHistory, cfg.MaxHistory)
}

// TestSetConfigNilResets verifies that SetConfig(nil) restores defaults
// without panicking; integration tests rely on this for cleanup.
func TestSetConfigNilResets(t *testing.T) {
	cfg := server.NewConfig()
	cfg.Port = ":12345"
	server.SetConfig(cfg)
	server.SetConfig(nil)
}

// TestHubShutdownAfterConfigChanges verifies a hub created under a custom
// configuration still shuts down cleanly.
func TestHubShutdownAfterConfigChanges(t *testing.T) {
	cfg := server.NewConfig()
	cfg.MaxHistory = 5
	server.SetConfig(cfg)
	t.Cleanup(func() { server.SetConfig(nil) })

	hub := server.NewHub(server.NewHistoryBuffer(cfg.MaxHistory), nil)
	go hub.Run()

	require.NoError(t, hub.Shutdown(time.Second))
}
