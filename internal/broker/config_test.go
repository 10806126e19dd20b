package broker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "sharegate.sync", cfg.QueueName)
	assert.Equal(t, 3, cfg.MaxReapplyAttempts)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SHAREGATE_DB", "/tmp/broker.db")
	t.Setenv("SHAREGATE_AMQP_URL", "amqp://localhost:5672")
	t.Setenv("SHAREGATE_QUEUE", "sync.test")
	t.Setenv("SHAREGATE_MAX_REAPPLY_ATTEMPTS", "5")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, "/tmp/broker.db", cfg.DBPath)
	assert.Equal(t, "amqp://localhost:5672", cfg.AMQPURL)
	assert.Equal(t, "sync.test", cfg.QueueName)
	assert.Equal(t, 5, cfg.MaxReapplyAttempts)
}

func TestLoadFromEnvBadAttempts(t *testing.T) {
	t.Setenv("SHAREGATE_MAX_REAPPLY_ATTEMPTS", "lots")

	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromEnv())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "db_path: /tmp/from-file.db\nqueue_name: sync.file\nmax_reapply_attempts: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))
	assert.Equal(t, "/tmp/from-file.db", cfg.DBPath)
	assert.Equal(t, "sync.file", cfg.QueueName)
	assert.Equal(t, 2, cfg.MaxReapplyAttempts)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueName = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxReapplyAttempts = 0
	assert.Error(t, cfg.Validate())
}
