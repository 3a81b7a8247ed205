package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	fileName := filepath.Join(t.TempDir(), "conf.yaml")
	require.NoError(t, os.WriteFile(fileName, []byte(content), 0o600))
	return fileName
}

func TestLoadFallsBackToEnvironmentDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("ENGINE_WORKERS", "3")

	conf, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, StorageSqlite, conf.Storage.Driver)
	assert.Equal(t, "zenorchestrator.db", conf.Storage.Path)
	assert.Equal(t, 3, conf.Engine.Workers)
	assert.Equal(t, ":8080", conf.HttpServer.Addr)
	assert.Equal(t, time.Hour, conf.Engine.DefaultTaskTimeout)
	assert.Equal(t, "zenorchestrator", conf.Tracing.Name)
}

func TestLoadReadsYamlFile(t *testing.T) {
	fileName := writeConfig(t, `
name: orders
httpServer:
  addr: ":9090"
storage:
  driver: sqlite
  path: /tmp/orders.db
engine:
  workers: 4
  defaultRetries: 2
  timeoutScanInterval: 10s
  taskProperties:
    OrderProcess:
      retries: 5
      timeout: PT30M
deploy:
  directory: ./definitions
  watch: true
`)

	conf, err := Load(fileName)
	require.NoError(t, err)

	assert.Equal(t, ":9090", conf.HttpServer.Addr)
	assert.Equal(t, "orders", conf.Tracing.Name)
	assert.Equal(t, "/tmp/orders.db", conf.Storage.Path)
	assert.True(t, conf.Deploy.Watch)

	engine := conf.EngineConfig()
	assert.Equal(t, 4, engine.Workers)
	assert.Equal(t, 2, engine.DefaultRetries)
	assert.Equal(t, 10*time.Second, engine.TimeoutScanInterval)
	assert.Equal(t, 1024, engine.QueueSize)
	require.Contains(t, engine.TaskProperties, "OrderProcess")
	assert.Equal(t, 5, *engine.TaskProperties["OrderProcess"].Retries)
	assert.Equal(t, "PT30M", engine.TaskProperties["OrderProcess"].Timeout)
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	fileName := writeConfig(t, `
storage:
  driver: postgres
engine:
  jsPoolMin: 10
  jsPoolMax: 2
deploy:
  watch: true
`)

	_, err := Load(fileName)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage driver")
	assert.Contains(t, err.Error(), "jsPoolMin 10 exceeds jsPoolMax 2")
	assert.Contains(t, err.Error(), "deploy watch requires a directory")
}
