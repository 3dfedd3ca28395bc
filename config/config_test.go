package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  status_changed_topic_name: "shipment.status_changed"
  alert_transitions_topic_name: "shipment.alerts"
redis:
  host: "localhost"
  port: 6379
auth:
  jwt_secret: "secret"
consotrack:
  http_addr: ":8080"
  worker_http_addr: ":8082"
  kafka_consumer_group: "conso-api"
  current_state_ttl_seconds: 600
  worker_batch_size: 50
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "shipment.status_changed", cfg.Kafka.StatusChangedTopicName)
	require.Equal(t, "shipment.alerts", cfg.Kafka.AlertTransitionsTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, "secret", cfg.Auth.JWTSecret)
	require.Equal(t, ":8080", cfg.ConsoTrack.HTTPAddr)
	require.Equal(t, 50, cfg.ConsoTrack.WorkerBatchSize)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
