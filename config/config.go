package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	ConsoTrack ConsoTrackConfig `yaml:"consotrack"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port"`
	StatusChangedTopicName  string `yaml:"status_changed_topic_name"`
	AlertTransitionsTopicName string `yaml:"alert_transitions_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type ConsoTrackConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	CurrentStateTTLSeconds int `yaml:"current_state_ttl_seconds"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	WorkerSyncIntervalSeconds  int `yaml:"worker_sync_interval_seconds"`
	WorkerAlertIntervalSeconds int `yaml:"worker_alert_interval_seconds"`
	WorkerBatchSize            int `yaml:"worker_batch_size"`
	WorkerConcurrency          int `yaml:"worker_concurrency"`
	WorkerLeaseSeconds         int `yaml:"worker_lease_seconds"`
	WorkerRateLimitPerMinute   int `yaml:"worker_rate_limit_per_minute"`

	// Расписание пересинхронизации (опционально; нули — прод-дефолты).
	WorkerNextSyncInTransitMinSeconds int `yaml:"worker_next_sync_in_transit_min_seconds"`
	WorkerNextSyncInTransitMaxSeconds int `yaml:"worker_next_sync_in_transit_max_seconds"`
	WorkerNextSyncPendingSeconds      int `yaml:"worker_next_sync_pending_seconds"`
	WorkerBackoff1Seconds             int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds             int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds             int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds             int `yaml:"worker_backoff_4_seconds"`

	TrackingFeedBaseURL string `yaml:"tracking_feed_base_url"`
	TrackingFeedMode    string `yaml:"tracking_feed_mode"` // "http" | "fake"
	TrackingFeedAPIKey  string `yaml:"tracking_feed_api_key"`
	TrackingFeedTimeoutSeconds int `yaml:"tracking_feed_timeout_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
