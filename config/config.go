package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	mu sync.Mutex `yaml:"-"`

	DeviceID      string `yaml:"device_id"`
	DatabasePath  string `yaml:"database_path"`
	ActiveProject string `yaml:"active_project"`

	Remote    RemoteConfig    `yaml:"remote"`
	Blob      BlobConfig      `yaml:"blob"`
	Sync      SyncConfig      `yaml:"sync"`
	Web       WebConfig       `yaml:"web"`
	Messaging MessagingConfig `yaml:"messaging"`
}

// RemoteConfig defines the backend REST API.
type RemoteConfig struct {
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout"`
	LedgerLimit    int           `yaml:"ledger_limit"`
	AttendanceDays int           `yaml:"attendance_days"`
}

// BlobConfig defines where movement evidence is uploaded.
type BlobConfig struct {
	Backend         string `yaml:"backend"` // "http" or "gcs"
	Bucket          string `yaml:"bucket"`
	PublicURL       string `yaml:"public_url"`
	CredentialsJSON string `yaml:"-"`
}

// SyncConfig tunes reconciliation triggers.
type SyncConfig struct {
	RequireSignature bool          `yaml:"require_signature"`
	RefreshSchedule  string        `yaml:"refresh_schedule"` // cron expression, empty disables
	ProbeInterval    time.Duration `yaml:"probe_interval"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
}

// WebConfig defines the web server settings.
type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

// MessagingConfig defines the device event backend.
type MessagingConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Backend           string        `yaml:"backend"` // "mqtt" or "kafka"
	MQTT              MQTTConfig    `yaml:"mqtt"`
	Kafka             KafkaConfig   `yaml:"kafka"`
	StatusTopic       string        `yaml:"status_topic"`
	NoticeTopic       string        `yaml:"notice_topic"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// KafkaConfig defines Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		DeviceID:     "site-device-1",
		DatabasePath: "sitemanager.db",
		Remote: RemoteConfig{
			URL:            "http://localhost:54321",
			Timeout:        15 * time.Second,
			LedgerLimit:    200,
			AttendanceDays: 31,
		},
		Blob: BlobConfig{
			Backend: "http",
			Bucket:  "firmas",
		},
		Sync: SyncConfig{
			ProbeInterval: 10 * time.Second,
			ProbeTimeout:  3 * time.Second,
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8082,
		},
		Messaging: MessagingConfig{
			Backend:           "mqtt",
			StatusTopic:       "sitemanager/status",
			NoticeTopic:       "sitemanager/notices",
			HeartbeatInterval: 60 * time.Second,
			MQTT: MQTTConfig{
				Broker: "localhost",
				Port:   1883,
			},
		},
	}
}

// Load reads a YAML config file, then applies overrides from the
// environment and an optional .env file beside the working directory.
// If the YAML file doesn't exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SITEMANAGER_REMOTE_URL"); v != "" {
		c.Remote.URL = v
	}
	if v := os.Getenv("SITEMANAGER_REMOTE_API_KEY"); v != "" {
		c.Remote.APIKey = v
	}
	if v := os.Getenv("SITEMANAGER_GCS_CREDENTIALS_JSON"); v != "" {
		c.Blob.CredentialsJSON = v
	}
	if v := os.Getenv("SITEMANAGER_SESSION_SECRET"); v != "" {
		c.Web.SessionSecret = v
	}
}

// Validate checks the fields the sync core cannot run without.
func (c *Config) Validate() error {
	var problems []string
	if c.DatabasePath == "" {
		problems = append(problems, "database_path is required")
	}
	if c.Remote.URL == "" {
		problems = append(problems, "remote.url is required")
	}
	if c.Remote.LedgerLimit <= 0 {
		problems = append(problems, "remote.ledger_limit must be positive")
	}
	switch c.Blob.Backend {
	case "http":
	case "gcs":
		if c.Blob.CredentialsJSON == "" {
			problems = append(problems, "gcs blob backend needs SITEMANAGER_GCS_CREDENTIALS_JSON")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown blob backend %q", c.Blob.Backend))
	}
	if c.Messaging.Enabled && c.Messaging.Backend != "mqtt" && c.Messaging.Backend != "kafka" {
		problems = append(problems, fmt.Sprintf("unknown messaging backend %q", c.Messaging.Backend))
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ClientID returns the messaging client ID, falling back to the device ID.
func (c *Config) ClientID() string {
	if c.Messaging.MQTT.ClientID != "" {
		return c.Messaging.MQTT.ClientID
	}
	return "sitemanager-" + c.DeviceID
}

// Lock acquires the config mutex for multi-step mutations.
func (c *Config) Lock() { c.mu.Lock() }

// Unlock releases the config mutex.
func (c *Config) Unlock() { c.mu.Unlock() }
