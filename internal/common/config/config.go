// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Sync          SyncConfig         `mapstructure:"sync"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Settings      SettingsConfig     `mapstructure:"settings"`
	Auth          AuthConfig         `mapstructure:"auth"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// Enabled reports whether an Elasticsearch cluster is configured.
func (e ElasticsearchConfig) Enabled() bool {
	return len(e.Addresses) > 0
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether Redis is configured; the settings cache and
// session store are skipped without it.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

type SchedulerConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TickInterval int    `mapstructure:"tick_interval"` // milliseconds
	Timezone     string `mapstructure:"timezone"`
}

const (
	SyncBackendSupabase      = "supabase"
	SyncBackendElasticsearch = "elasticsearch"
)

type SyncConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Backend        string  `mapstructure:"backend"`
	RetrySchedule  string  `mapstructure:"retry_schedule"`
	MaxRetries     int     `mapstructure:"max_retries"`
	RequestTimeout int     `mapstructure:"request_timeout"` // milliseconds
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	RequireAuth    bool    `mapstructure:"require_auth"`

	Supabase struct {
		URL     string `mapstructure:"url"`
		AnonKey string `mapstructure:"anon_key"`
		Table   string `mapstructure:"table"`
	} `mapstructure:"supabase"`

	Elasticsearch struct {
		Index string `mapstructure:"index"`
	} `mapstructure:"elasticsearch"`
}

// NotificationConfig selects the channels a fired notification is displayed on.
type NotificationConfig struct {
	Channels []string `mapstructure:"channels"`
	AWS      struct {
		Region string `mapstructure:"region"`
		SNS    struct {
			TopicARN string `mapstructure:"topic_arn"`
		} `mapstructure:"sns"`
		SES struct {
			FromEmail string   `mapstructure:"from_email"`
			ToEmails  []string `mapstructure:"to_emails"`
		} `mapstructure:"ses"`
	} `mapstructure:"aws"`
}

type SettingsConfig struct {
	CacheTTL int `mapstructure:"cache_ttl"` // milliseconds
}

type AuthConfig struct {
	SessionKey string `mapstructure:"session_key"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}
