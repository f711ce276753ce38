// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// environment overlay is optional
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// booleans cannot be told apart from "unset" after unmarshal
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.require_auth", true)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from well-known env names when the file left them blank.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Sync.Supabase.URL == "" {
		cfg.Sync.Supabase.URL = os.Getenv("SUPABASE_URL")
	}
	if cfg.Sync.Supabase.AnonKey == "" {
		cfg.Sync.Supabase.AnonKey = os.Getenv("SUPABASE_ANON_KEY")
	}
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "clinic-worker"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = 60000
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Local"
	}

	if cfg.Sync.Backend == "" {
		cfg.Sync.Backend = SyncBackendSupabase
	}
	if cfg.Sync.RetrySchedule == "" {
		cfg.Sync.RetrySchedule = "@every 5m"
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 5
	}
	if cfg.Sync.RequestTimeout == 0 {
		cfg.Sync.RequestTimeout = 30000
	}
	if cfg.Sync.RatePerSecond == 0 {
		cfg.Sync.RatePerSecond = 5
	}
	if cfg.Sync.Supabase.Table == "" {
		cfg.Sync.Supabase.Table = "survey_responses_temp"
	}
	if cfg.Sync.Elasticsearch.Index == "" {
		cfg.Sync.Elasticsearch.Index = "survey-responses"
	}

	if len(cfg.Notifications.Channels) == 0 {
		cfg.Notifications.Channels = []string{"log"}
	}

	if cfg.Settings.CacheTTL == 0 {
		cfg.Settings.CacheTTL = 300000
	}
	if cfg.Auth.SessionKey == "" {
		cfg.Auth.SessionKey = "clinic:auth:session"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8090"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = "logs/clinic-worker.log"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 50
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 14
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Scheduler.TickInterval < 1000 {
		return fmt.Errorf("scheduler.tick_interval must be at least 1000ms")
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}

	switch cfg.Sync.Backend {
	case SyncBackendSupabase:
	case SyncBackendElasticsearch:
		if !cfg.Database.Elasticsearch.Enabled() {
			return fmt.Errorf("sync.backend elasticsearch requires database.elasticsearch.addresses")
		}
	default:
		return fmt.Errorf("sync.backend %q is not supported", cfg.Sync.Backend)
	}
	if cfg.Sync.MaxRetries < 1 {
		return fmt.Errorf("sync.max_retries must be positive")
	}

	for _, ch := range cfg.Notifications.Channels {
		switch ch {
		case "log":
		case "sns":
			if cfg.Notifications.AWS.SNS.TopicARN == "" {
				return fmt.Errorf("notifications.aws.sns.topic_arn is required for the sns channel")
			}
		case "ses":
			if cfg.Notifications.AWS.SES.FromEmail == "" || len(cfg.Notifications.AWS.SES.ToEmails) == 0 {
				return fmt.Errorf("notifications.aws.ses.from_email and to_emails are required for the ses channel")
			}
		default:
			return fmt.Errorf("notifications.channels: unknown channel %q", ch)
		}
	}

	return nil
}

// SupabaseConfigured reports whether the REST mirror has both URL and key.
func (s SyncConfig) SupabaseConfigured() bool {
	return s.Supabase.URL != "" && s.Supabase.AnonKey != ""
}

// Location resolves the scheduler timezone; validateConfig has already checked it.
func (s SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
