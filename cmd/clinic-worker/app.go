package main

import (
	"context"
	"fmt"
	"time"

	"clinic-worker/internal/auth"
	"clinic-worker/internal/common/aws"
	"clinic-worker/internal/common/config"
	"clinic-worker/internal/common/database"
	"clinic-worker/internal/common/logger"
	"clinic-worker/internal/common/observability"
	"clinic-worker/internal/delivery"
	"clinic-worker/internal/notification"
	"clinic-worker/internal/ops"
	"clinic-worker/internal/scheduler"
	"clinic-worker/internal/settings"
	"clinic-worker/internal/store"
	"clinic-worker/internal/syncqueue"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds every long-lived component of the worker.
type app struct {
	cfg    *config.Config
	zapLog *zap.Logger
	log    logger.Logger
	obs    *observability.Observability

	pg    *database.PostgresClient
	redis *database.RedisClient
	es    *database.ElasticsearchClient

	settings   *settings.Service
	sessions   *auth.SessionStore
	dispatcher *notification.Dispatcher
	scheduler  *scheduler.Scheduler
	queue      *syncqueue.Queue

	notifications *store.NotificationStore
	surveys       *store.SurveyStore

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func newZapLogger(cfg config.LoggingConfig) *zap.Logger {
	if cfg.Output == "file" && cfg.FilePath != "" {
		return logger.NewWithFile(cfg.Level, cfg.Format, logger.FileOptions{
			Path:       cfg.FilePath,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
		})
	}
	return logger.New(cfg.Level, cfg.Format)
}

// connectStores opens Postgres and, when configured, Redis and Elasticsearch.
func connectStores(ctx context.Context, a *app) error {
	cfg := a.cfg

	err := retryWithBackoff(func() error {
		var err error
		a.pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return a.pg.Ping(ctx)
	}, 15, 2*time.Second, a.zapLog, "PostgreSQL connection")
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = a.pg.Close() })
	a.zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Redis.Enabled() {
		a.redis = database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error {
			return a.redis.Ping(ctx)
		}, 10, 2*time.Second, a.zapLog, "Redis connection")
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = a.redis.Close() })
		a.zapLog.Info("Redis connected successfully")
	}

	if cfg.Database.Elasticsearch.Enabled() {
		err = retryWithBackoff(func() error {
			var err error
			a.es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return a.es.Ping(ctx)
		}, 15, 2*time.Second, a.zapLog, "Elasticsearch connection")
		if err != nil {
			return err
		}
		a.zapLog.Info("Elasticsearch connected successfully")
	}
	return nil
}

// buildDisplay assembles the configured notification channels.
func buildDisplay(ctx context.Context, cfg *config.Config, log logger.Logger) (delivery.Displayer, error) {
	var channels []delivery.Displayer
	for _, name := range cfg.Notifications.Channels {
		switch name {
		case "log":
			channels = append(channels, delivery.NewLogDisplayer(log))
		case "sns":
			client, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				return nil, err
			}
			d, err := delivery.NewSNSDisplayer(client, cfg.Notifications.AWS.SNS.TopicARN)
			if err != nil {
				return nil, err
			}
			channels = append(channels, d)
		case "ses":
			client, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				return nil, err
			}
			d, err := delivery.NewSESDisplayer(client, cfg.Notifications.AWS.SES.FromEmail, cfg.Notifications.AWS.SES.ToEmails)
			if err != nil {
				return nil, err
			}
			channels = append(channels, d)
		default:
			return nil, fmt.Errorf("unknown notification channel %q", name)
		}
	}
	if len(channels) == 0 {
		channels = append(channels, delivery.NewLogDisplayer(log))
	}
	return delivery.NewMulti(channels...), nil
}

// buildRemote picks the mirror for the configured backend. A nil remote
// leaves the queue unconfigured: records are kept until the process exits.
func buildRemote(ctx context.Context, a *app) (syncqueue.Remote, error) {
	cfg := a.cfg.Sync
	switch cfg.Backend {
	case config.SyncBackendSupabase:
		if !cfg.SupabaseConfigured() {
			a.log.Warn("Supabase credentials missing, sync queue will hold records locally", nil)
			return nil, nil
		}
		return syncqueue.NewSupabaseRemote(cfg.Supabase.URL, cfg.Supabase.AnonKey, cfg.Supabase.Table,
			config.GetDuration(cfg.RequestTimeout)), nil
	case config.SyncBackendElasticsearch:
		if a.es == nil {
			a.log.Warn("Elasticsearch not configured, sync queue will hold records locally", nil)
			return nil, nil
		}
		if err := a.es.EnsureIndex(ctx, cfg.Elasticsearch.Index); err != nil {
			return nil, err
		}
		return syncqueue.NewElasticRemote(a.es.Client, cfg.Elasticsearch.Index), nil
	}
	return nil, fmt.Errorf("unknown sync backend %q", cfg.Backend)
}

func newApp(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		zapLog: zapLog,
		log:    logger.NewZapAdapter(zapLog),
		obs:    observability.New(cfg.App.Name),
	}
	a.closers = append(a.closers, a.obs.Shutdown)

	if err := connectStores(ctx, a); err != nil {
		a.Close()
		return nil, err
	}

	db := a.pg.DB
	a.notifications = store.NewNotificationStore(db)
	a.surveys = store.NewSurveyStore(db)
	schedules := store.NewScheduleStore(db)

	var cache redis.Cmdable
	if a.redis != nil {
		cache = a.redis.Client
		a.sessions = auth.NewSessionStore(a.redis.Client, cfg.Auth.SessionKey, a.log)
	}
	a.settings = settings.NewService(store.NewSettingsStore(db), cache, config.GetDuration(cfg.Settings.CacheTTL), a.log)

	display, err := buildDisplay(ctx, cfg, a.log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dispatcher = notification.NewDispatcher(a.settings, schedules, a.notifications, store.NewPatientStore(db), display, a.log)
	a.scheduler = scheduler.New(a.dispatcher, config.GetDuration(cfg.Scheduler.TickInterval), a.log,
		scheduler.WithLocation(cfg.Scheduler.Location()),
		scheduler.WithObservability(a.obs),
	)

	remote, err := buildRemote(ctx, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	opts := syncqueue.Options{
		MaxRetries:     cfg.Sync.MaxRetries,
		RequestTimeout: config.GetDuration(cfg.Sync.RequestTimeout),
		RatePerSecond:  cfg.Sync.RatePerSecond,
		Enabled:        cfg.Sync.Enabled,
		Observability:  a.obs,
	}
	if cfg.Sync.RequireAuth && a.sessions != nil {
		opts.Auth = a.sessions
	}
	a.queue = syncqueue.New(remote, opts, a.log)

	return a, nil
}

func (a *app) opsDeps() ops.Deps {
	deps := ops.Deps{
		Queue:    a.queue,
		Settings: a.settings,
		Inbox:    a.notifications,
		Surveys:  a.surveys,
		Logger:   a.log,
		Checks: map[string]ops.Check{
			"postgres": a.pg.Ping,
		},
	}
	if a.sessions != nil {
		deps.Sessions = a.sessions
	}
	if a.redis != nil {
		deps.Checks["redis"] = a.redis.Ping
	}
	if a.es != nil {
		deps.Checks["elasticsearch"] = a.es.Ping
	}
	return deps
}
