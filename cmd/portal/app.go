package main

import (
	"context"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-portal/internal/apiclient"
	"github.com/jwalitptl/clinic-portal/internal/config"
	"github.com/jwalitptl/clinic-portal/internal/service/event"
	"github.com/jwalitptl/clinic-portal/internal/session"
	"github.com/jwalitptl/clinic-portal/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-portal/pkg/logger"
	"github.com/jwalitptl/clinic-portal/pkg/messaging"
	"github.com/jwalitptl/clinic-portal/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-portal/pkg/metrics"
	"github.com/jwalitptl/clinic-portal/pkg/validator"
)

// app is the wiring shared by the server and the CLI commands.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	validate validator.Validator
	api      *apiclient.Client
	breaker  *circuitbreaker.CircuitBreaker
	redis    *goredis.Client
	broker   messaging.Broker
	events   *event.Service
	sessions *session.Manager
}

// storeKind overrides the configured session store. The CLI always uses
// the file store.
type storeKind string

const (
	storeFromConfig storeKind = ""
	storeFile       storeKind = "file"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, _ := cmd.Flags().GetString("config")
	if dir == "" {
		return config.LoadConfig()
	}
	return config.LoadConfig(dir)
}

func newApp(ctx context.Context, cmd *cobra.Command, store storeKind) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stderr,
		JSON:       cfg.Log.JSON,
	})
	logger.SetGlobal(log)

	a := &app{
		cfg:      cfg,
		log:      log,
		metrics:  metrics.New("portal"),
		validate: validator.New(),
	}

	if cfg.API.CircuitBreaker {
		a.breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "clinic-api",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			IsFailure:   apiclient.IsBreakerFailure,
		})
	}

	a.api, err = apiclient.New(apiclient.Config{
		BaseURL:         cfg.API.BaseURL,
		Timeout:         cfg.API.Timeout,
		GenerateTimeout: cfg.API.GenerateTimeout,
		DownloadTimeout: cfg.API.DownloadTimeout,
		Logger:          log,
		Metrics:         a.metrics,
		Breaker:         a.breaker,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Redis.URL != "" {
		opts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		a.redis = goredis.NewClient(opts)
		a.broker, err = redis.NewRedisBroker(ctx, redis.Config{URL: cfg.Redis.URL, MaxRetries: 3}, log.ZL)
		if err != nil {
			return nil, err
		}
	} else {
		a.broker = messaging.NewMemoryBroker()
	}
	a.events = event.NewService(a.broker, log)

	sessionStore, err := a.sessionStore(store)
	if err != nil {
		return nil, err
	}
	a.sessions = session.NewManager(session.ManagerConfig{
		Store:     sessionStore,
		API:       a.api,
		Validator: a.validate,
		Logger:    log,
		TTL:       cfg.Session.TTL,
	})
	return a, nil
}

func (a *app) sessionStore(kind storeKind) (session.Store, error) {
	if kind == storeFromConfig {
		kind = storeKind(a.cfg.Session.Store)
	}
	switch kind {
	case storeFile:
		path := a.cfg.Session.File
		if path == "" {
			var err error
			if path, err = session.DefaultFilePath(); err != nil {
				return nil, err
			}
		}
		return session.NewFileStore(path), nil
	case "redis":
		if a.redis == nil {
			return nil, fmt.Errorf("session store redis requires redis.url")
		}
		return session.NewRedisStore(a.redis), nil
	default:
		return session.NewMemoryStore(a.cfg.Session.TTL), nil
	}
}

func (a *app) Close() {
	a.events.Wait()
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.log.Error(err, "failed to close broker")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error(err, "failed to close redis")
		}
	}
}
