// Package app arma el contenedor de dependencias a partir de la config. Lo
// usan el server HTTP y los comandos de la CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/fitlink/internal/cache"
	"github.com/dropDatabas3/fitlink/internal/config"
	"github.com/dropDatabas3/fitlink/internal/email"
	"github.com/dropDatabas3/fitlink/internal/events"
	"github.com/dropDatabas3/fitlink/internal/http/controllers/garmin"
	"github.com/dropDatabas3/fitlink/internal/http/controllers/health"
	"github.com/dropDatabas3/fitlink/internal/http/controllers/strava"
	"github.com/dropDatabas3/fitlink/internal/http/router"
	"github.com/dropDatabas3/fitlink/internal/jwt"
	"github.com/dropDatabas3/fitlink/internal/metrics"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
	garminp "github.com/dropDatabas3/fitlink/internal/providers/garmin"
	stravap "github.com/dropDatabas3/fitlink/internal/providers/strava"
	"github.com/dropDatabas3/fitlink/internal/rate"
	"github.com/dropDatabas3/fitlink/internal/security/secretbox"
	"github.com/dropDatabas3/fitlink/internal/services/connections"
	"github.com/dropDatabas3/fitlink/internal/services/login"
	syncsvc "github.com/dropDatabas3/fitlink/internal/services/sync"
	"github.com/dropDatabas3/fitlink/internal/services/tokens"
	"github.com/dropDatabas3/fitlink/internal/store"
)

// Container es el contenedor DI simple que usan el server y la CLI.
type Container struct {
	Config *config.Config

	Store  store.Backend
	Cache  cache.Client
	Vault  *secretbox.Vault
	Issuer *jwt.Issuer
	Events events.Publisher

	Challenges  *login.CacheChallengeStore
	Login       login.Service
	Tokens      tokens.Manager
	Connections connections.Service
	Sync        syncsvc.Service

	// ConnectLimiter limita por IP los endpoints de connect/authorize.
	ConnectLimiter rate.Limiter
}

// Options de Build.
type Options struct {
	// Migrate aplica migraciones pendientes al abrir postgres.
	Migrate bool
}

// Build conecta store, cache y proveedores y arma los services.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	log := logger.L().With(logger.Component("app"))

	vault, err := secretbox.FromConfig(cfg.Vault.MasterKey, cfg.Vault.Secret)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	issuer, err := jwt.NewIssuer(cfg.Auth.Issuer, cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	issuer.AccessTTL = cfg.Auth.TokenTTL.Duration
	issuer.StateTTL = cfg.Auth.StateTTL.Duration

	backend, err := store.Open(ctx, store.Config{
		Driver:    cfg.Storage.Driver,
		DSN:       cfg.Storage.DSN,
		MaxConns:  cfg.Storage.Postgres.MaxConns,
		MinConns:  cfg.Storage.Postgres.MinConns,
		LeaseWait: cfg.Storage.LeaseWait.Duration,
		Migrate:   opts.Migrate,
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	cc, err := cache.New(cache.Config{
		Driver:          cfg.Cache.Driver,
		Addr:            cfg.Cache.Redis.Addr,
		Password:        cfg.Cache.Redis.Password,
		DB:              cfg.Cache.Redis.DB,
		Prefix:          cfg.Cache.Redis.Prefix,
		CleanupInterval: cfg.Cache.CleanupInterval.Duration,
	})
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		_ = backend.Close()
		_ = cc.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	c := &Container{
		Config: cfg,
		Store:  backend,
		Cache:  cc,
		Vault:  vault,
		Issuer: issuer,
		Events: events.New(cfg.Events.KafkaBrokers, cfg.Events.Topic),
	}

	garminClient := garminp.New(garminp.Config{
		SSOURL:   cfg.Garmin.SSOURL,
		APIURL:   cfg.Garmin.APIURL,
		CNSSOURL: cfg.Garmin.CNSSOURL,
		CNAPIURL: cfg.Garmin.CNAPIURL,
		Timeout:  cfg.Garmin.RequestTimeout.Duration,
	})
	stravaClient := stravap.New(stravap.Config{
		AuthURL:  cfg.Strava.AuthURL,
		TokenURL: cfg.Strava.TokenURL,
		APIBase:  cfg.Strava.APIBase,
		Timeout:  cfg.Strava.RequestTimeout.Duration,
	})

	c.Challenges = login.NewChallengeStore(cc, cfg.Login.ChallengeTTL.Duration)
	c.ConnectLimiter = c.limiter("connect", cfg.Rate.Connect.Limit, cfg.Rate.Connect.Window.Duration)

	c.Login = login.NewService(login.Deps{
		Authenticator: garminClient,
		Connections:   backend.Connections(),
		Challenges:    c.Challenges,
		Vault:         vault,
		Limiter:       c.limiter("login", cfg.Rate.Login.Limit, cfg.Rate.Login.Window.Duration),
	})

	c.Tokens = tokens.NewManager(tokens.Deps{
		Client:        stravaClient,
		Connections:   backend.Connections(),
		Vault:         vault,
		RedirectURI:   cfg.Strava.RedirectURI,
		RefreshBuffer: cfg.Strava.RefreshBuffer.Duration,
	})

	c.Connections = connections.NewService(connections.Deps{
		Connections: backend.Connections(),
		Vault:       vault,
		Tokens:      c.Tokens,
		States:      issuer,
		Strava:      stravaClient,
		RedirectURI: cfg.Strava.RedirectURI,
	})

	notifier := email.New(email.SMTPConfig{
		Host:     cfg.Notify.SMTP.Host,
		Port:     cfg.Notify.SMTP.Port,
		Username: cfg.Notify.SMTP.Username,
		Password: cfg.Notify.SMTP.Password,
		From:     cfg.Notify.SMTP.From,
		TLSMode:  cfg.Notify.SMTP.TLSMode,
	}, cfg.Notify.To)

	c.Sync = syncsvc.NewService(syncsvc.Deps{
		Connections: backend.Connections(),
		Metrics:     backend.Metrics(),
		Activities:  backend.Activities(),
		Vault:       vault,
		Login:       c.Login,
		Garmin:      garminClient,
		Tokens:      c.Tokens,
		Strava:      stravaClient,
		Events:      c.Events,
		Notifier:    notifier,
		Options: syncsvc.Options{
			MaxDays:     cfg.Sync.MaxDays,
			CallTimeout: cfg.Sync.CallTimeout.Duration,
			PageSize:    cfg.Strava.PageSize,
			MaxPages:    cfg.Strava.MaxPages,
		},
	})

	log.Info("container ready",
		logger.String("storage", cfg.Storage.Driver),
		logger.String("cache", cfg.Cache.Driver),
		logger.Bool("events", len(cfg.Events.KafkaBrokers) > 0),
		logger.Bool("notify", cfg.NotifyEnabled()),
	)
	return c, nil
}

// limiter usa redis si el cache es redis, para compartir contadores entre
// instancias; si no, memoria local.
func (c *Container) limiter(name string, limit int, window time.Duration) rate.Limiter {
	if limit <= 0 {
		return rate.Noop{}
	}
	prefix := "rl:" + name + ":"
	if rc, ok := c.Cache.(interface{ Redis() *redis.Client }); ok {
		return rate.NewRedisLimiter(rc.Redis(), c.Config.Cache.Redis.Prefix+":"+prefix, limit, window)
	}
	return rate.NewMemoryLimiter(prefix, limit, window)
}

// Handler arma el router HTTP completo.
func (c *Container) Handler() http.Handler {
	cfg := c.Config
	return router.New(router.Deps{
		Auth:   c.Issuer,
		Garmin: garmin.NewController(c.Login, c.Connections, c.Sync, cfg.Sync.DefaultDaysGarmin),
		Strava: strava.NewController(c.Connections, c.Sync, cfg.Sync.DefaultDaysStrava),
		Health: health.NewController(cfg.App.Version, map[string]health.Pinger{
			"store": c.Store,
			"cache": c.Cache,
		}),
		Metrics:        promhttp.Handler(),
		ConnectLimiter: c.ConnectLimiter,
		CORSOrigins:    cfg.Server.CORSAllowedOrigins,
	})
}

// RunBackground arranca el sweeper de challenges MFA hasta que ctx termine.
func (c *Container) RunBackground(ctx context.Context) {
	go login.RunSweeper(ctx, c.Challenges, c.Config.Login.SweepInterval.Duration)
}

// Close libera store, cache y el publisher de eventos.
func (c *Container) Close() error {
	return errors.Join(
		c.Events.Close(),
		c.Cache.Close(),
		c.Store.Close(),
	)
}
