package server

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mikepea/smartmarks/pkg/smartmarks/auth"
	"github.com/mikepea/smartmarks/pkg/smartmarks/config"
	"github.com/mikepea/smartmarks/pkg/smartmarks/database"
	"github.com/mikepea/smartmarks/pkg/smartmarks/feed"
	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
	"github.com/mikepea/smartmarks/pkg/smartmarks/metadata"
	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
	"github.com/mikepea/smartmarks/pkg/smartmarks/oidc"
	"github.com/mikepea/smartmarks/pkg/smartmarks/store"
)

const discoveryTimeout = 10 * time.Second

var (
	// Module provides every service component. Config is expected from
	// the caller so tests can supply their own.
	Module = fx.Options(
		fx.Provide(
			NewLogger,
			NewDatabase,
			NewBroker,
			NewStore,
			NewFetcher,
			NewTokenManager,
			NewGoogle,
			NewRouter,
			New,
		),
		fx.Invoke(Register),
	)
)

// NewLogger builds the service logger from config.
func NewLogger(lc fx.Lifecycle, cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

// NewDatabase connects and migrates the schema.
func NewDatabase(cfg *config.Config, log logger.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return nil, err
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}
	log.Info("database ready", logger.String("driver", cfg.DBDriver))
	return db, nil
}

// NewBroker uses Redis pub/sub when REDIS_ADDR is set and an in-process
// broker otherwise.
func NewBroker(cfg *config.Config, log logger.Logger) (feed.Broker, error) {
	if cfg.RedisAddr == "" {
		log.Info("change feed: in-process")
		return feed.NewMemory(), nil
	}
	client, err := feed.Connect(context.Background(), feed.DefaultConnectOptions(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), log)
	if err != nil {
		return nil, err
	}
	log.Info("change feed: redis", logger.String("addr", cfg.RedisAddr))
	return feed.NewRedis(client, log), nil
}

// NewStore binds the bookmark store to the change feed.
func NewStore(db *gorm.DB, broker feed.Broker, log logger.Logger) *store.Store {
	return store.New(db, broker, log)
}

// NewFetcher builds the page metadata fetcher.
func NewFetcher(cfg *config.Config) *metadata.Fetcher {
	return metadata.NewFetcher(metadata.Options{
		Timeout:      cfg.MetaTimeout,
		MaxBodyBytes: cfg.MetaMaxBodyBytes,
	})
}

// NewTokenManager issues session tokens.
func NewTokenManager(cfg *config.Config) *auth.TokenManager {
	return auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
}

// NewGoogle discovers Google's OIDC endpoints. It returns nil when no
// client credentials are configured.
func NewGoogle(cfg *config.Config, log logger.Logger) (oidc.Authenticator, error) {
	if !cfg.GoogleEnabled() {
		log.Info("google sign-in disabled")
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	defer cancel()

	a, err := oidc.NewGoogle(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, oidc.RedirectURL(cfg.BaseURL))
	if err != nil {
		return nil, errors.Wrap(err, "discover google oidc")
	}
	return a, nil
}

// Register binds the listener on start. On stop the server drains first,
// then the change feed and the database are closed.
func Register(lc fx.Lifecycle, cfg *config.Config, srv *Server, broker feed.Broker, db *gorm.DB, log logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			l, err := net.Listen("tcp", srv.Addr())
			if err != nil {
				return errors.Wrapf(err, "listen on %s", srv.Addr())
			}
			go func() {
				if err := srv.Serve(l); err != nil {
					log.Error("http server stopped", logger.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
			defer cancel()
			return multierr.Combine(
				srv.Stop(ctx),
				broker.Close(),
				database.Close(db),
			)
		},
	})
}
