package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/cache"
	"github.com/goliatone/go-auth-bridge/logging"
	"github.com/goliatone/go-auth-bridge/repository"
	"github.com/goliatone/go-auth-bridge/strategy/github"
	"github.com/goliatone/go-auth-bridge/strategy/google"
	"github.com/goliatone/go-auth-bridge/strategy/oauth"
	"github.com/goliatone/go-auth-bridge/strategy/oidc"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// strategyFactories maps the module keys accepted in the strategies block to
// their constructors.
func strategyFactories() map[string]bridge.StrategyFactory {
	return map[string]bridge.StrategyFactory{
		oauth.Module:  oauth.Factory,
		oidc.Module:   oidc.Factory,
		github.Module: github.Factory,
		google.Module: google.Factory,
	}
}

// App holds the wired bridge components of one process.
type App struct {
	Config     *bridge.Config
	Logger     *logging.ZapLogger
	DB         *bun.DB
	Repos      bridge.RepositoryManager
	Registry   *bridge.Registry
	Vault      *bridge.CredentialVault
	Handoff    *bridge.LocaleHandoff
	Controller *bridge.HTTPController

	closers []func() error
}

// Close releases the database and cache connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openDB opens the configured database. Debug logs every query.
func openDB(cfg bridge.DatabaseConfig, logger bridge.Logger) (*bun.DB, error) {
	var db *bun.DB
	switch cfg.Driver {
	case "postgres":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		db = bun.NewDB(sqldb, pgdialect.New())
	case "sqlite":
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if strings.Contains(cfg.DSN, ":memory:") {
			sqldb.SetMaxOpenConns(1)
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
		if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			_ = db.Close()
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if cfg.Debug {
		db.AddQueryHook(queryLogger{logger: logger})
	}
	return db, nil
}

type queryLogger struct {
	logger bridge.Logger
}

func (q queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (q queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		q.logger.Error("query failed after %s: %s: %v", event.Duration(), event.Query, event.Err)
		return
	}
	q.logger.Debug("query %s: %s", event.Duration(), event.Query)
}

// newRegistry builds the strategy registry. A nil verifier leaves the
// default rejecting verifier in place, which is enough to list URLs.
func newRegistry(cfg *bridge.Config, verifier bridge.VerifierFactory, logger bridge.Logger) (*bridge.Registry, error) {
	opts := []bridge.RegistryOption{
		bridge.WithBaseURL(cfg.BaseURL),
		bridge.WithPrefix(cfg.Prefix),
		bridge.WithFactories(strategyFactories()),
		bridge.WithRegistryLogger(logger),
	}
	if verifier != nil {
		opts = append(opts, bridge.WithVerifier(verifier))
	}
	return bridge.NewRegistry(cfg.StrategySpecs(), opts...)
}

func newSessionCodec(cfg *bridge.Config) (bridge.SessionCodec, error) {
	switch cfg.Session.Codec {
	case "securecookie":
		var blockKey []byte
		if cfg.Session.EncryptionKey != "" {
			key, err := bridge.DecodeKey("session.encryption_key", cfg.Session.EncryptionKey)
			if err != nil {
				return nil, err
			}
			blockKey = key
		}
		return bridge.NewSecureCookieCodec(cfg.Session.CookieName, []byte(cfg.Session.Secret), blockKey, cfg.Session.TTL)
	default:
		return bridge.NewJWTSessionCodec([]byte(cfg.Session.Secret), cfg.BaseURL, cfg.Session.TTL)
	}
}

func newStateManager(cfg *bridge.Config) (*bridge.EncryptedStateManager, error) {
	encKey, err := bridge.DecodeKey("state.encryption_key", cfg.State.EncryptionKey)
	if err != nil {
		return nil, err
	}
	hmacKey, err := bridge.DecodeKey("state.hmac_key", cfg.State.HMACKey)
	if err != nil {
		return nil, err
	}
	return bridge.NewEncryptedStateManager(encKey, hmacKey, cfg.State.TTL)
}

func newHandoffCache(ctx context.Context, cfg *bridge.Config, a *App) (bridge.HandoffCache, error) {
	if cfg.Cache.Driver == "redis" {
		redisCache, err := cache.DialRedis(ctx, cfg.Cache.Redis)
		if err != nil {
			return nil, fmt.Errorf("unable to reach redis at %s: %w", cfg.Cache.Redis.Addr, err)
		}
		a.closers = append(a.closers, redisCache.Close)
		return redisCache, nil
	}

	memory := cache.NewMemoryCache()
	sweepCtx, cancel := context.WithCancel(context.Background())
	memory.StartSweeper(sweepCtx, bridge.HandoffTTL/4)
	a.closers = append(a.closers, func() error {
		cancel()
		return nil
	})
	return memory, nil
}

// NewApp wires every component from the configuration.
func NewApp(ctx context.Context, cfg *bridge.Config, logger *logging.ZapLogger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	db, err := openDB(cfg.Database, logger.Named("db"))
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	a.Repos = bridge.NewRepositoryManager(db)
	if err := a.Repos.Validate(); err != nil {
		a.Close()
		return nil, err
	}

	var vaultOpts []repository.VaultRepositoryOption
	if cfg.Vault.EncryptionKey != "" {
		key, err := bridge.DecodeKey("vault.encryption_key", cfg.Vault.EncryptionKey)
		if err != nil {
			a.Close()
			return nil, err
		}
		cipher, err := bridge.NewSecretboxCipher(key)
		if err != nil {
			a.Close()
			return nil, err
		}
		vaultOpts = append(vaultOpts, repository.WithTokenCipher(cipher))
	}
	vaultStore := repository.NewVaultRepository(db, vaultOpts...)

	users := a.Repos.Users()
	resolverOpts := []bridge.ResolverOption{bridge.WithResolverLogger(logger.Named("resolver"))}
	if cfg.Create.Enabled {
		resolverOpts = append(resolverOpts, bridge.WithProvisioner(bridge.NewUserProvisioner(users,
			bridge.WithDefaultRole(cfg.Create.DefaultRole),
			bridge.WithProvisionerLogger(logger.Named("provisioner")),
		)))
	}
	resolver := bridge.NewProfileResolver(users, resolverOpts...)
	verifier := bridge.NewAccountVerifier(resolver, users, vaultStore).WithLogger(logger.Named("verifier"))

	a.Registry, err = newRegistry(cfg, verifier.For, logger.Named("registry"))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Vault = bridge.NewCredentialVault(vaultStore, a.Registry,
		bridge.WithSerializedRefresh(cfg.Vault.SerializeRefresh),
		bridge.WithVaultLogger(logger.Named("vault")),
	)

	codec, err := newSessionCodec(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	sessions := bridge.NewCookieSessionStore(codec, bridge.CookieConfig{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.Secure,
		TTL:    cfg.Session.TTL,
	}).WithLogger(logger.Named("session"))

	states, err := newStateManager(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	handoffCache, err := newHandoffCache(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Handoff = bridge.NewLocaleHandoff(handoffCache, cfg.LocaleMap(),
		bridge.WithHandoffDocuments(a.Repos.Documents()),
		bridge.WithHandoffLogger(logger.Named("handoff")),
	)

	connections := bridge.NewRequestConnectionHandler(a.Registry, users, a.Repos.Connections(),
		bridge.NewLogNotifier(logger.Named("notifier")),
	).WithLogger(logger.Named("connections"))

	a.Controller = bridge.NewHTTPController(a.Registry, sessions, states, bridge.HTTPConfig{},
		bridge.WithLocaleHandoff(a.Handoff),
		bridge.WithConnections(connections),
		bridge.WithControllerLogger(logger.Named("http")),
	)

	return a, nil
}
