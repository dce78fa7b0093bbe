package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/blogauth/internal/db"
	"github.com/nkiryanov/blogauth/internal/handlers"
	"github.com/nkiryanov/blogauth/internal/logger"
	"github.com/nkiryanov/blogauth/internal/metrics"
	"github.com/nkiryanov/blogauth/internal/repository/postgres"
	"github.com/nkiryanov/blogauth/internal/service/auth"
	"github.com/nkiryanov/blogauth/internal/service/auth/tokencodec"
	"github.com/nkiryanov/blogauth/internal/service/oauth"
	"github.com/nkiryanov/blogauth/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	app := &ServerApp{ListenAddr: c.ListenAddr}

	// Release what is already opened if app can't be built
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	// Initialize logger
	app.logger, err = logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, pool.Close)

	m := metrics.New()

	// Exchange codes live in redis if configured, in process memory otherwise
	memCodes := oauth.NewMemoryCodeStore()
	var codes oauth.CodeStore = memCodes
	if c.RedisURL != "" {
		client, err := db.ConnectRedis(ctx, c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		app.closers = append(app.closers, func() { _ = client.Close() })
		codes = oauth.NewRedisCodeStore(client)
	} else {
		m.ObservePendingCodes(memCodes.Len)
	}

	storage := postgres.NewStorage(pool)

	// Initialize services
	codec, err := tokencodec.New(tokencodec.Config{SecretKey: c.SecretKey}, app.logger)
	if err != nil {
		return nil, fmt.Errorf("error while creating token codec. Err: %w", err)
	}
	userService := user.NewService(user.DefaultHasher, storage)
	authService, err := auth.NewService(auth.Config{
		AccessTTL:  c.AccessTTL,
		RefreshTTL: c.RefreshTTL,
		Metrics:    m,
	}, codec, userService, storage.Refresh())
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	broker := oauth.NewBroker(oauth.BrokerConfig{Metrics: m}, codes, app.logger)
	registry := oauth.NewRegistry(storage.Link(), m)
	oauthService := oauth.NewService(broker, registry, userService, authService, app.logger, m)

	if c.AdminEmail != "" && c.AdminPassword != "" {
		created, err := userService.EnsureAdmin(ctx, c.AdminUsername, c.AdminEmail, c.AdminPassword)
		if err != nil {
			return nil, fmt.Errorf("error while creating admin. Err: %w", err)
		}
		app.logger.Info("Admin account checked", "email", c.AdminEmail, "created", created)
	}

	app.Handler = handlers.NewRouter(
		handlers.RouterConfig{
			InternalAPIKey: c.InternalAPIKey,
			LoginRateLimit: c.LoginRateLimit,
		},
		authService,
		oauthService,
		registry,
		userService,
		app.logger,
		m,
	)

	return app, nil
}

// Close connections opened by the app in reverse order
func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
