package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/gopherauth/internal/db"
	"github.com/nkiryanov/gopherauth/internal/handlers"
	"github.com/nkiryanov/gopherauth/internal/logger"
	"github.com/nkiryanov/gopherauth/internal/repository/postgres"
	"github.com/nkiryanov/gopherauth/internal/service/auth"
	"github.com/nkiryanov/gopherauth/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/gopherauth/internal/service/photostore"
	"github.com/nkiryanov/gopherauth/internal/service/profile"
	"github.com/nkiryanov/gopherauth/internal/service/session"
	"github.com/nkiryanov/gopherauth/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	pool   *pgxpool.Pool
	logger logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Services below can't work without it, so check before touching db
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  c.SecretKey,
		AccessTTL:  c.AccessTTL,
		RefreshTTL: c.RefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	hasher := user.NewPooledHasher(user.BcryptHasher{Cost: c.BcryptCost}, c.HashWorkers)
	userService := user.NewService(hasher, storage)
	sessionService := session.NewService(storage, nil)

	var profileService *profile.ProfileService
	if c.StorageURL != "" {
		photos := photostore.NewClient(photostore.Config{
			URL:        c.StorageURL,
			ServiceKey: c.StorageServiceKey,
			Bucket:     c.StorageBucket,
		}, logger)
		profileService = profile.NewService(storage, photos, logger)
	} else {
		logger.Warn("Photo storage is not configured, profile photos are disabled")
		profileService = profile.NewService(storage, nil, logger)
	}

	authService, err := auth.NewService(
		auth.Config{
			RotateRefresh: c.RotateRefresh,
			SecureCookie:  !c.IsDevelopment(),
		},
		tokenManager,
		userService,
		sessionService,
		profileService,
		logger,
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    handlers.NewRouter(authService, profileService, logger),
		pool:       pool,
		logger:     logger,
	}, nil
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

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
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

// Release db connections. Call after Run returned
func (s *ServerApp) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
