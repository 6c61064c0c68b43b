package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"moodtide/internal/app"
	"moodtide/internal/authpw"
	"moodtide/internal/config"
	"moodtide/internal/email"
	"moodtide/internal/oauth"
	"moodtide/internal/search"
	"moodtide/internal/session"
	"moodtide/internal/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	dataStore := store.NewPostgresStore(db)

	pgSearch := search.NewPgLike(db)
	var meiliClient search.Indexer
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
		meiliClient = meili
	}
	searchService := search.NewService(meiliClient, pgSearch, logger)

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !emailService.IsConfigured() {
		logger.Info("SMTP not configured, password reset tokens returned inline")
	}

	oauthService := oauth.New(cfg.PublicBaseURL,
		oauth.Config{ClientID: cfg.GoogleClientID, ClientSecret: cfg.GoogleClientSecret},
		oauth.Config{ClientID: cfg.GitHubClientID, ClientSecret: cfg.GitHubClientSecret},
	)
	if providers := oauthService.Providers(); len(providers) > 0 {
		logger.Info("oauth providers configured", zap.Strings("providers", providers))
	}

	authService := authpw.NewService(dataStore)

	var sessions *session.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using Redis for refresh token storage")
		sessions, err = session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer sessions.Close()
	} else {
		logger.Info("using PostgreSQL for refresh token storage")
	}

	var service *app.Service
	if sessions != nil {
		service = app.New(cfg, dataStore, sessions, authService, oauthService, searchService, emailService, logger)
	} else {
		service = app.New(cfg, dataStore, nil, authService, oauthService, searchService, emailService, logger)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("moodtide API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}
