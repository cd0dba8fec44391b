package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"reviewport/api/internal/app"
	"reviewport/api/internal/config"
	"reviewport/api/internal/email"
	"reviewport/api/internal/gateway"
	"reviewport/api/internal/ratelimit"
	"reviewport/api/internal/search"
	"reviewport/api/internal/session"
	"reviewport/api/internal/storage"
)

func main() {
	cfg := config.Load(os.Getenv("PORTAL_CONFIG"))

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("parse redis url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	cancel()

	sessions := session.NewRedisStoreWithClient(redisClient, cfg.SessionTTL)
	limiter := ratelimit.New(redisClient, cfg.LockoutWindow, cfg.LockoutThreshold)
	gw := gateway.New(cfg.DataAPIURL, cfg.DataAPIKey, logger)
	mailer := email.NewService(cfg.SMTP, logger)

	var signer app.URLSigner
	if cfg.Storage.Endpoint != "" {
		presigner, err := storage.New(cfg.Storage)
		if err != nil {
			logger.Fatal("storage client failed", zap.Error(err))
		}
		signer = presigner
	} else {
		logger.Warn("storage not configured, file downloads disabled")
	}

	service := app.NewService(cfg, gw, sessions, limiter, mailer, signer, logger)

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
		service.SetSearcher(search.NewService(meiliClient, service, logger))
		go syncSearchIndex(service, logger)
	} else {
		service.SetSearcher(search.NewService(nil, service, logger))
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
		logger.Info("portal API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// syncSearchIndex pushes the project/file corpus to Meilisearch at startup and
// every five minutes after, so mutations reach the index on the next sweep.
func syncSearchIndex(service *app.Service, logger *zap.Logger) {
	sync := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := service.SyncSearchIndex(ctx); err != nil {
			logger.Warn("search index sync", zap.Error(err))
		}
	}

	sync()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		sync()
	}
}
