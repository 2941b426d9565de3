package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/phatch9/drcrypt/cmd/server/internal/auth"
	"github.com/phatch9/drcrypt/cmd/server/internal/feed"
	"github.com/phatch9/drcrypt/cmd/server/internal/gateway"
	"github.com/phatch9/drcrypt/cmd/server/internal/history"
	"github.com/phatch9/drcrypt/cmd/server/internal/ingest"
	"github.com/phatch9/drcrypt/cmd/server/internal/repository"
	"github.com/phatch9/drcrypt/cmd/server/internal/secrets"
	"github.com/phatch9/drcrypt/cmd/server/internal/trades"
	"github.com/phatch9/drcrypt/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	// Secrets are resolved exactly once, up front. Any failure here is fatal.
	resolver := secrets.NewEnvResolver()
	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer startCancel()

	pgDSN, err := resolver.Resolve(startCtx, secrets.SecretPostgresDSN)
	if err != nil {
		logger.Fatal("Failed to resolve Postgres secret", zap.Error(err))
	}
	redisAddr, err := resolver.Resolve(startCtx, secrets.SecretRedisAddr)
	if err != nil {
		logger.Fatal("Failed to resolve Redis secret", zap.Error(err))
	}
	jwtKey, err := resolver.Resolve(startCtx, secrets.SecretJWTKey)
	if err != nil {
		logger.Fatal("Failed to resolve JWT secret", zap.Error(err))
	}

	pg, err := repository.NewPostgres(pgDSN)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	if err := pg.InitSchema(startCtx); err != nil {
		logger.Fatal("Failed to init schema", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(startCtx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	cache := repository.NewRedisCache(rdb)
	bus := repository.NewRedisBus(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ingestion pipeline: feed -> fanout -> {durable writer, broker publisher}
	fanout := ingest.NewFanout(logger, 256,
		ingest.NewWriter(pg),
		ingest.NewPublisher(bus, cfg.Broker.Channel),
	)
	fanout.Start(ctx)

	feedClient, err := feed.NewClient(
		cfg.Feed.URL,
		cfg.Feed.ReconnectWait,
		feed.WebsocketDialer{},
		feed.RealClock{},
		logger,
		fanout.Dispatch,
	)
	if err != nil {
		logger.Fatal("Invalid feed configuration", zap.Error(err))
	}
	go feedClient.Run(ctx)

	// HTTP surface: relay gateway, history API, auth, trade ledger
	gw := gateway.New(bus, cfg.Broker.Channel, logger)
	historyHandler := history.NewHandler(
		history.NewService(pg, cache, cfg.Cache.HistoryTTL, logger),
		logger,
	)
	tokens := auth.NewTokenIssuer(jwtKey, cfg.Auth.TokenTTL)
	authHandler := auth.NewHandler(pg, tokens, logger)
	tradeHandler := trades.NewHandler(pg, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.Handle("GET /prices/history", historyHandler)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.Handle("POST /api/trade", auth.Middleware(tokens, http.HandlerFunc(tradeHandler.Execute)))
	mux.Handle("GET /api/trade", auth.Middleware(tokens, http.HandlerFunc(tradeHandler.List)))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Dr.Crypt API is running"))
	})

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown did not drain cleanly", zap.Error(err))
	}

	cancel()        // stops the feed client
	fanout.Close()  // drains in-flight ticks
	pg.Close()
	rdb.Close()

	logger.Info("Shutdown Complete")
}
