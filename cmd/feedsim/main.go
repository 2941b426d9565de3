package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/phatch9/drcrypt/cmd/feedsim/internal/feedsim"
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

	sim := feedsim.New(
		logger,
		cfg.Sim.Symbol,
		cfg.Sim.BasePrice,
		cfg.Sim.Interval,
		feedsim.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))},
		feedsim.RealClock{},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sim.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/ws", sim)

	srv := &http.Server{Addr: cfg.Sim.Port, Handler: mux}

	go func() {
		logger.Info("Feed simulator listening", zap.String("port", cfg.Sim.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancel()
	srv.Shutdown(context.Background())
	logger.Info("Shutdown Complete")
}
