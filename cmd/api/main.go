package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"fairbet/internal/cache"
	"fairbet/internal/config"
	"fairbet/internal/database"
	"fairbet/internal/history"
	"fairbet/internal/ledger"
	"fairbet/internal/seeds"
	"fairbet/internal/server"
	"fairbet/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", "err", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})

	db, err := database.New(cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("connect postgres", "err", err)
	}
	redisSvc, err := cache.New(cfg.Redis, logger)
	if err != nil {
		logger.Fatal("connect redis", "err", err)
	}

	client := redisSvc.Client()
	srv := server.New(cfg, server.Deps{
		DB:      db,
		Cache:   redisSvc,
		Wallet:  ledger.NewRedisLedger(client),
		Seeds:   seeds.NewRedisRegistry(client),
		History: history.NewPostgresStore(db.Pool()),
		Store:   store.NewRedisStore(client),
		Logger:  logger,
	})
	srv.RegisterFiberRoutes()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	go srv.Hub().Run()

	g.Go(func() error {
		return srv.Crash().Run(gctx)
	})
	g.Go(func() error {
		return srv.Sweeper().Run(gctx)
	})
	g.Go(func() error {
		logger.Info("listening", "port", cfg.Port)
		return srv.Listen(fmt.Sprintf(":%d", cfg.Port))
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("exited with error", "err", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
