// cmd/worker/main.go
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/paylink-backend/internal/app"
	"github.com/javajoker/paylink-backend/internal/config"
	"github.com/javajoker/paylink-backend/internal/database"
	"github.com/javajoker/paylink-backend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal("Failed to load configuration: ", err)
	}
	app.ConfigureLogging(cfg.Log, cfg.Environment)

	if !cfg.Redis.Enabled() {
		logrus.Fatal("REDIS_ADDR is required to run the worker")
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.Fatal("Failed to initialize database: ", err)
	}
	defer database.Close(db)

	components, err := app.Build(db, cfg)
	if err != nil {
		logrus.Fatal("Failed to initialize services: ", err)
	}
	defer components.Close()

	sweeper := worker.NewSweeper(components.Provisioning, components.Scheduler, cfg.Worker.SweepGrace, cfg.Worker.SweepBatch)
	cron, err := sweeper.Start(cfg.Worker.SweepSchedule)
	if err != nil {
		logrus.Fatal("Failed to schedule provisioning sweep: ", err)
	}
	defer cron.Stop()

	handlers := worker.NewWorker(components.Ledger, components.Registry, components.Commissions, components.Provisioning)
	srv := worker.NewServer(app.RedisOpt(cfg.Redis), cfg.Worker.Concurrency)
	if err := srv.Start(handlers.Mux()); err != nil {
		logrus.Fatal("Failed to start worker: ", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down worker...")

	srv.Shutdown()
	logrus.Info("Worker exited")
}
