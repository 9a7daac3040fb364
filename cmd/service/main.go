package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-service/config"
	"commerce-service/internal/app"
	"commerce-service/internal/jobs"
	httptransport "commerce-service/internal/transport/http"
	"commerce-service/pkg/database"
	"commerce-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)
	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}

	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	application, err := app.New(cfg, db, log)
	if err != nil {
		log.Fatal("failed to build application", zap.Error(err))
	}
	defer application.Close()

	var scheduler *jobs.Scheduler
	jobsCtx, jobsCancel := context.WithCancel(context.Background())
	defer jobsCancel()
	if cfg.Jobs.Enabled {
		scheduler = jobs.NewScheduler(application.Runner, app.Intervals(cfg.Jobs), log)
		scheduler.Start(jobsCtx)
	}

	handler := httptransport.NewHandler(
		application.Carts, application.Checkout, application.Orders, application.Payments,
		httptransport.Options{
			PaymentReturnURL: cfg.Shop.PaymentReturnURL,
			BankSyncWindow:   cfg.Jobs.BankSyncWindow,
		},
		log,
	)
	verifier := httptransport.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           httptransport.Router(handler, verifier, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Starting HTTP server", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-quit
	log.Info("Shutting down HTTP server...")

	if scheduler != nil {
		scheduler.Stop()
	}
	jobsCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	log.Info("HTTP server stopped gracefully")
}
