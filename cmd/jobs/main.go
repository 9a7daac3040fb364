package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"commerce-service/config"
	"commerce-service/internal/app"
	"commerce-service/internal/jobs"
	"commerce-service/pkg/database"
	"commerce-service/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func usage() {
	fmt.Println("Usage: go run cmd/jobs/main.go [reminders|cancel|carts|loyalty|banksync|all]")
	fmt.Println("  reminders - payment reminders for unpaid orders")
	fmt.Println("  cancel    - cancel orders left unpaid too long")
	fmt.Println("  carts     - delete old empty carts")
	fmt.Println("  loyalty   - loyalty points reminders")
	fmt.Println("  banksync  - match bank statement to awaiting orders")
	fmt.Println("  all       - run every job")
}

func main() {
	_ = godotenv.Load()

	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log := logger.L()
	cfg := config.Load(log)

	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	application, err := app.New(cfg, db, log)
	if err != nil {
		log.Fatal("failed to build application", zap.Error(err))
	}
	defer application.Close()

	ctx := context.Background()

	name := os.Args[1]
	if name == "all" {
		log.Info("running all jobs")
		err = application.Runner.RunAll(ctx)
	} else {
		log.Info("running job", zap.String("job", name))
		err = application.Runner.Run(ctx, name)
	}
	if err != nil {
		if errors.Is(err, jobs.ErrUnknownJob) {
			usage()
		}
		log.Fatal("job failed", zap.String("job", name), zap.Error(err))
	}

	log.Info("jobs completed successfully")
}
