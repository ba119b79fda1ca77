package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/iqc-intake-api/internal/repository"
	"github.com/noah-isme/iqc-intake-api/internal/service"
	"github.com/noah-isme/iqc-intake-api/pkg/config"
	"github.com/noah-isme/iqc-intake-api/pkg/database"
	"github.com/noah-isme/iqc-intake-api/pkg/logger"
)

// seed applies migrations and ensures the default student, teacher and iqc accounts exist.
func main() {
	var (
		password string
		migrate  bool
		timeout  time.Duration
	)

	flag.StringVar(&password, "password", "", "Password for newly created accounts (defaults to SEED_DEFAULT_PASSWORD)")
	flag.BoolVar(&migrate, "migrate", true, "Apply pending migrations first")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if password == "" {
		password = cfg.Seed.DefaultPassword
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	if migrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("run migrations", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	auth := service.NewAuthService(repository.NewUserRepository(db), validator.New(), logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	})
	created, err := auth.SeedDefaults(ctx, password)
	if err != nil {
		logr.Fatal("seed default accounts", zap.Error(err))
	}
	if len(created) == 0 {
		logr.Info("default accounts already present")
		return
	}
	logr.Info("default accounts created", zap.Strings("usernames", created))
}
