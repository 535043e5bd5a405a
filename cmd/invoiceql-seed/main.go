package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowbit/invoiceql/internal/config"
	"github.com/flowbit/invoiceql/internal/database"
	"github.com/flowbit/invoiceql/internal/migrations"
	"github.com/flowbit/invoiceql/internal/observability"
	"github.com/flowbit/invoiceql/internal/seed"
	"github.com/flowbit/invoiceql/internal/storage"
	s3store "github.com/flowbit/invoiceql/internal/storage/s3"
)

func main() {
	file := flag.String("file", "", "path to the extracted invoice dataset (JSON array)")
	objectKey := flag.String("object-key", "", "object store key of the dataset")
	migrate := flag.Bool("migrate", true, "apply pending schema migrations before loading")
	flag.Parse()

	cfg, err := config.LoadFromEnv("invoiceql-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.DBConfig{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		logger.Error("failed to open invoice database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if *migrate {
		applied, err := migrations.NewRunner().Up(ctx, db, 0)
		if err != nil {
			logger.Error("schema migration failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("schema ready", slog.Int("applied", applied))
	}

	var objectStore storage.ObjectStore
	if *objectKey != "" {
		objectStore, err = s3store.New(ctx, s3store.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			Bucket:          cfg.ObjectStore.Bucket,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Prefix:          cfg.ObjectStore.Prefix,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
	}

	source, err := seed.Open(ctx, seed.Source{File: *file, ObjectKey: *objectKey}, objectStore)
	if err != nil {
		logger.Error("failed to open dataset", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = source.Close() }()

	result, err := seed.NewLoader(db, logger).Run(ctx, source)
	if err != nil {
		logger.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Printf("inserted %d invoice(s), skipped %d record(s)\n", result.Inserted, result.Skipped)
}
