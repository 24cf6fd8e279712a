package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edvin/backuprelay/internal/api"
	"github.com/edvin/backuprelay/internal/config"
	"github.com/edvin/backuprelay/internal/db"
	"github.com/edvin/backuprelay/internal/dbhttp"
	"github.com/edvin/backuprelay/internal/logging"
	"github.com/edvin/backuprelay/internal/storage"
)

func main() {
	initSchemaFlag := flag.Bool("init-schema", false, "Apply the database schema before starting")
	schemaFileFlag := flag.String("schema-file", "schema.sql", "Schema file to apply with -init-schema")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	queryClient := dbhttp.New(cfg.QueryEndpoint, cfg.QueryToken, logger)
	store := storage.New(cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey, logger)

	if *initSchemaFlag {
		logger.Info().Str("file", *schemaFileFlag).Msg("applying database schema")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.ApplySchema(ctx, queryClient, *schemaFileFlag); err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("schema apply failed")
		}
		cancel()
	}

	srv := api.NewServer(logger, queryClient, store, cfg)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		// Reads are generous to let slow agents finish multi-megabyte
		// archive uploads.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting relay API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}
