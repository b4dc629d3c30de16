// Package main is the entry point for the link pipeline service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/linkpipe/linkpipe/internal/app"
	"github.com/linkpipe/linkpipe/internal/logger"
)

var (
	// version can be set at build time via -ldflags
	version = "dev"
)

const flushCacheTimeout = 30 * time.Second

func main() {
	// A missing .env is fine; real deployments set the environment.
	_ = godotenv.Load()

	var configPath string
	var flushCache bool
	flag.StringVar(&configPath, "config", "config.yml", "Path to configuration file")
	flag.BoolVar(&flushCache, "flush-cache", false, "Flush Redis seen-URL cache and exit")
	flag.Parse()

	application, err := app.New(app.Options{
		ConfigPath: configPath,
		Version:    version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := application.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to close application: %v\n", closeErr)
		}
	}()

	if flushCache {
		ctx, cancel := context.WithTimeout(context.Background(), flushCacheTimeout)
		defer cancel()

		flushed, flushErr := application.FlushCache(ctx)
		if flushErr != nil {
			application.Logger().Error("Failed to flush cache", logger.Error(flushErr))
			os.Exit(1)
		}

		application.Logger().Info("Cache flushed", logger.Int64("keys", flushed))
		return
	}

	if runErr := application.Run(context.Background()); runErr != nil {
		application.Logger().Error("Application error", logger.Error(runErr))
		os.Exit(1)
	}
}
