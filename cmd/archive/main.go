// Command archive runs one archive pass from a terminal with the same
// environment configuration the Lambda function uses.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"gmail-archiver/internal/app"
	"gmail-archiver/internal/config"
	"gmail-archiver/internal/usecase"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load if present")
	query := flag.String("query", "", "Gmail search query, e.g. 'in:inbox is:unread newer_than:1d'")
	namespace := flag.String("namespace", "", "namespace segment under gmail/ in the bucket")
	flag.Parse()

	if err := run(*envFile, *query, *namespace); err != nil {
		fmt.Fprintln(os.Stderr, "archive:", err)
		os.Exit(1)
	}
}

func run(envFile, query, namespace string) error {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := app.NewLogger(os.Stderr, cfg.LogLevel)

	svc, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	summary, err := svc.Archive(ctx, usecase.ArchiveInput{Filter: query, Namespace: namespace})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
