package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"auxroom/internal/app"
	"auxroom/internal/ui"
)

func main() {
	flagSet := flag.NewFlagSet("auxroom", flag.ExitOnError)
	server := flagSet.String("server", envOrDefault("AUXROOM_SERVER", "http://localhost:8080"), "room server base URL (http(s) or ws(s))")
	name := flagSet.String("name", envOrDefault("AUXROOM_NAME", ""), "display name override for first runs")
	db := flagSet.String("db", envOrDefault("AUXROOM_DB_PATH", ""), "sqlite database path (defaults to a per-user path)")
	logPath := flagSet.String("log", envOrDefault("AUXROOM_LOG_PATH", ""), "log file path (empty discards logs)")
	flagSet.Parse(os.Args[1:])

	cfg := app.Config{
		ServerURL: *server,
		Name:      *name,
		DBPath:    *db,
		LogPath:   *logPath,
	}
	if cfg.DBPath == "" {
		cfg.DBPath = app.DefaultDBPath()
	}
	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join(filepath.Dir(cfg.DBPath), "auxroom.log")
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "auxroom: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg app.Config) error {
	log, closeLog, err := app.OpenLogger(cfg.LogPath)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	session, err := app.NewSession(context.Background(), cfg, log)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.Close()

	return ui.Run(session)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
