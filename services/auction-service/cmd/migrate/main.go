package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/services/auction-service/internal/config"
	"github.com/floroz/atelier/services/auction-service/migrations"
)

const usage = `usage: migrate [up|down|status|version|redo|reset|up-to VERSION|down-to VERSION]`

func main() {
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	command := "up"
	var args []string
	if flag.NArg() > 0 {
		command = flag.Arg(0)
		args = flag.Args()[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Database.URL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		log.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Error("Failed to set goose dialect", "error", err)
		os.Exit(1)
	}

	log.Info("Running migrations", "command", command)
	if err := goose.RunContext(context.Background(), command, db, ".", args...); err != nil {
		log.Error("Migration failed", "command", command, "error", err)
		os.Exit(1)
	}
	log.Info("Migrations complete", "command", command)
}
