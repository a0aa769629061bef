package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/config"
	"github.com/ariefcatur/go-pos-ledger/internal/logger"
	"github.com/ariefcatur/go-pos-ledger/internal/postgres"
)

const usage = "usage: migrate up | down | version | force <version>"

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	mg, err := postgres.NewMigrator(cfg.Database.DSN, log.Named("migrate"))
	if err != nil {
		log.Fatal("open migrator", zap.Error(err))
	}
	defer func() { _ = mg.Close() }()

	switch os.Args[1] {
	case "up":
		err = mg.Up()
	case "down":
		err = mg.Down()
	case "version":
		var v uint
		var dirty bool
		v, dirty, err = mg.Version()
		if err == nil {
			fmt.Printf("version=%d dirty=%t\n", v, dirty)
		}
	case "force":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		var n int
		n, err = strconv.Atoi(os.Args[2])
		if err == nil {
			err = mg.Force(n)
		}
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal("migrate", zap.String("cmd", os.Args[1]), zap.Error(err))
	}
}
