// Package main applies the costledger schema.
//
// Usage:
//
//	migrate -cmd up
//	migrate -cmd down
//	migrate -cmd steps -n -1
//	migrate -cmd version
package main

import (
	"flag"
	"fmt"
	"os"

	"costledger/internal/config"
	"costledger/internal/infrastructure/storage/postgres/migrations"
	"costledger/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	command := flag.String("cmd", "up", "up, down, steps or version")
	steps := flag.Int("n", 1, "number of steps for -cmd steps; negative rolls back")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	m, err := migrations.New(cfg.Database.DSN, log.SugaredLogger)
	if err != nil {
		log.Fatalw("failed to open migrations", "error", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warnw("failed to close migrator", "error", err)
		}
	}()

	switch *command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		err = m.Steps(*steps)
	case "version":
		var (
			v     uint
			dirty bool
		)
		v, dirty, err = m.Version()
		if err == nil {
			log.Infow("schema version", "version", v, "dirty", dirty)
		}
	default:
		err = fmt.Errorf("unknown command %q", *command)
	}
	if err != nil {
		log.Errorw("migration failed", "cmd", *command, "error", err)
		os.Exit(1)
	}
}
