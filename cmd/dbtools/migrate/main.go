// cmd/dbtools/migrate/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"

	"github.com/ablego/ablego/internal/config"
	"github.com/ablego/ablego/internal/db"
)

func main() {
	var (
		dbPath     = flag.String("db", "", "Path to SQLite database (overrides -config)")
		configPath = flag.String("config", "", "Path to YAML configuration file")
		command    = flag.String("command", "", "Command to run (up, down, version)")
	)
	flag.Parse()

	if *command == "" || (*dbPath == "" && *configPath == "") {
		flag.Usage()
		os.Exit(1)
	}

	path := *dbPath
	if path == "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to read config: %v", err)
		}
		cfg, err := config.Parse(data)
		if err != nil {
			log.Fatalf("Failed to parse config: %v", err)
		}
		if cfg.Database.Filename == "" {
			log.Fatalf("Config does not set database.filename")
		}
		path = cfg.Database.Filename
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	m, err := db.OpenMigrator(path)
	if err != nil {
		log.Fatalf("Migration init failed: %v", err)
	}
	defer m.Close()

	switch *command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration up failed: %v", err)
		}
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration down failed: %v", err)
		}
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("Version: none")
			return
		}
		if err != nil {
			log.Fatalf("Get version failed: %v", err)
		}
		fmt.Printf("Version: %d, Dirty: %v\n", version, dirty)
	default:
		log.Fatalf("Unknown command: %s", *command)
	}
}
