package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"appointment-booking-api/internal/logging"
	"appointment-booking-api/internal/store"
)

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	log := logging.New("migrate", env("LOG_LEVEL", "info"), env("LOG_FORMAT", "text"))

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	m, err := store.NewMigrator(dbURL, log)
	if err != nil {
		log.WithError(err).Fatal("migration init failed")
	}
	defer m.Close()

	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.WithError(err).Fatal("up failed")
		}
		log.Info("migrations: up completed")

	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				log.Fatalf("down: invalid steps argument %q", args[1])
			}
			steps = n
		}
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.WithError(err).Fatal("down failed")
		}
		log.WithField("steps", steps).Info("migrations: down completed")

	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("version: none")
			return
		}
		if err != nil {
			log.WithError(err).Fatal("version failed")
		}
		fmt.Printf("version: %d  dirty: %v\n", v, dirty)

	case "force":
		if len(args) < 2 {
			log.Fatal("force: version argument required")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("force: invalid version %q", args[1])
		}
		if err := m.Force(v); err != nil {
			log.WithError(err).Fatal("force failed")
		}
		log.WithFields(logrus.Fields{"version": v}).Info("migrations: forced")

	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: migrate <command> [args]

Commands:
  up           Apply all pending migrations
  down [N]     Roll back N migrations (default: 1)
  version      Print the current migration version
  force <V>    Set the version without running migrations (clears dirty state)

Environment:
  DATABASE_URL   Required. PostgreSQL DSN.`)
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
