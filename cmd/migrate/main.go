package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/felttable/venuepipe/pkg/db/migrations"
)

func main() {
	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	createDesc := createCmd.String("desc", "", "Description of the migration")
	createDir := createCmd.String("dir", "migrations", "Directory for migration files")

	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	migrateDir := migrateCmd.String("dir", "migrations", "Directory containing migration files")
	migrateDB := migrateCmd.String("db", "data/venuepipe.db", "Path to SQLite database")

	if len(os.Args) < 2 {
		fmt.Println("Expected 'create' or 'migrate' subcommand")
		os.Exit(1)
	}

	logger := logrus.New()

	switch os.Args[1] {
	case "create":
		createCmd.Parse(os.Args[2:])
		if *createDesc == "" {
			fmt.Println("Missing required -desc flag")
			createCmd.Usage()
			os.Exit(1)
		}
		createNewMigration(logger, *createDir, *createDesc)

	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		applyMigrations(logger, *migrateDir, *migrateDB)

	default:
		fmt.Printf("Unknown subcommand: %s\n", os.Args[1])
		fmt.Println("Expected 'create' or 'migrate' subcommand")
		os.Exit(1)
	}
}

func createNewMigration(logger *logrus.Logger, dir, description string) {
	migrator := migrations.NewMigrator(nil, dir, logger)

	filePath, err := migrator.CreateMigration(description)
	if err != nil {
		logger.WithError(err).Fatal("failed to create migration")
	}

	logger.WithField("file", filePath).Info("created migration")
}

func applyMigrations(logger *logrus.Logger, dir, dbPath string) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.WithError(err).Fatal("failed to create database directory")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	migrator := migrations.NewMigrator(db, dir, logger)
	if err := migrator.MigrateUp(); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	logger.Info("migrations complete")
}
