package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"github.com/felttable/venuepipe/internal/config"
	"github.com/felttable/venuepipe/internal/logging"
	"github.com/felttable/venuepipe/pkg/repositories/instance"
	"github.com/felttable/venuepipe/pkg/repositories/template"
	"github.com/felttable/venuepipe/pkg/repositories/tournament"
	"github.com/felttable/venuepipe/pkg/scheduler"
	"github.com/felttable/venuepipe/pkg/services/instances"
	"github.com/felttable/venuepipe/pkg/services/resolver"
	"github.com/felttable/venuepipe/pkg/storage"
	"github.com/felttable/venuepipe/pkg/storage/file"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg)

	db, err := sql.Open("sqlite3", cfg.SQLitePath)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	templateRepo, err := template.NewSQLiteRepositoryFromDB(db)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize template repository")
	}

	tournamentRepo, err := tournament.NewSQLiteRepositoryFromDB(db)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize tournament repository")
	}

	var instanceRepo instance.Repository
	sqliteInstances, err := instance.NewSQLiteRepositoryFromDB(db)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize instance repository")
	}
	instanceRepo = sqliteInstances

	if cfg.ESURL != "" {
		esRepo, err := instance.NewElasticsearchRepository(sqliteInstances, &instance.ElasticsearchConfig{
			URL:         cfg.ESURL,
			Username:    cfg.ESUsername,
			Password:    cfg.ESPassword,
			IndexPrefix: cfg.ESIndexPrefix,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("Elasticsearch unavailable, continuing with SQLite only")
		} else {
			instanceRepo = esRepo
			logger.WithField("url", cfg.ESURL).Info("instance indexing enabled")
		}
	}

	instanceService := instances.NewService(instanceRepo, templateRepo, tournamentRepo, logger)
	resolverService := resolver.NewService(templateRepo, tournamentRepo, cfg.Matching, cfg.Bulk, logger)

	archiveOptions := storage.NewOptions()
	archiveOptions.Path = filepath.Join(cfg.DataDir, "reports.json")
	archive, err := file.New(archiveOptions, logger)
	if err != nil {
		logger.WithError(err).Warn("report archive unavailable, maintenance reports will be log-only")
		archive = nil
	} else {
		defer archive.Close()
	}

	maintenance := scheduler.NewMaintenanceScheduler(instanceService, resolverService, archiveArg(archive), cfg.Venues, logger)
	maintenance.Start(context.Background())
	defer maintenance.Stop()

	if len(cfg.Venues) == 0 {
		logger.Warn("VENUE_IDS is empty, maintenance scheduler has nothing to audit")
	}

	logger.WithFields(map[string]interface{}{
		"environment": cfg.Environment,
		"venues":      len(cfg.Venues),
	}).Info("venuepipe is running, press CTRL-C to exit")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Info("shutting down")
}

// archiveArg keeps a failed *file.Archive from becoming a non-nil interface
func archiveArg(archive *file.Archive) storage.Archive {
	if archive == nil {
		return nil
	}
	return archive
}
