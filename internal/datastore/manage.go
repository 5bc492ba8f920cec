package datastore

import (
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kinderlab/tnsmarshal/internal/errors"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow. One second accommodates migration batch queries.
const DefaultSlowQueryThreshold = 1 * time.Second

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger(debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return gormlogger.Default.LogMode(level)
}

// performAutoMigration runs GORM automigration for every model and wraps
// failures with the backend identity for diagnostics.
func performAutoMigration(db *gorm.DB, logger *slog.Logger, backend, connectionInfo string) error {
	if err := db.AutoMigrate(
		&TransientObject{},
		&CrossMatchResult{},
		&PhotometryPoint{},
		&SpectrumPoint{},
		&DownloadLog{},
		&DESIGalaxy{},
	); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("backend", backend).
			Context("connection", connectionInfo).
			Build()
	}

	// The two lens catalogs share one model under different table names,
	// which AutoMigrate cannot express directly.
	for _, table := range []string{TableLensHsu, TableLensKarp} {
		if err := db.Table(table).AutoMigrate(&LensCandidate{}); err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("backend", backend).
				Context("table", table).
				Build()
		}
	}

	if logger != nil {
		logger.Debug("Database schema migrated", "backend", backend)
	}
	return nil
}

func (ds *DataStore) logger() *slog.Logger {
	if ds.Logger != nil {
		return ds.Logger
	}
	return slog.Default()
}
