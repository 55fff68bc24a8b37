package store

import (
	"fmt"
	"strings"
	"version-registry/config"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database, runs the migration and returns
// the store. TranslateError is required so that unique-constraint
// violations arrive as gorm.ErrDuplicatedKey on every driver.
func Open() *Store {
	var dialector gorm.Dialector

	switch config.Cfg.Database.Driver {
	case "sqlite":
		log.Debug().
			Str("path", config.Cfg.Database.Path).
			Msg("Opening sqlite database")
		dialector = sqlite.Open(config.Cfg.Database.Path)
	case "postgres", "":
		dsn := fmt.Sprintf(
			"host='%s' port='%d' user='%s' password='%s' dbname='%s' sslmode='%s'",
			config.Cfg.Database.Host,
			config.Cfg.Database.Port,
			config.Cfg.Database.Username,
			config.Cfg.Database.Password,
			config.Cfg.Database.Database,
			config.Cfg.Database.SSLMode,
		)

		dsnRedacted := strings.ReplaceAll(dsn, config.Cfg.Database.Password, "*****")
		log.Debug().
			Msgf("Connecting to postgres using the following information: %s", dsnRedacted)
		dialector = postgres.Open(dsn)
	default:
		log.Fatal().
			Str("driver", config.Cfg.Database.Driver).
			Msg("Unknown database driver")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to the database")
	}

	log.Debug().Msg("Successfully connected to the database")

	s := New(db)
	if err := s.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	return s
}
