package common

import (
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"inkwell/database"
)

func ConnectDb(cfg *Config, log zerolog.Logger) (*gorm.DB, error) {
	log.Debug().Str("sqlite_db", cfg.SqliteDB).Msg("connecting to database")

	db, err := database.Open(cfg.SqliteDB)
	if err != nil {
		log.Error().Err(err).Msg("error opening sqlite db")
		return nil, err
	}

	log.Info().Str("sqlite_db", cfg.SqliteDB).Msg("opened sqlite db")
	return db, nil
}
