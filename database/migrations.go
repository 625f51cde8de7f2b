package database

import (
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"inkwell/models"
)

func RunMigrations(db *gorm.DB, log zerolog.Logger) error {
	log.Info().Msg("running database migrations")

	err := db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Category{},
		&models.PostCategory{},
	)

	if err != nil {
		log.Error().Err(err).Msg("migrations failed")
		return err
	}

	log.Info().Msg("migrations completed")
	return nil
}
