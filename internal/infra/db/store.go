package db

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"proofsy/internal/config"
)

type Store struct {
	DB *gorm.DB
}

// NewStore opens Postgres when POSTGRES_DSN is set. Without a DSN the store
// has a nil DB and callers fall back to in-memory storage.
func NewStore(cfg config.Config, log *logrus.Entry) (*Store, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.PostgresDSN == "" {
		log.Warn("POSTGRES_DSN not set; starting in memory mode")
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.AutoMigrate {
		if err := Migrate(gdb); err != nil {
			return nil, err
		}
		log.Info("database schema migrated")
	}
	return &Store{DB: gdb}, nil
}

func (s *Store) Enabled() bool {
	return s != nil && s.DB != nil
}

func Migrate(gdb *gorm.DB) error {
	if gdb == nil {
		return errDBUnavailable
	}
	if err := gdb.AutoMigrate(&JobEventModel{}, &AnchorAttemptModel{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
