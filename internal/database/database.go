package database

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gamelobby/backend/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlitePrefix selects the embedded SQLite driver, e.g. "sqlite://lobby.db".
const sqlitePrefix = "sqlite://"

// Options tweak how the connection is opened.
type Options struct {
	// LogLevel overrides the SQL logger level. Zero means logger.Warn.
	LogLevel logger.LogLevel
}

// Connect opens a database connection. DSNs starting with sqlite:// use the
// embedded SQLite driver, everything else is handed to PostgreSQL.
func Connect(dsn string, opts ...Options) (*gorm.DB, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.LogLevel == 0 {
		opt.LogLevel = logger.Warn
	}

	// Configure GORM logger
	customLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             200 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  opt.LogLevel,
			IgnoreRecordNotFoundError: true, // Ignore ErrRecordNotFound error for logger
			Colorful:                  true,
		},
	)

	config := &gorm.Config{
		Logger:         customLogger,
		TranslateError: true,
	}

	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		return connectSQLite(path, config)
	}

	db, err := gorm.Open(postgres.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established.")
	return db, nil
}

func connectSQLite(path string, config *gorm.Config) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
	db, err := gorm.Open(sqlite.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows a single writer; one connection keeps transactions
	// from failing with SQLITE_BUSY under concurrent requests.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	log.Printf("SQLite database opened at %s.", path)
	return db, nil
}

// Migrate creates or updates the schema for every model.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(&models.User{}, &models.Player{}, &models.Lobby{}, &models.Game{}, &models.GameParticipant{})
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("Database migrated successfully.")
	return nil
}
