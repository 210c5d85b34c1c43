package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gilkh/livret/internal/config"
	"github.com/gilkh/livret/internal/logging"
)

var DB *gorm.DB

var (
	ErrNotFound       = errors.New("record not found")
	ErrAlreadySigned  = errors.New("assignment already signed for this type")
	ErrNotSigned      = errors.New("assignment is not signed for this type")
	ErrInvalidPayload = errors.New("invalid payload")
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type     string // "sqlite", "postgres" or "mysql"
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	DataDir  string // For SQLite
}

// GetDatabaseConfig reads database configuration from environment variables
func GetDatabaseConfig() *DatabaseConfig {
	dbType := config.Get("DB_TYPE", "sqlite")
	defaultPort := 5432
	if dbType == "mysql" {
		defaultPort = 3306
	}
	return &DatabaseConfig{
		Type:     dbType,
		Host:     config.Get("DB_HOST", "localhost"),
		Port:     config.GetInt("DB_PORT", defaultPort),
		User:     config.Get("DB_USER", "livret"),
		Password: config.Get("DB_PASSWORD", ""),
		DBName:   config.Get("DB_NAME", "livret"),
		SSLMode:  config.Get("DB_SSLMODE", "disable"),
		DataDir:  config.Get("DATA_DIR", "/data"),
	}
}

// Initialize sets up the database connection and runs migrations
func Initialize() error {
	cfg := GetDatabaseConfig()

	db, err := Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	DB = db

	if err := RunMigrations(DB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.InfoWithComponent(logging.ComponentDatabase, "Database initialized", "type", cfg.Type)
	return nil
}

// Open connects to the configured relational database without migrating.
func Open(cfg *DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Type {
	case "postgres":
		return initPostgres(cfg)
	case "mysql":
		return initMySQL(cfg)
	case "sqlite":
		return initSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

func initPostgres(cfg *DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: getGormLogger()})
	if err != nil {
		return nil, err
	}
	return configurePool(db, 25, 5)
}

func initMySQL(cfg *DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: getGormLogger()})
	if err != nil {
		return nil, err
	}
	return configurePool(db, 25, 5)
}

func initSQLite(cfg *DatabaseConfig) (*gorm.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return openSQLite(filepath.Join(cfg.DataDir, "livret.db") + "?_pragma=foreign_keys(1)")
}

func openSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: getGormLogger()})
	if err != nil {
		return nil, err
	}

	// SQLite doesn't support concurrent writes
	db, err = configurePool(db, 1, 1)
	if err != nil {
		return nil, err
	}

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	var fkEnabled int
	if err := db.Raw("PRAGMA foreign_keys").Scan(&fkEnabled).Error; err != nil {
		return nil, fmt.Errorf("failed to check foreign keys status: %w", err)
	}
	if fkEnabled != 1 {
		return nil, fmt.Errorf("foreign keys are not enabled (got %d, expected 1)", fkEnabled)
	}
	return db, nil
}

// OpenMemory opens a migrated in-memory SQLite database. name isolates
// concurrent databases within one process.
func OpenMemory(name string) (*gorm.DB, error) {
	db, err := openSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name))
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

func configurePool(db *gorm.DB, maxOpen, maxIdle int) (*gorm.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func getGormLogger() logger.Interface {
	logLevel := logger.Warn
	if config.Get("GIN_MODE", "") == "debug" {
		logLevel = logger.Info
	}
	return logger.Default.LogMode(logLevel)
}

// notFound maps gorm's missing-record error to ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
