package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sdko-org/beacon-analytics/internal/config"
	"github.com/sdko-org/beacon-analytics/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Handles separates the write path from the read path. For SQLite the writer
// is a single connection and readers get their own pool so WAL readers never
// queue behind an insert. For Postgres both point at the same pool.
type Handles struct {
	Writer *gorm.DB
	Reader *gorm.DB
}

type PostgresConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	DBName   string
	SSLMode  string
}

// Open connects to the configured driver and creates the schema if absent.
func Open(logger *logrus.Logger, cfg *config.Config) (*Handles, error) {
	switch cfg.DBDriver {
	case "sqlite", "sqlite3":
		return NewSQLiteDB(logger, cfg.SQLitePath, cfg.SQLiteReadConns)
	case "postgres", "postgresql":
		db, err := NewPostgresDB(logger, PostgresConfig{
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			DBName:   cfg.PostgresDatabase,
			SSLMode:  cfg.PostgresSSLMode,
		})
		if err != nil {
			return nil, err
		}
		return &Handles{Writer: db, Reader: db}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}

func NewSQLiteDB(logger *logrus.Logger, path string, readConns int) (*Handles, error) {
	log := logger.WithFields(logrus.Fields{
		"component": "database",
		"driver":    "sqlite",
		"path":      path,
	})

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"

	writer, err := gorm.Open(sqlite.Open(dsn+"&_txlock=immediate"), gormConfig(log))
	if err != nil {
		log.WithError(err).Error("Failed to open database")
		return nil, fmt.Errorf("database open failed: %w", err)
	}
	writerSQL, err := writer.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	writerSQL.SetMaxOpenConns(1)
	writerSQL.SetMaxIdleConns(1)

	if err := Migrate(writer); err != nil {
		writerSQL.Close()
		log.WithError(err).Error("Database migration failed")
		return nil, err
	}

	reader, err := gorm.Open(sqlite.Open(dsn+"&_query_only=true"), gormConfig(log))
	if err != nil {
		writerSQL.Close()
		return nil, fmt.Errorf("database open failed: %w", err)
	}
	readerSQL, err := reader.DB()
	if err != nil {
		writerSQL.Close()
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if readConns < 1 {
		readConns = 1
	}
	readerSQL.SetMaxOpenConns(readConns)
	readerSQL.SetMaxIdleConns(readConns)
	readerSQL.SetConnMaxLifetime(5 * time.Minute)

	log.WithField("read_conns", readConns).Info("Database opened")
	return &Handles{Writer: writer, Reader: reader}, nil
}

func NewPostgresDB(logger *logrus.Logger, cfg PostgresConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	log := logger.WithFields(logrus.Fields{
		"component": "database",
		"driver":    "postgres",
		"host":      cfg.Host,
		"database":  cfg.DBName,
	})

	var db *gorm.DB
	var err error
	const maxRetries = 5
	retryDelay := 2 * time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig(log))
		if err == nil {
			break
		}

		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("Database connection failed")

		if attempt < maxRetries {
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}

	if err != nil {
		log.WithError(err).Error("Failed to connect to database after retries")
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := Migrate(db); err != nil {
		log.WithError(err).Error("Database migration failed")
		return nil, err
	}

	log.Info("Database connection established")
	return db, nil
}

// Migrate creates both tables and their indexes. Safe to run on every start.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Pageview{}, &models.Event{}); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

// Close releases every pool behind h.
func (h *Handles) Close() error {
	var firstErr error
	for _, db := range []*gorm.DB{h.Writer, h.Reader} {
		sqlDB, err := db.DB()
		if err != nil {
			firstErr = err
			continue
		}
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if h.Writer == h.Reader {
			break
		}
	}
	return firstErr
}

func gormConfig(log *logrus.Entry) *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.New(log, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}
