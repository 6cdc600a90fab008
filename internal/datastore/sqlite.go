package datastore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jhansche/ha-birdbuddy/internal/logging"
)

// SQLiteStore implements Interface backed by a local SQLite database.
type SQLiteStore struct {
	path   string
	db     *gorm.DB
	logger *slog.Logger
}

var _ Interface = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store for the given database path. Open must be
// called before use.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{
		path:   path,
		logger: logging.ForService("datastore"),
	}
}

// Open connects to the database and migrates the schema.
func (s *SQLiteStore) Open() error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating datastore directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("opening sqlite database %s: %w", s.path, err)
	}

	if err := db.AutoMigrate(&FeedCursor{}, &VisitorSnapshot{}); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	s.db = db
	s.logger.Info("datastore opened", "path", s.path)
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetFeedCursor returns the persisted feed position, or the zero time when
// none has been saved yet.
func (s *SQLiteStore) GetFeedCursor() (time.Time, error) {
	var cursor FeedCursor
	err := s.db.First(&cursor, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("loading feed cursor: %w", err)
	}
	return cursor.LastSeen, nil
}

// SaveFeedCursor persists the feed position, overwriting the previous one.
func (s *SQLiteStore) SaveFeedCursor(lastSeen time.Time) error {
	cursor := FeedCursor{ID: 1, LastSeen: lastSeen}
	if err := s.db.Save(&cursor).Error; err != nil {
		return fmt.Errorf("saving feed cursor: %w", err)
	}
	return nil
}

// GetVisitorSnapshot returns the persisted visitor state for one feeder, or
// nil when none exists.
func (s *SQLiteStore) GetVisitorSnapshot(feederID string) (*VisitorSnapshot, error) {
	var snapshot VisitorSnapshot
	err := s.db.First(&snapshot, "feeder_id = ?", feederID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading visitor snapshot for %s: %w", feederID, err)
	}
	return &snapshot, nil
}

// GetAllVisitorSnapshots returns the persisted visitor state of every
// feeder.
func (s *SQLiteStore) GetAllVisitorSnapshots() ([]VisitorSnapshot, error) {
	var snapshots []VisitorSnapshot
	if err := s.db.Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("loading visitor snapshots: %w", err)
	}
	return snapshots, nil
}

// SaveVisitorSnapshot persists a feeder's visitor state, replacing any
// previous snapshot for the same feeder.
func (s *SQLiteStore) SaveVisitorSnapshot(snapshot *VisitorSnapshot) error {
	snapshot.UpdatedAt = time.Now()
	if err := s.db.Save(snapshot).Error; err != nil {
		return fmt.Errorf("saving visitor snapshot for %s: %w", snapshot.FeederID, err)
	}
	return nil
}
