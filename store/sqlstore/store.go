// Package sqlstore is a Storage engine on SQLite through GORM, for platforms
// where a single database file is preferred over a BadgerDB directory.
package sqlstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Entry is one key/value row.
type Entry struct {
	Key       string `gorm:"column:kv_key;primaryKey;size:512"`
	Value     []byte
	UpdatedAt time.Time
}

// TableName keeps the table name stable.
func (Entry) TableName() string { return "kv_entries" }

// Store implements blogsync.Storage.
type Store struct {
	db *gorm.DB
}

// Open opens the database at path, creating parent directories. An empty path
// or ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	var dsn string
	switch p := strings.TrimSpace(path); {
	case p == "", strings.EqualFold(p, ":memory:"):
		dsn = "file::memory:"
	default:
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("sqlstore: create dir: %w", err)
		}
		dsn = p + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Set(key string, value []byte) error {
	entry := Entry{Key: key, Value: append([]byte{}, value...), UpdatedAt: time.Now().UTC()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kv_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (s *Store) Get(key string) ([]byte, bool, error) {
	var entry Entry
	err := s.db.Where("kv_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if entry.Value == nil {
		entry.Value = []byte{}
	}
	return entry.Value, true, nil
}

func (s *Store) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.Where("kv_key IN ?", keys).Delete(&Entry{}).Error
}

// Keys returns the keys with prefix in lexical order.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.Model(&Entry{}).
		Where("substr(kv_key, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix).
		Order("kv_key").
		Pluck("kv_key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
