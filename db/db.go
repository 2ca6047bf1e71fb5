package db

import (
	"fmt"
	"net/url"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

var (
	dbMaxOpenConns = 1
	dbOptions      = url.Values{
		// with this, multiple connections share a single data and schema cache.
		// see https://www.sqlite.org/sharedcache.html
		"cache": {"shared"},
		// with this, the db sleeps for a little while when locked. can prevent
		// a SQLITE_BUSY. see https://www.sqlite.org/c3ref/busy_timeout.html
		"_busy_timeout": {"30000"},
		"_journal_mode": {"WAL"},
		"_foreign_keys": {"true"},
	}
)

type DB struct {
	*gorm.DB
}

func New(path string) (*DB, error) {
	url := fmt.Sprintf("file:%s?%s", path, dbOptions.Encode())
	db, err := gorm.Open("sqlite3", url)
	if err != nil {
		return nil, fmt.Errorf("with gorm: %w", err)
	}
	db.LogMode(false)
	db.DB().SetMaxOpenConns(dbMaxOpenConns)
	return &DB{DB: db}, nil
}

func NewMock() (*DB, error) {
	return New(":memory:")
}

func (db *DB) WithTx(cb func(tx *gorm.DB) error) error {
	tx := db.Begin()
	if err := cb(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}
