// Package store persists users, posts, categories and the post/category
// association. Every write runs in one transaction; relations are only
// loaded through LoadRelations.
package store

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"gorm.io/gorm"

	"inkwell/models"
)

// Hasher produces and verifies password hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Check(password, hash string) bool
}

type Store struct {
	db     *gorm.DB
	hasher Hasher
	now    func() time.Time

	// registerMu serialises the user-count check and the insert that
	// decide who becomes the first admin.
	registerMu sync.Mutex
}

type Option func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(db *gorm.DB, hasher Hasher, opts ...Option) *Store {
	s := &Store{
		db:     db,
		hasher: hasher,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the handle for read-only query builders such as listing.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(kind string, id uint) error {
	return fmt.Errorf("%s %d: %w", kind, id, models.ErrNotFound)
}

func lookupErr(err error, kind string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(kind, id)
	}
	return err
}

var uniqueFailed = regexp.MustCompile(`UNIQUE constraint failed: \w+\.(\w+)`)

// uniqueViolation turns a storage-level unique index failure into a
// ConflictError. It backs the check-then-insert pre-checks.
func uniqueViolation(err error, values map[string]string) error {
	if err == nil {
		return nil
	}
	if m := uniqueFailed.FindStringSubmatch(err.Error()); m != nil {
		return &models.ConflictError{Field: m[1], Value: values[m[1]]}
	}
	return err
}

// ensureUnique is the pre-insert check; the unique index still decides
// under concurrent writers.
func ensureUnique(tx *gorm.DB, model any, column, value string) error {
	var count int64
	if err := tx.Model(model).Where(column+" = ?", value).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return &models.ConflictError{Field: column, Value: value}
	}
	return nil
}
