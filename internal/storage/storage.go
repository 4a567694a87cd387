// Package storage defines the post record store and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"hntldr/internal/model"
)

var (
	// ErrAlreadyExists is returned when a story is recorded twice.
	// Under correct sequencing this never happens.
	ErrAlreadyExists = errors.New("post record already exists")

	// ErrNotFound is returned when a post record does not exist.
	ErrNotFound = errors.New("post record not found")
)

// Storage is the interface for all persistence operations.
type Storage interface {
	Exists(ctx context.Context, storyID string) (bool, error)
	Record(ctx context.Context, rec model.PostRecord) error
	Touch(ctx context.Context, storyID string, score, comments int, now time.Time) error
	Get(ctx context.Context, storyID string) (*model.PostRecord, error)
	RecentlyPosted(ctx context.Context, window time.Duration) ([]model.PostRecord, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}
