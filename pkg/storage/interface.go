package storage

import (
	"context"
	"time"

	"github.com/Noname397/football-analysis/pkg/models"
)

// PageLedger records which pages a run has claimed and how they ended.
// Keys are ledger keys from parse.NormalizeURL.
type PageLedger interface {
	// MarkPageVisited claims a page (pending state)
	// Returns true if the key was newly added, false if another branch or team already claimed it
	MarkPageVisited(key string) (bool, error)

	// CheckPageStatus returns the stored status (PageStatusNotFound when absent,
	// PageStatusDBError on storage failure) and the entry if one was recorded
	CheckPageStatus(key string) (status models.PageStatus, entry *models.PageDBEntry, err error)

	// UpdatePageStatus records the outcome for a page
	UpdatePageStatus(key string, entry *models.PageDBEntry) error

	// GetVisitedCount returns the number of pages claimed so far
	GetVisitedCount() (int, error)
}

// ObjectStore holds published objects addressed by slash-separated paths
type ObjectStore interface {
	PutObject(ctx context.Context, path string, content []byte, contentType string) (models.ObjectMeta, error)
	GetObject(ctx context.Context, path string) ([]byte, *models.ObjectMeta, error)
	ListObjects(ctx context.Context, prefix string) ([]models.ObjectMeta, error)
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// WriteVisitedLog writes all claimed page keys to the specified file path
	WriteVisitedLog(filePath string) error

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the underlying database
	Close() error
}
