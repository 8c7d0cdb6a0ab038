package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Noname397/football-analysis/pkg/log"
	"github.com/Noname397/football-analysis/pkg/models"
	"github.com/Noname397/football-analysis/pkg/utils"
)

const (
	pageKeyPrefix   = "page:" // visit ledger entries
	objectKeyPrefix = "obj:"  // published object bodies
	metaKeyPrefix   = "meta:" // published object metadata (JSON)
)

// BadgerStore is the embedded store behind the visit ledger and the badger
// publish backend. Ledger entries never outlive a run; objects do.
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // pages claimed this run
}

// NewBadgerStore opens (or creates) the database in dir and clears any page
// ledger left by a previous run. An empty dir opens an in-memory database.
func NewBadgerStore(dir string, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{log: logger}

	opts := badger.DefaultOptions(dir).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dir, err)
	}

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at '%s': %w", utils.ErrDatabase, dir, err)
	}

	if err := store.db.DropPrefix([]byte(pageKeyPrefix)); err != nil {
		store.db.Close()
		return nil, fmt.Errorf("%w: clearing previous page ledger: %w", utils.ErrDatabase, err)
	}

	logger.WithFields(logrus.Fields{"dir": dir, "in_memory": dir == ""}).Info("Badger store initialized")
	return store, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Both crawl branches write the ledger concurrently; conflicts resolve in microseconds.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// MarkPageVisited implements PageLedger
func (s *BadgerStore) MarkPageVisited(key string) (bool, error) {
	added := false
	dbKey := []byte(pageKeyPrefix + key)

	err := s.dbUpdate(func(txn *badger.Txn) error {
		added = false
		_, errGet := txn.Get(dbKey)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			if errSet := txn.SetEntry(badger.NewEntry(dbKey, []byte{})); errSet != nil {
				return errSet
			}
			added = true
			return nil
		}
		return errGet
	})
	if err != nil {
		s.log.WithField("key", string(dbKey)).Errorf("DB Update error in MarkPageVisited: %v", err)
		return false, fmt.Errorf("%w: marking page key '%s': %w", utils.ErrDatabase, string(dbKey), err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// CheckPageStatus implements PageLedger
func (s *BadgerStore) CheckPageStatus(key string) (models.PageStatus, *models.PageDBEntry, error) {
	status := models.PageStatusNotFound
	var entry *models.PageDBEntry
	dbKey := []byte(pageKeyPrefix + key)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(dbKey)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting page key '%s': %w", utils.ErrDatabase, string(dbKey), errGet)
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				status = models.PageStatusPending // claimed, no outcome yet
				return nil
			}
			var decoded models.PageDBEntry
			if errJSON := json.Unmarshal(val, &decoded); errJSON != nil {
				s.log.Warnf("Failed to unmarshal PageDBEntry for key '%s': %v. Treating as 'pending'.", string(dbKey), errJSON)
				status = models.PageStatusPending
				return nil
			}
			entry = &decoded
			status = decoded.Status
			return nil
		})
	})
	if errView != nil {
		s.log.Errorf("DB View error in CheckPageStatus for key '%s': %v", string(dbKey), errView)
		return models.PageStatusDBError, nil, errView
	}
	return status, entry, nil
}

// UpdatePageStatus implements PageLedger
func (s *BadgerStore) UpdatePageStatus(key string, entry *models.PageDBEntry) error {
	dbKey := []byte(pageKeyPrefix + key)

	entryBytes, errJSON := json.Marshal(entry)
	if errJSON != nil {
		return fmt.Errorf("%w: failed to marshal PageDBEntry for key '%s': %w", utils.ErrParsing, string(dbKey), errJSON)
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(dbKey)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		return txn.SetEntry(badger.NewEntry(dbKey, entryBytes))
	})
	if err != nil {
		s.log.WithField("key", string(dbKey)).Errorf("DB Update error in UpdatePageStatus: %v", err)
		return fmt.Errorf("%w: failed setting page status for key '%s': %w", utils.ErrDatabase, string(dbKey), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	s.log.Debugf("Updated page status for key '%s' to '%s'", string(dbKey), entry.Status)
	return nil
}

// GetVisitedCount implements PageLedger
func (s *BadgerStore) GetVisitedCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// PutObject implements ObjectStore. Body and metadata are written in one transaction.
func (s *BadgerStore) PutObject(ctx context.Context, path string, content []byte, contentType string) (models.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return models.ObjectMeta{}, err
	}
	meta := models.ObjectMeta{
		Path:        path,
		ContentType: contentType,
		Size:        len(content),
		SHA256:      utils.CalculateStringSHA256(string(content)),
		PublishedAt: time.Now().UTC(),
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return models.ObjectMeta{}, fmt.Errorf("%w: failed to marshal object metadata for '%s': %w", utils.ErrParsing, path, err)
	}

	err = s.dbUpdate(func(txn *badger.Txn) error {
		if err := txn.SetEntry(badger.NewEntry([]byte(objectKeyPrefix+path), content)); err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry([]byte(metaKeyPrefix+path), metaBytes))
	})
	if err != nil {
		return models.ObjectMeta{}, fmt.Errorf("%w: writing object '%s': %w", utils.ErrDatabase, path, err)
	}
	return meta, nil
}

// GetObject implements ObjectStore. A missing object returns (nil, nil, nil).
func (s *BadgerStore) GetObject(ctx context.Context, path string) ([]byte, *models.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	var content []byte
	var meta *models.ObjectMeta

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(objectKeyPrefix + path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if content, err = item.ValueCopy(nil); err != nil {
			return err
		}

		metaItem, err := txn.Get([]byte(metaKeyPrefix + path))
		if err != nil {
			return err
		}
		return metaItem.Value(func(val []byte) error {
			var m models.ObjectMeta
			if err := json.Unmarshal(val, &m); err != nil {
				return fmt.Errorf("%w: object metadata for '%s': %w", utils.ErrParsing, path, err)
			}
			meta = &m
			return nil
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading object '%s': %w", utils.ErrDatabase, path, err)
	}
	return content, meta, nil
}

// ListObjects implements ObjectStore, in key order
func (s *BadgerStore) ListObjects(ctx context.Context, prefix string) ([]models.ObjectMeta, error) {
	var out []models.ObjectMeta
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seek := []byte(metaKeyPrefix + prefix)
		for it.Seek(seek); it.ValidForPrefix(seek); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var m models.ObjectMeta
				if err := json.Unmarshal(val, &m); err != nil {
					return err
				}
				out = append(out, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing objects under '%s': %w", utils.ErrDatabase, prefix, err)
	}
	return out, nil
}

// RunGC runs BadgerDB's value log garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for err == nil {
				// Rewrite while at least half of a log file is reclaimable
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// WriteVisitedLog writes one claimed page key per line
func (s *BadgerStore) WriteVisitedLog(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create visited log '%s': %w", filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	written := 0
	prefix := []byte(pageKeyPrefix)
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, err := writer.WriteString(string(bytes.TrimPrefix(key, prefix)) + "\n"); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: writing visited log: %w", utils.ErrDatabase, err)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	s.log.Infof("Wrote %d page keys to visited log: %s", written, filePath)
	return file.Sync()
}

// Close implements StoreAdmin
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing badger DB: %v", err)
		return err
	}
	return nil
}
