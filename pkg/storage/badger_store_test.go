package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noname397/football-analysis/pkg/models"
	"github.com/Noname397/football-analysis/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewBadgerStore(t *testing.T) {
	t.Run("fresh start has zero count", func(t *testing.T) {
		store := newTestStore(t)
		count, err := store.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("in-memory when dir is empty", func(t *testing.T) {
		store, err := NewBadgerStore("", testLogger())
		require.NoError(t, err)
		defer store.Close()

		added, err := store.MarkPageVisited("fbref.com/en/players/abc")
		require.NoError(t, err)
		assert.True(t, added)
	})

	t.Run("reopen clears ledger but keeps objects", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()

		store1, err := NewBadgerStore(dir, testLogger())
		require.NoError(t, err)
		_, err = store1.MarkPageVisited("fbref.com/en/players/abc")
		require.NoError(t, err)
		_, err = store1.PutObject(ctx, "bronze/fbref/team_page/dt=2025-01-01/Arsenal.html", []byte("<html/>"), "text/html")
		require.NoError(t, err)
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		status, _, err := store2.CheckPageStatus("fbref.com/en/players/abc")
		require.NoError(t, err)
		assert.Equal(t, models.PageStatusNotFound, status)

		content, meta, err := store2.GetObject(ctx, "bronze/fbref/team_page/dt=2025-01-01/Arsenal.html")
		require.NoError(t, err)
		assert.Equal(t, "<html/>", string(content))
		require.NotNil(t, meta)
		assert.Equal(t, "text/html", meta.ContentType)
	})
}

func TestMarkPageVisited(t *testing.T) {
	store := newTestStore(t)

	t.Run("new key returns true", func(t *testing.T) {
		added, err := store.MarkPageVisited("fbref.com/en/players/p1/Saka")
		require.NoError(t, err)
		assert.True(t, added)
	})

	t.Run("duplicate returns false", func(t *testing.T) {
		added, err := store.MarkPageVisited("fbref.com/en/players/p1/Saka")
		require.NoError(t, err)
		assert.False(t, added)
	})

	t.Run("count tracks correctly", func(t *testing.T) {
		_, err := store.MarkPageVisited("fbref.com/en/players/p2/Rice")
		require.NoError(t, err)
		count, err := store.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestMarkPageVisited_ConcurrentClaims(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := store.MarkPageVisited("fbref.com/en/players/shared")
			if err == nil && added {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestCheckPageStatus(t *testing.T) {
	store := newTestStore(t)

	t.Run("not found", func(t *testing.T) {
		status, entry, err := store.CheckPageStatus("fbref.com/missing")
		require.NoError(t, err)
		assert.Equal(t, models.PageStatusNotFound, status)
		assert.Nil(t, entry)
	})

	t.Run("pending with empty value", func(t *testing.T) {
		_, err := store.MarkPageVisited("fbref.com/pending")
		require.NoError(t, err)

		status, entry, err := store.CheckPageStatus("fbref.com/pending")
		require.NoError(t, err)
		assert.Equal(t, models.PageStatusPending, status)
		assert.Nil(t, entry)
	})

	t.Run("failure entry", func(t *testing.T) {
		dbEntry := &models.PageDBEntry{
			Status:      models.PageStatusFailure,
			Kind:        models.PageKindTeam,
			ErrorType:   "HTTP_503",
			LastAttempt: time.Now(),
		}
		require.NoError(t, store.UpdatePageStatus("fbref.com/failed", dbEntry))

		status, entry, err := store.CheckPageStatus("fbref.com/failed")
		require.NoError(t, err)
		assert.Equal(t, models.PageStatusFailure, status)
		require.NotNil(t, entry)
		assert.Equal(t, "HTTP_503", entry.ErrorType)
		assert.Equal(t, models.PageKindTeam, entry.Kind)
	})

	t.Run("corrupted JSON falls back to pending", func(t *testing.T) {
		key := []byte(pageKeyPrefix + "fbref.com/corrupt")
		err := store.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(key, []byte("{invalid json")))
		})
		require.NoError(t, err)

		status, entry, err := store.CheckPageStatus("fbref.com/corrupt")
		require.NoError(t, err)
		assert.Equal(t, models.PageStatusPending, status)
		assert.Nil(t, entry)
	})
}

func TestUpdatePageStatus(t *testing.T) {
	store := newTestStore(t)

	t.Run("new entry counts", func(t *testing.T) {
		entry := &models.PageDBEntry{Status: models.PageStatusSuccess, LastAttempt: time.Now()}
		require.NoError(t, store.UpdatePageStatus("fbref.com/new", entry))

		count, _ := store.GetVisitedCount()
		assert.Equal(t, 1, count)
	})

	t.Run("overwrite does not count twice", func(t *testing.T) {
		entry := &models.PageDBEntry{Status: models.PageStatusFailure, ErrorType: "HTTP_500", LastAttempt: time.Now()}
		require.NoError(t, store.UpdatePageStatus("fbref.com/new", entry))

		count, _ := store.GetVisitedCount()
		assert.Equal(t, 1, count)

		status, got, err := store.CheckPageStatus("fbref.com/new")
		require.NoError(t, err)
		assert.Equal(t, models.PageStatusFailure, status)
		assert.Equal(t, "HTTP_500", got.ErrorType)
	})

	t.Run("all fields survive", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		entry := &models.PageDBEntry{
			Status:      models.PageStatusSuccess,
			Kind:        models.PageKindPlayer,
			ProcessedAt: now,
			LastAttempt: now,
			ContentHash: "deadbeef",
		}
		require.NoError(t, store.UpdatePageStatus("fbref.com/roundtrip", entry))

		_, got, err := store.CheckPageStatus("fbref.com/roundtrip")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, now.UTC(), got.ProcessedAt.UTC())
		assert.Equal(t, now.UTC(), got.LastAttempt.UTC())
		assert.Equal(t, models.PageKindPlayer, got.Kind)
		assert.Equal(t, "deadbeef", got.ContentHash)
	})
}

func TestBadgerObjects(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta, err := store.PutObject(ctx, "bronze/fbref/team_page/dt=2025-01-01/Arsenal.html", []byte("<html>a</html>"), "text/html")
	require.NoError(t, err)
	assert.Equal(t, 14, meta.Size)
	assert.Equal(t, utils.CalculateStringSHA256("<html>a</html>"), meta.SHA256)

	_, err = store.PutObject(ctx, "bronze/fbref/crawl_report/dt=2025-01-01/run.json", []byte("{}"), "application/json")
	require.NoError(t, err)

	t.Run("get missing returns nil", func(t *testing.T) {
		content, m, err := store.GetObject(ctx, "bronze/fbref/nope")
		require.NoError(t, err)
		assert.Nil(t, content)
		assert.Nil(t, m)
	})

	t.Run("list by prefix", func(t *testing.T) {
		all, err := store.ListObjects(ctx, "bronze/fbref/")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "bronze/fbref/crawl_report/dt=2025-01-01/run.json", all[0].Path)

		teams, err := store.ListObjects(ctx, "bronze/fbref/team_page/")
		require.NoError(t, err)
		require.Len(t, teams, 1)
		assert.Equal(t, "text/html", teams[0].ContentType)
	})

	t.Run("objects are not ledger entries", func(t *testing.T) {
		count, _ := store.GetVisitedCount()
		assert.Equal(t, 0, count)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.PutObject(cctx, "x", []byte("x"), "text/plain")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWriteVisitedLog(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		store := newTestStore(t)
		outPath := filepath.Join(t.TempDir(), "visited.log")
		require.NoError(t, store.WriteVisitedLog(outPath))

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		assert.Empty(t, string(data))
	})

	t.Run("pages written without prefix, objects skipped", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.MarkPageVisited("fbref.com/en/players/p1/Saka")
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), "bronze/x.html", []byte("x"), "text/html")
		require.NoError(t, err)

		outPath := filepath.Join(t.TempDir(), "visited.log")
		require.NoError(t, store.WriteVisitedLog(outPath))

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		assert.Equal(t, "fbref.com/en/players/p1/Saka\n", string(data))
	})

	t.Run("invalid path returns error", func(t *testing.T) {
		store := newTestStore(t)
		assert.Error(t, store.WriteVisitedLog("/nonexistent/dir/file.log"))
	})
}

func TestRunGC(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		store.RunGC(ctx, 50*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunGC did not respect context cancellation")
	}
}

func TestClose(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestDBUpdateConflictRetry(t *testing.T) {
	t.Run("succeeds after transient conflicts", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			if attempts <= 3 {
				return badger.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 4, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return badger.ErrConflict
		})
		require.ErrorIs(t, err, utils.ErrDatabase)
		assert.Contains(t, err.Error(), "transaction conflict not resolved")
		assert.Equal(t, maxConflictRetries, attempts)
	})

	t.Run("non-conflict error returned immediately", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		sentinel := errors.New("some other error")
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, attempts)
	})
}
