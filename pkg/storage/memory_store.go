package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Noname397/football-analysis/pkg/models"
	"github.com/Noname397/football-analysis/pkg/utils"
)

// MemoryStore is a map-backed PageLedger and ObjectStore, used when nothing
// needs to outlive the process (dry runs, tests)
type MemoryStore struct {
	mu      sync.Mutex
	pages   map[string]*models.PageDBEntry // nil entry = claimed, no outcome yet
	objects map[string]memoryObject
}

type memoryObject struct {
	content []byte
	meta    models.ObjectMeta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pages:   make(map[string]*models.PageDBEntry),
		objects: make(map[string]memoryObject),
	}
}

func (s *MemoryStore) MarkPageVisited(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[key]; ok {
		return false, nil
	}
	s.pages[key] = nil
	return true, nil
}

func (s *MemoryStore) CheckPageStatus(key string) (models.PageStatus, *models.PageDBEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pages[key]
	switch {
	case !ok:
		return models.PageStatusNotFound, nil, nil
	case entry == nil:
		return models.PageStatusPending, nil, nil
	}
	cp := *entry
	return cp.Status, &cp, nil
}

func (s *MemoryStore) UpdatePageStatus(key string, entry *models.PageDBEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.pages[key] = &cp
	return nil
}

func (s *MemoryStore) GetVisitedCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages), nil
}

func (s *MemoryStore) PutObject(ctx context.Context, path string, content []byte, contentType string) (models.ObjectMeta, error) {
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
	s.mu.Lock()
	s.objects[path] = memoryObject{content: append([]byte(nil), content...), meta: meta}
	s.mu.Unlock()
	return meta, nil
}

func (s *MemoryStore) GetObject(ctx context.Context, path string) ([]byte, *models.ObjectMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil, nil, nil
	}
	meta := obj.meta
	return append([]byte(nil), obj.content...), &meta, nil
}

func (s *MemoryStore) ListObjects(ctx context.Context, prefix string) ([]models.ObjectMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ObjectMeta
	for path, obj := range s.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, obj.meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
