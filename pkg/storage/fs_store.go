package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Noname397/football-analysis/pkg/models"
	"github.com/Noname397/football-analysis/pkg/utils"
)

const metaSuffix = ".meta.json"

// FilesystemStore writes objects as plain files under a root directory.
// Each object gets a sidecar "<name>.meta.json" holding its ObjectMeta.
type FilesystemStore struct {
	root string
	log  *logrus.Entry
}

// NewFilesystemStore creates root if needed
func NewFilesystemStore(root string, log *logrus.Entry) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("cannot create output directory %s: %w", root, err)
	}
	return &FilesystemStore{root: root, log: log.WithField("store", "filesystem")}, nil
}

// resolve maps an object path onto the root, refusing anything that escapes it
func (s *FilesystemStore) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if path == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: object path %q escapes the output directory", utils.ErrPublishRejected, path)
	}
	return filepath.Join(s.root, clean), nil
}

// PutObject implements ObjectStore. The body is written to a temp file and renamed into place.
func (s *FilesystemStore) PutObject(ctx context.Context, path string, content []byte, contentType string) (models.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return models.ObjectMeta{}, err
	}
	target, err := s.resolve(path)
	if err != nil {
		return models.ObjectMeta{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return models.ObjectMeta{}, fmt.Errorf("create directory for '%s': %w", path, err)
	}

	meta := models.ObjectMeta{
		Path:        path,
		ContentType: contentType,
		Size:        len(content),
		SHA256:      utils.CalculateStringSHA256(string(content)),
		PublishedAt: time.Now().UTC(),
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return models.ObjectMeta{}, fmt.Errorf("%w: object metadata for '%s': %w", utils.ErrParsing, path, err)
	}

	if err := writeFileAtomic(target, content); err != nil {
		return models.ObjectMeta{}, fmt.Errorf("write object '%s': %w", path, err)
	}
	if err := writeFileAtomic(target+metaSuffix, metaBytes); err != nil {
		return models.ObjectMeta{}, fmt.Errorf("write metadata for '%s': %w", path, err)
	}
	s.log.WithFields(logrus.Fields{"path": path, "size": meta.Size}).Debug("Object written")
	return meta, nil
}

func writeFileAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// GetObject implements ObjectStore. A missing object returns (nil, nil, nil).
func (s *FilesystemStore) GetObject(ctx context.Context, path string) ([]byte, *models.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	target, err := s.resolve(path)
	if err != nil {
		return nil, nil, err
	}
	content, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read object '%s': %w", path, err)
	}

	metaBytes, err := os.ReadFile(target + metaSuffix)
	if err != nil {
		return nil, nil, fmt.Errorf("read metadata for '%s': %w", path, err)
	}
	var meta models.ObjectMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, fmt.Errorf("%w: object metadata for '%s': %w", utils.ErrParsing, path, err)
	}
	return content, &meta, nil
}

// ListObjects implements ObjectStore, sorted by path
func (s *FilesystemStore) ListObjects(ctx context.Context, prefix string) ([]models.ObjectMeta, error) {
	var out []models.ObjectMeta
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(p, metaSuffix))
		if err != nil {
			return err
		}
		if !strings.HasPrefix(filepath.ToSlash(rel), prefix) {
			return nil
		}
		metaBytes, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		var meta models.ObjectMeta
		if err := json.Unmarshal(metaBytes, &meta); err != nil {
			s.log.Warnf("Skipping unreadable metadata file %s: %v", p, err)
			return nil
		}
		out = append(out, meta)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects under '%s': %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
