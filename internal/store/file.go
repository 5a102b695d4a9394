package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// FileStore persists one JSON file per resource under a base directory.
// Filenames are the resource id URL-encoded with '%' replaced by '_' so
// they are safe on every filesystem. Writes go to a temp file and are
// renamed into place, which makes replacement atomic on POSIX systems.
// The directory is created lazily on first write.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a file-backed store rooted at dir. dir is not
// created until the first operation needs it.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// EncodeID turns a resource id into its on-disk filename stem.
func EncodeID(id string) string {
	return strings.ReplaceAll(url.QueryEscape(id), "%", "_")
}

// DecodeID reverses EncodeID.
func DecodeID(name string) (string, error) {
	return url.QueryUnescape(strings.ReplaceAll(name, "_", "%"))
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, EncodeID(id)+".json")
}

func (s *FileStore) Get(_ context.Context, id string) (linkeddata.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	var n linkeddata.Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return n, nil
}

func (s *FileStore) Put(_ context.Context, id string, n linkeddata.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	raw, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(id))
}

func (s *FileStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		id, err := DecodeID(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) FindByType(ctx context.Context, typ string) ([]linkeddata.Node, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []linkeddata.Node
	for _, id := range ids {
		n, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if linkeddata.IsOfType(n, typ) {
			out = append(out, n)
		}
	}
	return out, nil
}
