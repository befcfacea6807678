// Package mirror maintains the per-user local mirror of remote image files
// and their embedding cache, and reconciles it against remote listings.
package mirror

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	embeddingsFile = "embeddings.json"
	namesFile      = "names.json"
	filesDirName   = "files"
)

// UserCache is one user's cached state: the embedding map, the display-name
// map, and (on disk, next to them) the mirrored raw files. Both maps are
// keyed by the remote file ID.
type UserCache struct {
	Embeddings map[string][]float32
	Names      map[string]string
}

// NewUserCache returns an empty cache.
func NewUserCache() *UserCache {
	return &UserCache{
		Embeddings: make(map[string][]float32),
		Names:      make(map[string]string),
	}
}

// Store persists per-user caches under a root directory:
//
//	<root>/<userID>/embeddings.json
//	<root>/<userID>/names.json
//	<root>/<userID>/files/<name>
//
// Maps are written atomically (temp file then rename) so a crash mid-write
// never leaves a torn map visible. All mutation for one user must happen
// under that user's lock (see Lock).
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mirror root: %w", err)
	}
	return &Store{
		root:  dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Lock acquires the per-user mutex and returns the unlock function. Syncs
// and searches for the same user serialize on this; different users never
// contend.
func (s *Store) Lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// UserDir returns the user's mirror directory, creating it if needed.
func (s *Store) UserDir(userID string) (string, error) {
	dir := filepath.Join(s.root, userID)
	if err := os.MkdirAll(filepath.Join(dir, filesDirName), 0o755); err != nil {
		return "", fmt.Errorf("create user dir: %w", err)
	}
	return dir, nil
}

// FilePath returns where a mirrored file's bytes live on disk. The on-disk
// filename is the display name captured at write time.
func (s *Store) FilePath(userID, name string) string {
	return filepath.Join(s.root, userID, filesDirName, filepath.Base(name))
}

// Load reads the user's cache from disk. A user with no persisted state gets
// an empty cache, not an error.
func (s *Store) Load(userID string) (*UserCache, error) {
	dir, err := s.UserDir(userID)
	if err != nil {
		return nil, err
	}

	cache := NewUserCache()
	if err := readJSON(filepath.Join(dir, embeddingsFile), &cache.Embeddings); err != nil {
		return nil, fmt.Errorf("load embeddings for %s: %w", userID, err)
	}
	if err := readJSON(filepath.Join(dir, namesFile), &cache.Names); err != nil {
		return nil, fmt.Errorf("load names for %s: %w", userID, err)
	}
	return cache, nil
}

// Save persists both maps atomically.
func (s *Store) Save(userID string, cache *UserCache) error {
	dir, err := s.UserDir(userID)
	if err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(dir, embeddingsFile), cache.Embeddings); err != nil {
		return fmt.Errorf("save embeddings for %s: %w", userID, err)
	}
	if err := writeJSON(filepath.Join(dir, namesFile), cache.Names); err != nil {
		return fmt.Errorf("save names for %s: %w", userID, err)
	}
	return nil
}

// WriteFile persists a mirrored file's bytes atomically under its display name.
func (s *Store) WriteFile(userID, name string, data []byte) (string, error) {
	if _, err := s.UserDir(userID); err != nil {
		return "", err
	}

	path := s.FilePath(userID, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return path, nil
}

// RemoveFile deletes a mirrored file. Removing an already-absent file is a
// no-op.
func (s *Store) RemoveFile(userID, name string) error {
	err := os.Remove(s.FilePath(userID, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// HasFile reports whether a mirrored file exists on disk.
func (s *Store) HasFile(userID, name string) bool {
	_, err := os.Stat(s.FilePath(userID, name))
	return err == nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
