package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Selection is the persisted set of heapids that commands fall back to when
// they are given no heapids.
type Selection struct {
	// PostsDir is the post directory the selection was made in.
	PostsDir string `yaml:"posts_dir,omitempty"`
	// Heapids are the selected posts.
	Heapids []string `yaml:"heapids,omitempty"`
	// UpdatedAt is when the selection was last modified.
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if nothing is selected.
func (s *Selection) IsEmpty() bool {
	return len(s.Heapids) == 0
}

// Set replaces the selection.
func (s *Selection) Set(postsDir string, heapids []string) {
	s.PostsDir = postsDir
	s.Heapids = slices.Compact(slices.Sorted(slices.Values(heapids)))
	s.UpdatedAt = time.Now().UTC()
}

// Clear removes the selection.
func (s *Selection) Clear() {
	s.PostsDir = ""
	s.Heapids = nil
	s.UpdatedAt = time.Now().UTC()
}

// For returns the selected heapids when the selection was made in postsDir.
func (s *Selection) For(postsDir string) []string {
	if filepath.Clean(s.PostsDir) != filepath.Clean(postsDir) {
		return nil
	}
	return slices.Clone(s.Heapids)
}

func (s *Selection) String() string {
	if s.IsEmpty() {
		return "(no selection)"
	}
	return strings.Join(s.Heapids, " ")
}

// SelectionStore manages loading and saving the selection.
type SelectionStore struct {
	path string
	mu   sync.RWMutex
}

// NewSelectionStore creates a new selection store.
func NewSelectionStore(path string) *SelectionStore {
	return &SelectionStore{path: path}
}

// Path returns the selection file path.
func (s *SelectionStore) Path() string {
	return s.path
}

// Load reads the selection from disk.
// Returns an empty selection if the file doesn't exist.
func (s *SelectionStore) Load() (*Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sel := &Selection{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return sel, nil
		}
		return nil, fmt.Errorf("failed to read selection file: %w", err)
	}

	if err := yaml.Unmarshal(data, sel); err != nil {
		return nil, fmt.Errorf("failed to parse selection file: %w", err)
	}

	return sel, nil
}

// Save writes the selection to disk.
func (s *SelectionStore) Save(sel *Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create selection directory: %w", err)
	}

	data, err := yaml.Marshal(sel)
	if err != nil {
		return fmt.Errorf("failed to serialize selection: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write selection file: %w", err)
	}

	return nil
}

// Clear removes the selection file.
func (s *SelectionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove selection file: %w", err)
	}
	return nil
}
