// Package memory keeps datasets and run records in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
	"github.com/JakeFAU/odds-history-crawler/internal/storage"
)

// Store holds encoded datasets keyed by file name.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
	keys map[crawler.DatasetKey]string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
		keys: make(map[crawler.DatasetKey]string),
	}
}

// Exists reports whether a dataset for key was saved.
func (s *Store) Exists(_ context.Context, key crawler.DatasetKey) (bool, error) {
	if key.Mode == crawler.ModeUpcoming {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key.Normalized()]
	return ok, nil
}

// Save encodes d and returns a memory:// URI.
func (s *Store) Save(_ context.Context, d crawler.Dataset) (string, error) {
	data, err := storage.Encode(d)
	if err != nil {
		return "", err
	}
	name := storage.FileName(d)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = data
	s.keys[d.Key().Normalized()] = name
	return fmt.Sprintf("memory://%s", name), nil
}

// Load returns a saved dataset by file name.
func (s *Store) Load(name string) (crawler.Dataset, bool, error) {
	s.mu.RLock()
	data, ok := s.data[name]
	s.mu.RUnlock()
	if !ok {
		return crawler.Dataset{}, false, nil
	}
	d, err := storage.Decode(data)
	if err != nil {
		return crawler.Dataset{}, true, err
	}
	return d, true, nil
}

// Len returns the number of saved datasets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
