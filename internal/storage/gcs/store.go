// Package gcs persists datasets as objects in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
	datasets "github.com/JakeFAU/odds-history-crawler/internal/storage"
)

// Config captures the bucket and object prefix.
type Config struct {
	Bucket string
	Prefix string
}

type objectWriter interface {
	io.Writer
	Close() error
}

// nameIterator yields object names and returns iterator.Done when exhausted.
type nameIterator interface {
	Next() (string, error)
}

type bucket interface {
	Writer(ctx context.Context, name, contentType string, metadata map[string]string) objectWriter
	List(ctx context.Context, prefix string) nameIterator
}

// Store writes datasets to a configured bucket.
type Store struct {
	bucket bucket
	name   string
	prefix string
	hasher crawler.Hasher
}

// New creates a GCS-backed dataset store.
func New(client *storage.Client, cfg Config, hasher crawler.Hasher) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return newStore(handle{b: client.Bucket(cfg.Bucket)}, cfg, hasher)
}

func newStore(b bucket, cfg Config, hasher crawler.Hasher) (*Store, error) {
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Store{bucket: b, name: cfg.Bucket, prefix: prefix, hasher: hasher}, nil
}

// Exists scans the object names under the prefix for a match of key.
func (s *Store) Exists(ctx context.Context, key crawler.DatasetKey) (bool, error) {
	if key.Mode == crawler.ModeUpcoming {
		return false, nil
	}
	it := s.bucket.List(ctx, s.prefix)
	for {
		name, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("list objects: %w", err)
		}
		if datasets.Matches(path.Base(name), key) {
			return true, nil
		}
	}
}

// Save uploads d and returns a gs:// URI.
func (s *Store) Save(ctx context.Context, d crawler.Dataset) (string, error) {
	data, err := datasets.Encode(d)
	if err != nil {
		return "", err
	}
	checksum, err := s.hasher.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash dataset: %w", err)
	}
	object := s.prefix + datasets.FileName(d)
	writer := s.bucket.Writer(ctx, object, datasets.ContentType, map[string]string{
		"sha256": checksum,
		"run_id": d.RunID,
		"events": fmt.Sprint(len(d.Events)),
	})
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.name, object), nil
}

type handle struct {
	b *storage.BucketHandle
}

func (h handle) Writer(ctx context.Context, name, contentType string, metadata map[string]string) objectWriter {
	w := h.b.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	return w
}

func (h handle) List(ctx context.Context, prefix string) nameIterator {
	return objects{it: h.b.Objects(ctx, &storage.Query{Prefix: prefix})}
}

type objects struct {
	it *storage.ObjectIterator
}

func (o objects) Next() (string, error) {
	attrs, err := o.it.Next()
	if err != nil {
		return "", err
	}
	return attrs.Name, nil
}
