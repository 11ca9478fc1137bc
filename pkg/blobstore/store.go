// Package blobstore archives scan artifacts (the engine's HTML report and
// the detailed findings document) and hands back references that are
// recorded on the session.
//
// Files live under a base directory next to a JSON index of their
// metadata. The index is rewritten atomically (temp file then rename).
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ssdt/authscan/pkg/jsonutil"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("blobstore: not found")

// FileRef identifies an archived artifact.
type FileRef struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Record is the index entry for one blob.
type Record struct {
	FileRef
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Store saves and loads artifacts.
type Store interface {
	Put(ctx context.Context, data []byte, filename, contentType string, meta map[string]string) (FileRef, error)
	Get(ctx context.Context, id string) (Record, []byte, error)
}

// FileStore is a directory-backed Store.
type FileStore struct {
	mu       sync.RWMutex
	basePath string
	index    *storeIndex
}

var _ Store = (*FileStore)(nil)

type storeIndex struct {
	Blobs map[string]*Record `json:"blobs"`
}

// NewFileStore opens or creates a store rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create dir: %w", err)
	}
	s := &FileStore{
		basePath: basePath,
		index:    &storeIndex{Blobs: make(map[string]*Record)},
	}
	if err := s.loadIndex(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("blobstore: load index: %w", err)
	}
	return s, nil
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.basePath, "index.json")
}

func (s *FileStore) blobPath(id string) string {
	return filepath.Join(s.basePath, id)
}

func (s *FileStore) loadIndex() error {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		return err
	}
	var idx storeIndex
	if err := jsonutil.Unmarshal(data, &idx); err != nil {
		return err
	}
	if idx.Blobs != nil {
		s.index = &idx
	}
	return nil
}

func (s *FileStore) saveIndex() error {
	data, err := jsonutil.MarshalIndent(s.index, "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.indexPath(), data)
}

// Put writes data under a fresh id and records it in the index.
func (s *FileStore) Put(ctx context.Context, data []byte, filename, contentType string, meta map[string]string) (FileRef, error) {
	if err := ctx.Err(); err != nil {
		return FileRef{}, err
	}
	ref := FileRef{
		ID:          uuid.NewString(),
		Filename:    sanitizeFilename(filename),
		ContentType: contentType,
		Size:        int64(len(data)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.blobPath(ref.ID), data); err != nil {
		return FileRef{}, fmt.Errorf("blobstore: write %s: %w", ref.Filename, err)
	}
	rec := &Record{FileRef: ref, CreatedAt: time.Now().UTC()}
	if len(meta) > 0 {
		rec.Meta = make(map[string]string, len(meta))
		for k, v := range meta {
			rec.Meta[k] = v
		}
	}
	s.index.Blobs[ref.ID] = rec
	if err := s.saveIndex(); err != nil {
		delete(s.index.Blobs, ref.ID)
		os.Remove(s.blobPath(ref.ID))
		return FileRef{}, fmt.Errorf("blobstore: save index: %w", err)
	}
	return ref, nil
}

// Get returns the record and content for id.
func (s *FileStore) Get(ctx context.Context, id string) (Record, []byte, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, nil, err
	}
	s.mu.RLock()
	rec, ok := s.index.Blobs[id]
	s.mu.RUnlock()
	if !ok {
		return Record{}, nil, ErrNotFound
	}
	data, err := os.ReadFile(s.blobPath(id))
	if err != nil {
		return Record{}, nil, fmt.Errorf("blobstore: read %s: %w", id, err)
	}
	return copyRecord(rec), data, nil
}

// List returns records whose meta has key=value, newest first.
func (s *FileStore) List(key, value string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.index.Blobs {
		if r.Meta[key] == value {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func copyRecord(r *Record) Record {
	c := *r
	if r.Meta != nil {
		c.Meta = make(map[string]string, len(r.Meta))
		for k, v := range r.Meta {
			c.Meta[k] = v
		}
	}
	return c
}

func writeAtomic(path string, data []byte) error {
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

// sanitizeFilename keeps the base name and drops path separators.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "artifact"
	}
	return name
}
