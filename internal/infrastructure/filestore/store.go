// Package filestore persists the registry as a single human-readable document
// keyed by stringified network id. The format is chosen by file extension:
// .json uses JSON, anything else YAML.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/linkctl/internal/infrastructure/filelock"
	"github.com/zjrosen/linkctl/internal/log"
	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// Format selects the document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatForPath picks the encoding from a file extension.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Store implements domain.Repository over one file.
// Every Put rewrites the whole document through a temp file and rename, so a
// crash mid-write leaves the previous document intact. Writers hold an
// advisory lock on path+".lock" from read to rename, so stores in other
// processes never write back a stale copy of the document.
type Store struct {
	filelock.Leases

	path   string
	format Format

	// mu guards the read-merge-write of the shared document within this
	// process; the lock file guards it across processes.
	mu sync.Mutex
}

// Ensure Store implements the repository contracts.
var (
	_ domain.Repository = (*Store)(nil)
	_ domain.Updater    = (*Store)(nil)
	_ domain.Leaser     = (*Store)(nil)
)

// New creates a store for path. The file does not need to exist yet.
func New(path string) *Store {
	path = filepath.Clean(path)
	return &Store{
		Leases: filelock.Leases{Base: path},
		path:   path,
		format: FormatForPath(path),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns the record for id.
func (s *Store) Get(_ context.Context, id domain.NetworkID) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return domain.Record{}, err
	}
	rec, ok := doc[id.String()]
	if !ok {
		return domain.Record{}, &domain.NotFoundError{Network: id}
	}
	return rec, nil
}

// Put merges rec into the document and rewrites it atomically.
func (s *Store) Put(ctx context.Context, id domain.NetworkID, rec domain.Record) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc[id.String()] = rec
	return s.write(doc)
}

// Update applies fn to id's record and rewrites the document, all under the
// document lock.
func (s *Store) Update(ctx context.Context, id domain.NetworkID, fn func(*domain.Record, bool) error) (domain.Record, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return domain.Record{}, err
	}
	defer unlock()

	doc, err := s.read()
	if err != nil {
		return domain.Record{}, err
	}
	rec, exists := doc[id.String()]
	rec = rec.Clone()
	if err := fn(&rec, exists); err != nil {
		return domain.Record{}, err
	}
	doc[id.String()] = rec
	if err := s.write(doc); err != nil {
		return domain.Record{}, err
	}
	return rec.Clone(), nil
}

// List returns all records.
func (s *Store) List(_ context.Context) (map[domain.NetworkID]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make(map[domain.NetworkID]domain.Record, len(doc))
	for key, rec := range doc {
		id, err := domain.ParseNetworkID(key)
		if err != nil {
			return nil, fmt.Errorf("registry %s: %w", s.path, err)
		}
		out[id] = rec
	}
	return out, nil
}

// Close is a no-op; the file is not held open.
func (s *Store) Close() error { return nil }

// lock takes the in-process mutex and then the lock file.
func (s *Store) lock(ctx context.Context) (func(), error) {
	s.mu.Lock()
	release, err := filelock.Lock(ctx, s.path+".lock")
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("locking registry: %w", err)
	}
	return func() {
		release()
		s.mu.Unlock()
	}, nil
}

func (s *Store) read() (map[string]domain.Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string]domain.Record), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}
	doc, err := Decode(data, s.format)
	if err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *Store) write(doc map[string]domain.Record) error {
	data, err := Encode(doc, s.format)
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp registry: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp registry: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing registry: %w", err)
	}

	log.Debug(log.CatRegistry, "registry file written", "path", s.path, "networks", len(doc))
	return nil
}

// Decode parses a registry document.
func Decode(data []byte, format Format) (map[string]domain.Record, error) {
	doc := make(map[string]domain.Record)
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = make(map[string]domain.Record)
	}
	return doc, nil
}

// Encode renders a registry document. Keys come out sorted in both formats.
func Encode(doc map[string]domain.Record, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(doc); err != nil {
			return nil, err
		}
		_ = encoder.Close()
		return buf.Bytes(), nil
	}
}
