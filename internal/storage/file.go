package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "anypush/pkg/logx"
)

// fileStore is a dependency-free backend: the whole mapping lives in one JSON
// object file. Every write goes to <path>.tmp first and is renamed over the
// original, so a crash never leaves a half-written settings file.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	data   map[string]json.RawMessage
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	data := map[string]json.RawMessage{}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// first run
	case err != nil:
		return nil, unavailable(err)
	case len(strings.TrimSpace(string(b))) > 0:
		if err := json.Unmarshal(b, &data); err != nil {
			return nil, fmt.Errorf("storage file %s: %w", path, err)
		}
	}

	log.Debug("file store opened", logx.String("path", path), logx.Int("keys", len(data)))
	return &fileStore{log: log, path: path, data: data}, nil
}

func (s *fileStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, unavailable(ErrClosed)
	}
	return pick(s.data, keys), nil
}

func (s *fileStore) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(items); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable(ErrClosed)
	}

	next := make(map[string]json.RawMessage, len(s.data)+len(items))
	for k, v := range s.data {
		next[k] = v
	}
	for k, v := range items {
		next[k] = cloneRaw(v)
	}
	if err := s.writeLocked(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

func (s *fileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable(ErrClosed)
	}
	empty := map[string]json.RawMessage{}
	if err := s.writeLocked(empty); err != nil {
		return err
	}
	s.data = empty
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) writeLocked(m map[string]json.RawMessage) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return unavailable(err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return unavailable(err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return unavailable(err)
	}
	if err := f.Close(); err != nil {
		return unavailable(err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return unavailable(err)
	}
	return nil
}
