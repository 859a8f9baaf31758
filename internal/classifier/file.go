package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FileStore keeps the model in a single file rewritten on each save.
type FileStore struct {
	Path string

	mu       sync.Mutex
	seen     os.FileInfo
	version  int64
	lastSave int64
}

// NewFileStore creates a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the model file.
func (s *FileStore) Load(ctx context.Context) (*Model, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return &m, nil
}

// Version reports the version of the model file. The file is decoded only when
// its identity, size or modification time changed since the last call.
func (s *FileStore) Version(ctx context.Context) (int64, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen != nil && os.SameFile(s.seen, info) && s.seen.Size() == info.Size() && s.seen.ModTime().Equal(info.ModTime()) {
		return s.version, nil
	}
	m, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	s.seen, s.version = info, 0
	if m != nil {
		s.version = m.Version
	}
	return s.version, nil
}

// Save writes the next version through a temp file and rename. A model file that
// no longer decodes is overwritten, continuing past the last version this store saved.
func (s *FileStore) Save(ctx context.Context, blob []byte, samples int) (*Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.lastSave + 1
	prev, err := s.Load(ctx)
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		log.Warn().Err(err).Str("path", s.Path).Int64("version", next).Msg("model file corrupt, overwriting")
	case err != nil:
		return nil, err
	case prev != nil && prev.Version >= next:
		next = prev.Version + 1
	}
	m := &Model{Version: next, Blob: blob, TrainedAt: time.Now().UTC(), Samples: samples}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return nil, err
	}
	s.lastSave = m.Version
	return m, nil
}
