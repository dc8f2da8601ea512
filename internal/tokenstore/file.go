package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/unitlink/unitlink/internal/models"
)

// FileStore persists the credential as a YAML document.
// Every write replaces the whole file through a rename.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save implements Store
func (s *FileStore) Save(_ context.Context, cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(cred.Fields())
}

// Load implements Store
func (s *FileStore) Load(_ context.Context) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, err := s.read()
	if err != nil {
		return nil, err
	}
	return fromFields(fields), nil
}

// Clear implements Store
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

// UpdateField implements Store
func (s *FileStore) UpdateField(_ context.Context, name, value string) error {
	if err := checkField(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields, err := s.read()
	if err != nil {
		return err
	}
	fields[name] = value
	return s.write(fields)
}

// Close implements Store
func (s *FileStore) Close() error { return nil }

func (s *FileStore) read() (map[string]string, error) {
	fields := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fields, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal credential file: %w", err)
	}
	if fields == nil {
		fields = make(map[string]string)
	}
	return fields, nil
}

func (s *FileStore) write(fields map[string]string) error {
	data, err := yaml.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}
