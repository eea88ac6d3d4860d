package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/bissquit/incident-console/internal/domain"
	"gopkg.in/yaml.v3"
)

// FileStore persists sessions as a YAML document keyed by name.
// The file is written with 0600 permissions and replaced atomically.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileDocument struct {
	Sessions map[string]domain.Session `yaml:"sessions"`
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, key string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	sess, ok := doc.Sessions[key]
	if !ok || sess.Token == "" {
		return nil, ErrNoSession
	}
	return &sess, nil
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, key string, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Sessions[key] = *session
	return s.write(doc)
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := doc.Sessions[key]; !ok {
		return nil
	}
	delete(doc.Sessions, key)
	return s.write(doc)
}

// Ping checks that the session file is readable.
func (s *FileStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.read()
	return err
}

func (s *FileStore) read() (*fileDocument, error) {
	doc := &fileDocument{Sessions: make(map[string]domain.Session)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	if doc.Sessions == nil {
		doc.Sessions = make(map[string]domain.Session)
	}
	return doc, nil
}

func (s *FileStore) write(doc *fileDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
