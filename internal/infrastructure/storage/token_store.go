package storage

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
)

// MemoryTokenStore держит токены только в памяти процесса
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens entity.Tokens
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load() (entity.Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens, nil
}

func (s *MemoryTokenStore) Save(tokens entity.Tokens) error {
	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	return s.Save(entity.Tokens{})
}

// YAMLTokenStore хранит токены в файле, чтобы сессия переживала перезапуск
type YAMLTokenStore struct {
	path string
	mu   sync.Mutex
}

func NewYAMLTokenStore(path string) *YAMLTokenStore {
	return &YAMLTokenStore{path: path}
}

// Load возвращает пустые токены, если файла нет
func (s *YAMLTokenStore) Load() (entity.Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens entity.Tokens
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return tokens, nil
	}
	if err != nil {
		return tokens, fmt.Errorf("read tokens: %w", err)
	}
	if err := yaml.Unmarshal(data, &tokens); err != nil {
		return entity.Tokens{}, fmt.Errorf("parse tokens %s: %w", s.path, err)
	}
	return tokens, nil
}

func (s *YAMLTokenStore) Save(tokens entity.Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o600)
}

func (s *YAMLTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove tokens: %w", err)
	}
	return nil
}

var (
	_ port.TokenStore = (*MemoryTokenStore)(nil)
	_ port.TokenStore = (*YAMLTokenStore)(nil)
)
