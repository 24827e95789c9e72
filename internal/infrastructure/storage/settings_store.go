package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
)

// YAMLSettingsStore хранит настройки панелей в YAML-файле
type YAMLSettingsStore struct {
	path string
	mu   sync.Mutex
}

func NewYAMLSettingsStore(path string) *YAMLSettingsStore {
	return &YAMLSettingsStore{path: path}
}

// Load читает файл поверх настроек по умолчанию. Отсутствующий файл даёт значения по умолчанию.
func (s *YAMLSettingsStore) Load() (entity.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := entity.DefaultSettings()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return entity.DefaultSettings(), fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	return settings, nil
}

func (s *YAMLSettingsStore) Save(settings entity.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o644)
}

// writeFileAtomic пишет во временный файл рядом и переименовывает его
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

var _ port.SettingsStore = (*YAMLSettingsStore)(nil)
