package app

import (
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
	"safe-eye-console/internal/logger"
)

// SettingsService настройки системы и оповещений. Запись идёт целым документом под одной блокировкой.
type SettingsService struct {
	store port.SettingsStore
	mu    sync.Mutex
}

func NewSettingsService(store port.SettingsStore) *SettingsService {
	return &SettingsService{store: store}
}

func (s *SettingsService) System() (entity.SystemSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.store.Load()
	if err != nil {
		return entity.SystemSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings.System, nil
}

// UpdateSystem проверяет и сохраняет системные настройки.
func (s *SettingsService) UpdateSystem(system entity.SystemSettings) error {
	if err := system.Validate(); err != nil {
		return err
	}
	return s.update(func(settings *entity.Settings) {
		settings.System = system
	})
}

func (s *SettingsService) Notifications() (entity.NotificationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.store.Load()
	if err != nil {
		return entity.NotificationSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings.Notifications, nil
}

// UpdateNotifications сохраняет каналы оповещения. Пустые и повторяющиеся контакты отбрасываются.
func (s *SettingsService) UpdateNotifications(n entity.NotificationSettings) error {
	n.Contacts = lo.Uniq(lo.Compact(lo.Map(n.Contacts, func(c string, _ int) string {
		return strings.TrimSpace(c)
	})))
	if strings.TrimSpace(n.Template) == "" {
		n.Template = entity.DefaultAlertTemplate
	}
	return s.update(func(settings *entity.Settings) {
		settings.Notifications = n
	})
}

func (s *SettingsService) update(apply func(*entity.Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	apply(&settings)
	if err := s.store.Save(settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	logger.Info("Settings", "Settings saved")
	return nil
}
