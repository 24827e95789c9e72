package app

import (
	"context"
	"fmt"
	"time"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
	"safe-eye-console/internal/logger"
)

// DefaultAlertPollInterval период опроса активных тревог.
const DefaultAlertPollInterval = 10 * time.Second

// AlertService панель тревог: оповещения и уведомления пользователя.
type AlertService struct {
	settings      *SettingsService
	notifier      port.Notifier
	notifications port.NotificationRepository
}

func NewAlertService(settings *SettingsService, notifier port.Notifier, notifications port.NotificationRepository) *AlertService {
	return &AlertService{settings: settings, notifier: notifier, notifications: notifications}
}

// Dispatch отправляет текст тревоги по включённым каналам. Возвращает true, если сообщение ушло.
// Email, SMS и звук хранятся как переключатели панели, доставки для них нет.
func (s *AlertService) Dispatch(ctx context.Context, incident entity.Incident) (bool, error) {
	cfg, err := s.settings.Notifications()
	if err != nil {
		return false, err
	}
	if !cfg.Telegram || s.notifier == nil {
		logger.Debug("Alerts", "Incident %d: telegram channel disabled", incident.ID)
		return false, nil
	}

	text := cfg.Render(incident)
	if err := s.notifier.Notify(ctx, text); err != nil {
		return false, fmt.Errorf("notify incident %d: %w", incident.ID, err)
	}
	logger.Info("Alerts", "Incident %d (%s) dispatched", incident.ID, incident.IncidentType)
	return true, nil
}

// Notifications возвращает уведомления текущего пользователя.
func (s *AlertService) Notifications(ctx context.Context) ([]entity.Notification, error) {
	list, err := s.notifications.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

func (s *AlertService) MarkNotificationRead(ctx context.Context, id int64) error {
	if err := s.notifications.MarkRead(ctx, id); err != nil {
		return fmt.Errorf("mark notification %d: %w", id, err)
	}
	return nil
}

// AlertWatcher опрашивает активные тревоги и оповещает о новых.
// Первый опрос только запоминает уже существующие записи.
type AlertWatcher struct {
	incidents *IncidentService
	alerts    *AlertService
	interval  time.Duration

	seen   map[int64]bool
	seeded bool
}

func NewAlertWatcher(incidents *IncidentService, alerts *AlertService, interval time.Duration) *AlertWatcher {
	if interval <= 0 {
		interval = DefaultAlertPollInterval
	}
	return &AlertWatcher{
		incidents: incidents,
		alerts:    alerts,
		interval:  interval,
		seen:      make(map[int64]bool),
	}
}

// Run опрашивает до отмены ctx.
func (w *AlertWatcher) Run(ctx context.Context) error {
	logger.Info("Alerts", "Watching active alerts every %s", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll возвращает число разосланных тревог.
func (w *AlertWatcher) poll(ctx context.Context) int {
	active, err := w.incidents.ActiveAlerts(ctx)
	if err != nil {
		logger.Warn("Alerts", "Poll active alerts: %v", err)
		return 0
	}

	if !w.seeded {
		for _, i := range active {
			w.seen[i.ID] = true
		}
		w.seeded = true
		return 0
	}

	sent := 0
	// бэкенд отдаёт новые первыми, рассылаем в хронологическом порядке
	for idx := len(active) - 1; idx >= 0; idx-- {
		incident := active[idx]
		if w.seen[incident.ID] {
			continue
		}

		// неудачная отправка повторится на следующем опросе
		ok, err := w.alerts.Dispatch(ctx, incident)
		if err != nil {
			logger.Error("Alerts", "Dispatch: %v", err)
			continue
		}
		w.seen[incident.ID] = true
		if ok {
			sent++
		}
	}
	return sent
}
