package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/samber/lo"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
	"safe-eye-console/internal/logger"
)

// SiteInfo статические данные объекта для главной панели.
type SiteInfo struct {
	Cameras       int
	CoverageAreas int
}

// IncidentService журнал событий, активные тревоги и сводка.
type IncidentService struct {
	repo port.IncidentRepository
	site SiteInfo
	now  func() time.Time
}

func NewIncidentService(repo port.IncidentRepository, site SiteInfo) *IncidentService {
	return &IncidentService{repo: repo, site: site, now: time.Now}
}

// List возвращает записи журнала, отобранные фильтром. Порядок бэкенда сохраняется.
func (s *IncidentService) List(ctx context.Context, filter entity.IncidentFilter) ([]entity.Incident, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return lo.Filter(all, func(i entity.Incident, _ int) bool {
		return filter.Match(i)
	}), nil
}

// ActiveAlerts возвращает записи, кроме обычных событий.
func (s *IncidentService) ActiveAlerts(ctx context.Context) ([]entity.Incident, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return lo.Filter(all, func(i entity.Incident, _ int) bool {
		return i.IsActive()
	}), nil
}

// Acknowledge закрывает тревогу.
func (s *IncidentService) Acknowledge(ctx context.Context, id int64) error {
	if err := s.repo.UpdateStatus(ctx, id, entity.IncidentStatusResolved); err != nil {
		return fmt.Errorf("acknowledge incident %d: %w", id, err)
	}
	logger.Info("Incidents", "Incident %d acknowledged", id)
	return nil
}

// Stats собирает сводку главной панели. Сбой бэкенда (кроме 401) отображается статусом Error.
func (s *IncidentService) Stats(ctx context.Context) (entity.DashboardStats, error) {
	stats := entity.DashboardStats{
		Cameras:       s.site.Cameras,
		CoverageAreas: s.site.CoverageAreas,
		SystemStatus:  entity.SystemActive,
	}

	all, err := s.repo.List(ctx)
	if err != nil {
		if errors.Is(err, entity.ErrUnauthorized) {
			return stats, err
		}
		logger.Error("Incidents", "Fetch dashboard data: %v", err)
		stats.SystemStatus = entity.SystemError
		return stats, nil
	}

	y, m, d := s.now().Date()
	stats.TotalEvents = len(all)
	stats.ActiveAlerts = lo.CountBy(all, func(i entity.Incident) bool { return i.IsActive() })
	stats.EventsToday = lo.CountBy(all, func(i entity.Incident) bool {
		iy, im, id := i.Timestamp.In(time.Local).Date()
		return iy == y && im == m && id == d
	})
	return stats, nil
}

var csvHeader = []string{"id", "incident_type", "location", "timestamp", "severity", "description"}

// ExportCSV пишет отфильтрованный журнал в CSV.
func (s *IncidentService) ExportCSV(ctx context.Context, w io.Writer, filter entity.IncidentFilter) (int, error) {
	incidents, err := s.List(ctx, filter)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	for _, i := range incidents {
		record := []string{
			strconv.FormatInt(i.ID, 10),
			i.IncidentType,
			i.Location,
			i.Timestamp.Format(time.RFC3339),
			string(i.Severity()),
			i.Description,
		}
		if err := cw.Write(record); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(incidents), cw.Error()
}
