package entity

import (
	"strconv"
	"strings"
	"time"
)

const (
	// IncidentTypeNormal запись без происшествия, в активные тревоги не попадает.
	IncidentTypeNormal = "normal"
	// IncidentStatusResolved отправляется при подтверждении тревоги.
	IncidentStatusResolved = "resolved"
)

// Severity уровень тревоги для бейджа на панели.
type Severity string

const (
	SeverityDefault  Severity = "default"
	SeverityCritical Severity = "critical"
)

var criticalTypes = map[string]bool{
	"murder":   true,
	"robbery":  true,
	"accident": true,
}

// Incident сохранённая на бэкенде запись о происшествии.
type Incident struct {
	ID           int64     `json:"id"`
	IncidentType string    `json:"incident_type"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	Timestamp    time.Time `json:"timestamp"`
	ReportedBy   *int64    `json:"reported_by"`
	Confidence   *float64  `json:"confidence,omitempty"`
	Status       string    `json:"status,omitempty"`
}

// IsActive сообщает, что запись должна висеть в активных тревогах.
func (i Incident) IsActive() bool {
	return !strings.EqualFold(i.IncidentType, IncidentTypeNormal)
}

// Severity возвращает уровень тревоги по типу происшествия.
func (i Incident) Severity() Severity {
	if criticalTypes[strings.ToLower(i.IncidentType)] {
		return SeverityCritical
	}
	return SeverityDefault
}

// IncidentFilter поиск и фильтр журнала событий.
type IncidentFilter struct {
	Search string
	Type   string
}

// Match проверяет запись по строке поиска (id, тип, место) и по типу.
func (f IncidentFilter) Match(i Incident) bool {
	q := strings.ToLower(strings.TrimSpace(f.Search))
	matchesSearch := q == "" ||
		strings.Contains(strconv.FormatInt(i.ID, 10), q) ||
		strings.Contains(strings.ToLower(i.IncidentType), q) ||
		strings.Contains(strings.ToLower(i.Location), q)

	matchesType := f.Type == "" || strings.EqualFold(f.Type, "all") ||
		strings.EqualFold(i.IncidentType, f.Type)

	return matchesSearch && matchesType
}

// Notification уведомление пользователя о происшествии.
type Notification struct {
	ID         int64     `json:"id"`
	User       int64     `json:"user"`
	IncidentID int64     `json:"incident"`
	Message    string    `json:"message"`
	IsRead     bool      `json:"is_read"`
	Timestamp  time.Time `json:"timestamp"`
}

// SystemStatus состояние системы на главной панели.
type SystemStatus string

const (
	SystemActive SystemStatus = "Active"
	SystemError  SystemStatus = "Error"
)

// DashboardStats сводка главной панели.
type DashboardStats struct {
	ActiveAlerts  int          `json:"active_alerts"`
	TotalEvents   int          `json:"total_events"`
	EventsToday   int          `json:"events_today"`
	Cameras       int          `json:"cameras"`
	CoverageAreas int          `json:"coverage_areas"`
	SystemStatus  SystemStatus `json:"system_status"`
}
