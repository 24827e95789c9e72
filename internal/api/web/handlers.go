package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/logger"
)

const maxUploadSize = 32 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Web", "Encode response: %v", err)
	}
}

func clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeError переводит ошибку в ответ. 401 от бэкенда означает глобальный выход:
// cookie сбрасывается и оператор уходит на /login.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr *entity.StatusError
	switch {
	case errors.Is(err, entity.ErrUnauthorized):
		clearTokenCookie(w)
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
	case errors.Is(err, entity.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{"Invalid username or password."})
	case errors.Is(err, entity.ErrMissingCredentials):
		writeJSON(w, http.StatusBadRequest, errorResponse{"Username and password are required."})
	case errors.Is(err, entity.ErrNoImage):
		writeJSON(w, http.StatusBadRequest, errorResponse{"No image provided"})
	case errors.Is(err, entity.ErrInvalidSettings):
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
	case errors.Is(err, entity.ErrSessionActive):
		writeJSON(w, http.StatusConflict, errorResponse{err.Error()})
	case errors.As(err, &statusErr):
		logger.Error("Web", "%s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusBadGateway, errorResponse{err.Error()})
	default:
		logger.Error("Web", "%s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	target := loginPath
	if requestToken(r) != "" {
		target = "/dashboard"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds entity.Credentials
	if err := decodeBody(r, &creds); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
		return
	}

	if err := s.c.Auth.Login(r.Context(), creds.Username, creds.Password); err != nil {
		writeError(w, r, err)
		return
	}

	token, _ := s.c.Auth.AccessToken()
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"redirect": "/dashboard"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.c.Auth.Logout()
	s.c.Stream.Stop()
	clearTokenCookie(w)
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.c.Incidents.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func incidentFilter(r *http.Request) entity.IncidentFilter {
	q := r.URL.Query()
	return entity.IncidentFilter{Search: q.Get("q"), Type: q.Get("type")}
}

func (s *Server) handleEventRecords(w http.ResponseWriter, r *http.Request) {
	incidents, err := s.c.Incidents.List(r.Context(), incidentFilter(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"incidents": incidents,
		"total":     len(incidents),
	})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := s.c.Incidents.ExportCSV(r.Context(), &buf, incidentFilter(r)); err != nil {
		writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("event-records-%s.csv", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(buf.Bytes())
}

type alertView struct {
	entity.Incident
	Severity entity.Severity `json:"severity"`
}

func (s *Server) handleAlertPanel(w http.ResponseWriter, r *http.Request) {
	active, err := s.c.Incidents.ActiveAlerts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := s.c.Settings.Notifications()
	if err != nil {
		writeError(w, r, err)
		return
	}

	alerts := make([]alertView, 0, len(active))
	for _, i := range active {
		alerts = append(alerts, alertView{Incident: i, Severity: i.Severity()})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts":   alerts,
		"settings": settings,
	})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if err := s.c.Incidents.Acknowledge(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": entity.IncidentStatusResolved})
}

func (s *Server) handleUpdateNotificationSettings(w http.ResponseWriter, r *http.Request) {
	var n entity.NotificationSettings
	if err := decodeBody(r, &n); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
		return
	}
	if err := s.c.Settings.UpdateNotifications(n); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.c.Settings.Notifications()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.c.Alerts.Notifications(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.c.Alerts.MarkNotificationRead(r.Context(), pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSystemSettings(w http.ResponseWriter, r *http.Request) {
	system, err := s.c.Settings.System()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, system)
}

func (s *Server) handleUpdateSystemSettings(w http.ResponseWriter, r *http.Request) {
	var system entity.SystemSettings
	if err := decodeBody(r, &system); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
		return
	}
	if err := s.c.Settings.UpdateSystem(system); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.c.Settings.System()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleSurveillance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.c.Stream.Snapshot())
}

type streamStartRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	var req streamStartRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
			return
		}
	}

	if err := s.c.Stream.Start(s.baseCtx, req.Endpoint); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.c.Stream.Snapshot())
}

func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	s.c.Stream.Stop()
	writeJSON(w, http.StatusOK, s.c.Stream.Snapshot())
}

// handleDetect принимает снимок полем image формы multipart
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			writeError(w, r, entity.ErrNoImage)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
		return
	}

	detections, err := s.c.Manual.Detect(r.Context(), &entity.ImageUpload{Filename: header.Filename, Data: data})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entity.DetectionResponse{
		Detections:      detections,
		TotalDetections: len(detections),
	})
}
