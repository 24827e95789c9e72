package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"safe-eye-console/internal/container"
	"safe-eye-console/internal/logger"
)

// Server HTTP-шлюз панели оператора
type Server struct {
	c       *container.Container
	metrics http.Handler
	handler http.Handler

	// baseCtx задаёт время жизни сервера; живой поток привязан к нему, а не к запросу
	baseCtx context.Context
}

func NewServer(c *container.Container, metrics http.Handler) *Server {
	s := &Server{
		c:       c,
		metrics: metrics,
		baseCtx: context.Background(),
	}
	// Guard оборачивает весь роутер, чтобы закрыть и пути без маршрута
	s.handler = logRequests(Guard(c.Auth, s.routes()))
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/logout", s.handleLogout).Methods("POST")

	r.HandleFunc("/dashboard", s.handleDashboard).Methods("GET")

	r.HandleFunc("/event-records", s.handleEventRecords).Methods("GET")
	r.HandleFunc("/event-records/export.csv", s.handleExportCSV).Methods("GET")

	r.HandleFunc("/alert-panel", s.handleAlertPanel).Methods("GET")
	r.HandleFunc("/alert-panel/alerts/{id:[0-9]+}/ack", s.handleAcknowledge).Methods("POST")
	r.HandleFunc("/alert-panel/settings", s.handleUpdateNotificationSettings).Methods("PUT")
	r.HandleFunc("/alert-panel/notifications", s.handleNotifications).Methods("GET")
	r.HandleFunc("/alert-panel/notifications/{id:[0-9]+}/read", s.handleMarkNotificationRead).Methods("POST")

	r.HandleFunc("/system-settings", s.handleSystemSettings).Methods("GET")
	r.HandleFunc("/system-settings", s.handleUpdateSystemSettings).Methods("PUT")

	r.HandleFunc("/surveillance-view", s.handleSurveillance).Methods("GET")
	r.HandleFunc("/surveillance-view/stream/start", s.handleStreamStart).Methods("POST")
	r.HandleFunc("/surveillance-view/stream/stop", s.handleStreamStop).Methods("POST")
	r.HandleFunc("/surveillance-view/detect", s.handleDetect).Methods("POST")

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods("GET")
	}
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run слушает addr до отмены ctx
func (s *Server) Run(ctx context.Context, addr string) error {
	s.baseCtx = ctx

	srv := &http.Server{
		Handler:      s,
		Addr:         addr,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Web", "Starting server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("Web", "%s %s %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}
