package container

import (
	"time"

	app "safe-eye-console/internal/application"
	"safe-eye-console/internal/domain/port"
	"safe-eye-console/internal/logger"
)

// Deps порты, из которых собирается приложение
type Deps struct {
	Authenticator port.Authenticator
	Incidents     port.IncidentRepository
	Notifications port.NotificationRepository
	Detector      port.ImageDetector
	Tokens        port.TokenStore
	SettingsStore port.SettingsStore
	Operators     port.OperatorRepository

	Dialer    port.StreamDialer
	Camera    port.Camera
	Encoder   port.FrameEncoder
	Annotator port.Annotator
	Notifier  port.Notifier

	Stream            app.StreamConfig
	Site              app.SiteInfo
	AlertPollInterval time.Duration
}

type Container struct {
	Auth      *app.AuthSession
	Board     *app.DetectionBoard
	Stream    *app.StreamService
	Manual    *app.ManualDetectionService
	Incidents *app.IncidentService
	Settings  *app.SettingsService
	Alerts    *app.AlertService
	Watcher   *app.AlertWatcher
	Operators *app.OperatorService
}

func New(d Deps) *Container {
	auth := app.NewAuthSession(d.Authenticator, d.Tokens)
	board := app.NewDetectionBoard()
	stream := app.NewStreamService(d.Dialer, d.Camera, d.Encoder, board, d.Stream)
	incidents := app.NewIncidentService(d.Incidents, d.Site)
	settings := app.NewSettingsService(d.SettingsStore)
	alerts := app.NewAlertService(settings, d.Notifier, d.Notifications)

	// глобальный выход закрывает живой поток
	auth.OnLogout(func() {
		logger.Info("Container", "Session ended, stopping live stream")
		stream.Stop()
	})

	return &Container{
		Auth:      auth,
		Board:     board,
		Stream:    stream,
		Manual:    app.NewManualDetectionService(d.Detector, board, d.Annotator),
		Incidents: incidents,
		Settings:  settings,
		Alerts:    alerts,
		Watcher:   app.NewAlertWatcher(incidents, alerts, d.AlertPollInterval),
		Operators: app.NewOperatorService(d.Operators),
	}
}
