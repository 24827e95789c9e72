package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"safe-eye-console/config"
	telegram "safe-eye-console/internal/api/telegram"
	"safe-eye-console/internal/api/web"
	app "safe-eye-console/internal/application"
	"safe-eye-console/internal/container"
	"safe-eye-console/internal/domain/port"
	"safe-eye-console/internal/infrastructure/backend"
	"safe-eye-console/internal/infrastructure/metrics"
	"safe-eye-console/internal/infrastructure/notify"
	"safe-eye-console/internal/infrastructure/storage"
	"safe-eye-console/internal/infrastructure/vision"
	"safe-eye-console/internal/infrastructure/wsstream"
	"safe-eye-console/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, cfg.Log.Color)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SettingsFile), 0o755); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}

	client := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)

	var tokens port.TokenStore = storage.NewMemoryTokenStore()
	if cfg.Storage.TokenFile != "" {
		tokens = storage.NewYAMLTokenStore(cfg.Storage.TokenFile)
	}

	var camera port.Camera
	switch cfg.Camera.Source {
	case config.CameraDirectory:
		camera = vision.NewDirectoryCamera(cfg.Camera.FramesDir)
	default:
		camera = vision.NewWebcamCamera(cfg.Camera.DeviceID, cfg.Stream.FrameWidth, cfg.Stream.FrameHeight)
	}

	// Telegram необязателен: без токена работает только веб-консоль
	var (
		botAPI   *tgbotapi.BotAPI
		notifier port.Notifier
	)
	if cfg.Telegram.Token != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			log.Fatalf("Failed to create bot: %v", err)
		}
		if cfg.Telegram.AlertChatID != 0 {
			notifier = notify.NewTelegramNotifier(botAPI, cfg.Telegram.AlertChatID)
		}
	}

	streamMetrics := metrics.New()

	appContainer := container.New(container.Deps{
		Authenticator: client,
		Incidents:     client.Incidents(),
		Notifications: client.Notifications(),
		Detector:      client,
		Tokens:        tokens,
		SettingsStore: storage.NewYAMLSettingsStore(cfg.Storage.SettingsFile),
		Operators:     storage.NewMemoryOperatorRepository(),
		Dialer:        wsstream.NewDialer(cfg.Stream.Origin),
		Camera:        camera,
		Encoder:       vision.NewJPEGEncoder(cfg.Stream.FrameWidth, cfg.Stream.FrameHeight, cfg.Stream.FrameQuality),
		Annotator:     vision.NewAnnotator(),
		Notifier:      notifier,
		Stream: app.StreamConfig{
			Endpoint:        cfg.Stream.Endpoint,
			CaptureInterval: cfg.Stream.CaptureInterval,
			Metrics:         streamMetrics,
		},
		Site: app.SiteInfo{
			Cameras:       cfg.Site.Cameras,
			CoverageAreas: cfg.Site.CoverageAreas,
		},
		AlertPollInterval: cfg.Alerts.PollInterval,
	})
	client.SetSession(appContainer.Auth)
	defer appContainer.Stream.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	server := web.NewServer(appContainer, streamMetrics.Handler())
	run("web", func(ctx context.Context) error {
		return server.Run(ctx, cfg.HTTP.Addr)
	})

	if notifier != nil {
		run("alerts", appContainer.Watcher.Run)
	}

	if botAPI != nil {
		bot := telegram.NewBot(botAPI, appContainer)
		run("telegram", bot.Run)
	}

	log.Println("Safe Eye console is running...")
	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
		wg.Wait()
	case err := <-errCh:
		appContainer.Stream.Close()
		log.Fatalf("Console error: %v", err)
	}
}
