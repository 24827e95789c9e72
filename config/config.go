package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	CameraWebcam    = "webcam"
	CameraDirectory = "directory"
)

// Config настройки консоли. Порядок: значения по умолчанию, YAML-файл из SAFEEYE_CONFIG,
// затем переменные окружения.
type Config struct {
	Backend struct {
		URL     string        `yaml:"url" env:"SAFEEYE_BACKEND_URL"`
		Timeout time.Duration `yaml:"timeout" env:"SAFEEYE_BACKEND_TIMEOUT"`
	} `yaml:"backend"`

	Stream struct {
		Endpoint        string        `yaml:"endpoint" env:"SAFEEYE_DETECT_WS"`
		Origin          string        `yaml:"origin" env:"SAFEEYE_DETECT_ORIGIN"`
		CaptureInterval time.Duration `yaml:"capture_interval" env:"SAFEEYE_CAPTURE_INTERVAL"`
		FrameWidth      int           `yaml:"frame_width" env:"SAFEEYE_FRAME_WIDTH"`
		FrameHeight     int           `yaml:"frame_height" env:"SAFEEYE_FRAME_HEIGHT"`
		FrameQuality    int           `yaml:"frame_quality" env:"SAFEEYE_FRAME_QUALITY"`
	} `yaml:"stream"`

	Camera struct {
		Source    string `yaml:"source" env:"SAFEEYE_CAMERA_SOURCE"`
		DeviceID  int    `yaml:"device_id" env:"SAFEEYE_CAMERA_DEVICE"`
		FramesDir string `yaml:"frames_dir" env:"SAFEEYE_CAMERA_FRAMES_DIR"`
	} `yaml:"camera"`

	HTTP struct {
		Addr string `yaml:"addr" env:"SAFEEYE_HTTP_ADDR"`
	} `yaml:"http"`

	Telegram struct {
		Token       string `yaml:"token" env:"TELEGRAM_TOKEN"`
		AlertChatID int64  `yaml:"alert_chat_id" env:"TELEGRAM_ALERT_CHAT_ID"`
	} `yaml:"telegram"`

	Alerts struct {
		PollInterval time.Duration `yaml:"poll_interval" env:"SAFEEYE_ALERT_POLL_INTERVAL"`
	} `yaml:"alerts"`

	Site struct {
		Cameras       int `yaml:"cameras" env:"SAFEEYE_SITE_CAMERAS"`
		CoverageAreas int `yaml:"coverage_areas" env:"SAFEEYE_SITE_COVERAGE_AREAS"`
	} `yaml:"site"`

	Storage struct {
		SettingsFile string `yaml:"settings_file" env:"SAFEEYE_SETTINGS_FILE"`
		TokenFile    string `yaml:"token_file" env:"SAFEEYE_TOKEN_FILE"`
	} `yaml:"storage"`

	Log struct {
		Level string `yaml:"level" env:"SAFEEYE_LOG_LEVEL"`
		Color bool   `yaml:"color" env:"SAFEEYE_LOG_COLOR"`
	} `yaml:"log"`
}

// Default возвращает настройки локального стенда
func Default() *Config {
	cfg := &Config{}
	cfg.Backend.URL = "http://127.0.0.1:8000"
	cfg.Backend.Timeout = 30 * time.Second
	cfg.Stream.Endpoint = "ws://127.0.0.1:8000/ws/detect/"
	cfg.Stream.CaptureInterval = 500 * time.Millisecond
	cfg.Stream.FrameWidth = 640
	cfg.Stream.FrameHeight = 480
	cfg.Stream.FrameQuality = 70
	cfg.Camera.Source = CameraWebcam
	cfg.HTTP.Addr = ":8080"
	cfg.Alerts.PollInterval = 10 * time.Second
	cfg.Site.Cameras = 24
	cfg.Site.CoverageAreas = 8
	cfg.Storage.SettingsFile = "data/settings.yaml"
	cfg.Log.Level = "info"
	return cfg
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	return LoadFile(os.Getenv("SAFEEYE_CONFIG"))
}

// LoadFile читает YAML поверх значений по умолчанию; пустой путь пропускает файл
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Переменные окружения имеют приоритет
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Backend.URL == "" {
		errs = append(errs, errors.New("backend url is required"))
	}
	if c.Stream.Endpoint == "" {
		errs = append(errs, errors.New("detector socket endpoint is required"))
	}
	if c.Stream.CaptureInterval <= 0 {
		errs = append(errs, fmt.Errorf("capture interval must be positive, got %s", c.Stream.CaptureInterval))
	}
	if c.Stream.FrameQuality < 1 || c.Stream.FrameQuality > 100 {
		errs = append(errs, fmt.Errorf("frame quality must be in [1, 100], got %d", c.Stream.FrameQuality))
	}
	switch c.Camera.Source {
	case CameraWebcam:
	case CameraDirectory:
		if c.Camera.FramesDir == "" {
			errs = append(errs, errors.New("camera frames_dir is required for directory source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown camera source %q", c.Camera.Source))
	}
	return errors.Join(errs...)
}
