package entity

import (
	"fmt"
	"strings"
	"time"
)

const (
	MinSensitivity     = 10
	MaxSensitivity     = 100
	SensitivityStep    = 5
	DefaultSensitivity = 75

	DefaultAlertTemplate = "URGENT ALERT: {EVENT_TYPE} detected at {LOCATION} on {DATE} at {TIME}. Severity Level: {SEVERITY}. Immediate response required."
)

// SystemSettings параметры панели системных настроек.
type SystemSettings struct {
	DetectionSensitivity int  `json:"detection_sensitivity" yaml:"detection_sensitivity"`
	AutoRecording        bool `json:"auto_recording" yaml:"auto_recording"`
	NightVision          bool `json:"night_vision" yaml:"night_vision"`
	MotionDetection      bool `json:"motion_detection" yaml:"motion_detection"`
}

// DefaultSystemSettings возвращает настройки по умолчанию.
func DefaultSystemSettings() SystemSettings {
	return SystemSettings{
		DetectionSensitivity: DefaultSensitivity,
		AutoRecording:        true,
		NightVision:          true,
		MotionDetection:      true,
	}
}

// Validate проверяет диапазон и шаг чувствительности.
func (s SystemSettings) Validate() error {
	if s.DetectionSensitivity < MinSensitivity || s.DetectionSensitivity > MaxSensitivity {
		return fmt.Errorf("%w: sensitivity %d out of range [%d, %d]",
			ErrInvalidSettings, s.DetectionSensitivity, MinSensitivity, MaxSensitivity)
	}
	if s.DetectionSensitivity%SensitivityStep != 0 {
		return fmt.Errorf("%w: sensitivity %d is not a multiple of %d",
			ErrInvalidSettings, s.DetectionSensitivity, SensitivityStep)
	}
	return nil
}

// NotificationSettings каналы оповещения и шаблон сообщения.
type NotificationSettings struct {
	Email    bool     `json:"email" yaml:"email"`
	SMS      bool     `json:"sms" yaml:"sms"`
	Sound    bool     `json:"sound" yaml:"sound"`
	Telegram bool     `json:"telegram" yaml:"telegram"`
	Contacts []string `json:"contacts" yaml:"contacts"`
	Template string   `json:"template" yaml:"template"`
}

// DefaultNotificationSettings возвращает настройки оповещений по умолчанию.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Email:    true,
		SMS:      false,
		Sound:    true,
		Telegram: true,
		Template: DefaultAlertTemplate,
	}
}

// Render подставляет данные происшествия в шаблон.
func (n NotificationSettings) Render(i Incident) string {
	tmpl := n.Template
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultAlertTemplate
	}

	ts := i.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	location := i.Location
	if location == "" {
		location = "Unknown"
	}

	r := strings.NewReplacer(
		"{EVENT_TYPE}", i.IncidentType,
		"{LOCATION}", location,
		"{DATE}", ts.Format("2006-01-02"),
		"{TIME}", ts.Format("15:04:05"),
		"{SEVERITY}", strings.ToUpper(string(i.Severity())),
	)
	return r.Replace(tmpl)
}

// Settings всё, что хранится в файле настроек.
type Settings struct {
	System        SystemSettings       `yaml:"system"`
	Notifications NotificationSettings `yaml:"notifications"`
}

// DefaultSettings возвращает полный набор настроек по умолчанию.
func DefaultSettings() Settings {
	return Settings{
		System:        DefaultSystemSettings(),
		Notifications: DefaultNotificationSettings(),
	}
}
