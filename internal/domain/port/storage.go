package port

import (
	"context"

	"safe-eye-console/internal/domain/entity"
)

// TokenStore хранит выданные токены между запусками
type TokenStore interface {
	Load() (entity.Tokens, error)
	Save(tokens entity.Tokens) error
	Clear() error
}

// SettingsStore хранит настройки панелей
type SettingsStore interface {
	Load() (entity.Settings, error)
	Save(settings entity.Settings) error
}

// Notifier доставляет текст тревоги во внешний канал
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
