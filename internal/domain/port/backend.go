package port

import (
	"context"

	"safe-eye-console/internal/domain/entity"
)

// Authenticator выдаёт токены по логину и паролю
type Authenticator interface {
	ObtainTokens(ctx context.Context, creds entity.Credentials) (entity.Tokens, error)
}

// IncidentRepository журнал происшествий на бэкенде
type IncidentRepository interface {
	// List возвращает записи в порядке бэкенда (новые первыми)
	List(ctx context.Context) ([]entity.Incident, error)
	// UpdateStatus меняет статус записи (подтверждение/закрытие тревоги)
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// NotificationRepository уведомления пользователя на бэкенде
type NotificationRepository interface {
	List(ctx context.Context) ([]entity.Notification, error)
	MarkRead(ctx context.Context, id int64) error
}

// ImageDetector выполняет разовое распознавание изображения
type ImageDetector interface {
	DetectImage(ctx context.Context, upload *entity.ImageUpload) ([]entity.Detection, error)
}

// Session процессная сессия оператора, которую видит REST-клиент.
type Session interface {
	// AccessToken возвращает текущий токен доступа
	AccessToken() (string, bool)
	// HandleUnauthorized вызывается на любой 401
	HandleUnauthorized()
}
