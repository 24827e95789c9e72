package port

import (
	"context"
	"image"
	"time"

	"safe-eye-console/internal/domain/entity"
)

// StreamConn одно двунаправленное соединение с детектором.
type StreamConn interface {
	// Send отправляет бинарный кадр
	Send(frame []byte) error
	// Receive блокируется до следующего сообщения или закрытия соединения
	Receive() ([]byte, error)
	// Close закрывает соединение; повторный вызов безопасен
	Close() error
}

// StreamDialer открывает соединение с детектором
type StreamDialer interface {
	Dial(ctx context.Context, endpoint string) (StreamConn, error)
}

// CaptureDevice захваченная камера.
type CaptureDevice interface {
	// Frame возвращает текущий кадр
	Frame() (image.Image, error)
	// Close освобождает устройство
	Close() error
}

// Camera выдаёт доступ к камере. Ошибка означает отказ в доступе или отсутствие устройства.
type Camera interface {
	Open(ctx context.Context) (CaptureDevice, error)
}

// FrameEncoder кодирует кадр для отправки
type FrameEncoder interface {
	Encode(img image.Image) ([]byte, error)
}

// Ticker источник тиков цикла захвата.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory создаёт тикер с заданным интервалом
type TickerFactory func(d time.Duration) Ticker

// StreamMetrics получает события живого потока
type StreamMetrics interface {
	FrameSent(bytes int)
	FrameSkipped()
	FrameDropped()
	MessageReceived(kind entity.MessageKind)
	MessageDropped()
	StateChanged(state entity.StreamState)
}

// Annotator рисует рамки детекций на изображении
type Annotator interface {
	Annotate(data []byte, detections []entity.Detection) ([]byte, error)
}
