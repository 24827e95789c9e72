package app

import (
	"sync"
	"time"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/logger"
)

// DetectionBoard хранит последний набор детекций, который видит оператор.
// Набор всегда заменяется целиком: накопления и слияния нет.
type DetectionBoard struct {
	mu         sync.RWMutex
	detections []entity.Detection
	updatedAt  time.Time
	lastStatus string
}

// NewDetectionBoard создаёт пустую панель детекций.
func NewDetectionBoard() *DetectionBoard {
	return &DetectionBoard{detections: []entity.Detection{}}
}

// Apply обрабатывает входящее сообщение детектора. Возвращает false, если сообщение отброшено.
func (b *DetectionBoard) Apply(msg entity.InboundMessage) bool {
	switch msg.Kind {
	case entity.KindDetections:
		b.Replace(msg.Detections)
		return true
	case entity.KindStatus, entity.KindConnectionEstablished:
		b.mu.Lock()
		b.lastStatus = msg.Message
		b.mu.Unlock()
		logger.Info("Detections", "%s: %s", msg.Kind, msg.Message)
		return true
	default:
		return false
	}
}

// Replace заменяет набор детекций (пустой список очищает панель).
func (b *DetectionBoard) Replace(detections []entity.Detection) {
	next := make([]entity.Detection, len(detections))
	copy(next, detections)

	b.mu.Lock()
	b.detections = next
	b.updatedAt = time.Now()
	b.mu.Unlock()
}

// Snapshot возвращает копию текущего набора.
func (b *DetectionBoard) Snapshot() []entity.Detection {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]entity.Detection, len(b.detections))
	copy(out, b.detections)
	return out
}

// UpdatedAt время последней замены набора.
func (b *DetectionBoard) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updatedAt
}

// LastStatus текст последнего информационного сообщения детектора.
func (b *DetectionBoard) LastStatus() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastStatus
}
