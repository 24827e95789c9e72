package app

import (
	"context"
	"fmt"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
	"safe-eye-console/internal/logger"
)

// ManualDetectionService разовое распознавание загруженного снимка.
type ManualDetectionService struct {
	detector  port.ImageDetector
	board     *DetectionBoard
	annotator port.Annotator
}

func NewManualDetectionService(detector port.ImageDetector, board *DetectionBoard, annotator port.Annotator) *ManualDetectionService {
	return &ManualDetectionService{detector: detector, board: board, annotator: annotator}
}

// Detect отправляет снимок на распознавание. Без снимка запрос не выполняется.
// При ошибке панель детекций не меняется, повторов нет.
func (s *ManualDetectionService) Detect(ctx context.Context, upload *entity.ImageUpload) ([]entity.Detection, error) {
	if upload.Empty() {
		return nil, entity.ErrNoImage
	}

	detections, err := s.detector.DetectImage(ctx, upload)
	if err != nil {
		logger.Error("Manual", "Detect %s: %v", upload.Filename, err)
		return nil, fmt.Errorf("detect image: %w", err)
	}

	s.board.Replace(detections)
	logger.Info("Manual", "Detected %d objects in %s", len(detections), upload.Filename)
	return detections, nil
}

// Annotate рисует рамки детекций поверх снимка.
func (s *ManualDetectionService) Annotate(upload *entity.ImageUpload, detections []entity.Detection) ([]byte, error) {
	if upload.Empty() {
		return nil, entity.ErrNoImage
	}
	if s.annotator == nil || len(detections) == 0 {
		return upload.Data, nil
	}
	return s.annotator.Annotate(upload.Data, detections)
}
