//go:build !gocv
// +build !gocv

package vision

import (
	"context"
	"fmt"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
)

// WebcamCamera заглушка без OpenCV.
type WebcamCamera struct {
	DeviceID int
	Width    int
	Height   int
}

// NewWebcamCamera создаёт камеру-заглушку (без OpenCV).
func NewWebcamCamera(deviceID, width, height int) *WebcamCamera {
	return &WebcamCamera{DeviceID: deviceID, Width: width, Height: height}
}

// Open возвращает ошибку, если сборка без тега gocv.
func (c *WebcamCamera) Open(ctx context.Context) (port.CaptureDevice, error) {
	_ = ctx
	return nil, fmt.Errorf("%w: gocv build tag is not enabled", entity.ErrCameraUnavailable)
}
