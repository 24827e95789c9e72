//go:build gocv
// +build gocv

package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
)

// WebcamCamera захватывает локальную камеру через OpenCV.
type WebcamCamera struct {
	DeviceID int
	Width    int
	Height   int
}

// NewWebcamCamera создаёт камеру с запрошенным разрешением захвата.
func NewWebcamCamera(deviceID, width, height int) *WebcamCamera {
	return &WebcamCamera{DeviceID: deviceID, Width: width, Height: height}
}

// Open захватывает устройство. Занятое или отсутствующее устройство даёт ErrCameraUnavailable.
func (c *WebcamCamera) Open(ctx context.Context) (port.CaptureDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	capture, err := gocv.OpenVideoCapture(c.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: open device %d: %v", entity.ErrCameraUnavailable, c.DeviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: device %d is not opened", entity.ErrCameraUnavailable, c.DeviceID)
	}

	if c.Width > 0 && c.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}

	return &webcamDevice{capture: capture, mat: gocv.NewMat()}, nil
}

type webcamDevice struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	closed  bool
}

// Frame читает текущий кадр в image.Image.
func (d *webcamDevice) Frame() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("camera released")
	}
	if ok := d.capture.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, errors.New("no frame available")
	}
	return d.mat.ToImage()
}

func (d *webcamDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.mat.Close()
	return d.capture.Close()
}
