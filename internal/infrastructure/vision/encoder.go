package vision

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	FrameWidth   = 640
	FrameHeight  = 480
	FrameQuality = 70
)

// JPEGEncoder растягивает кадр на холст фиксированного размера и кодирует его в JPEG.
type JPEGEncoder struct {
	Width   int
	Height  int
	Quality int
}

// NewJPEGEncoder создаёт кодировщик; нулевые значения заменяются на 640×480 и качество 70.
func NewJPEGEncoder(width, height, quality int) *JPEGEncoder {
	if width <= 0 || height <= 0 {
		width, height = FrameWidth, FrameHeight
	}
	if quality <= 0 || quality > 100 {
		quality = FrameQuality
	}
	return &JPEGEncoder{Width: width, Height: height, Quality: quality}
}

func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("empty frame")
	}

	frame := img
	if b := img.Bounds(); b.Dx() != e.Width || b.Dy() != e.Height {
		frame = imaging.Resize(img, e.Width, e.Height, imaging.Linear)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame, imaging.JPEG, imaging.JPEGQuality(e.Quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
