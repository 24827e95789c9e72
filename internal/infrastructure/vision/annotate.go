package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"safe-eye-console/internal/domain/entity"
)

const (
	annotateQuality = 90
	boxThickness    = 2
)

var (
	boxColor   = color.NRGBA{R: 255, G: 48, B: 48, A: 255}
	labelColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// Annotator рисует рамки и подписи детекций поверх снимка.
type Annotator struct{}

func NewAnnotator() *Annotator {
	return &Annotator{}
}

// Annotate возвращает JPEG с рамками. Детекции без рамки пропускаются.
func (a *Annotator) Annotate(data []byte, detections []entity.Detection) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	canvas := imaging.Clone(src)

	for _, d := range detections {
		if d.Box == nil {
			continue
		}
		rect := image.Rect(int(d.Box.X1), int(d.Box.Y1), int(d.Box.X2), int(d.Box.Y2)).Intersect(canvas.Bounds())
		if rect.Empty() {
			continue
		}
		drawRect(canvas, rect)
		drawLabel(canvas, rect, d.String())
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(annotateQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func drawRect(dst *image.NRGBA, r image.Rectangle) {
	fill := image.NewUniform(boxColor)
	for i := 0; i < boxThickness; i++ {
		edges := []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y+i, r.Max.X, r.Min.Y+i+1),
			image.Rect(r.Min.X, r.Max.Y-i-1, r.Max.X, r.Max.Y-i),
			image.Rect(r.Min.X+i, r.Min.Y, r.Min.X+i+1, r.Max.Y),
			image.Rect(r.Max.X-i-1, r.Min.Y, r.Max.X-i, r.Max.Y),
		}
		for _, e := range edges {
			draw.Draw(dst, e.Intersect(dst.Bounds()), fill, image.Point{}, draw.Src)
		}
	}
}

// drawLabel пишет подпись на плашке над рамкой (или внутри, если сверху нет места)
func drawLabel(dst *image.NRGBA, r image.Rectangle, text string) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Height + 2

	top := r.Min.Y - height
	if top < dst.Bounds().Min.Y {
		top = r.Min.Y
	}
	plate := image.Rect(r.Min.X, top, r.Min.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, plate, image.NewUniform(boxColor), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(r.Min.X+2, top+face.Ascent+1),
	}
	d.DrawString(text)
}
