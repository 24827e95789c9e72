package entity

import (
	"encoding/json"
	"fmt"
)

// Box рамка объекта в координатах исходного изображения [x1, y1, x2, y2].
type Box struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// Width возвращает ширину рамки
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height возвращает высоту рамки
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Center возвращает координаты центра рамки
func (b Box) Center() (x, y float64) {
	return b.X1 + b.Width()/2, b.Y1 + b.Height()/2
}

// UnmarshalJSON читает рамку из массива из четырёх чисел.
func (b *Box) UnmarshalJSON(data []byte) error {
	var coords []float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	if len(coords) != 4 {
		return fmt.Errorf("box: expected 4 coordinates, got %d", len(coords))
	}
	b.X1, b.Y1, b.X2, b.Y2 = coords[0], coords[1], coords[2], coords[3]
	return nil
}

// MarshalJSON пишет рамку тем же массивом, что присылает бэкенд.
func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X1, b.Y1, b.X2, b.Y2})
}

// Detection один распознанный объект/событие на последнем кадре.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        *Box    `json:"box,omitempty"`
}

// Percent возвращает уверенность в процентах для отображения.
func (d Detection) Percent() float64 {
	return d.Confidence * 100
}

// String форматирует детекцию так же, как список на панели: "label (93.5%)".
func (d Detection) String() string {
	return fmt.Sprintf("%s (%.1f%%)", d.Label, d.Percent())
}

// ImageUpload изображение, выбранное оператором для ручной проверки.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// Empty сообщает, что файл не выбран.
func (u *ImageUpload) Empty() bool {
	return u == nil || len(u.Data) == 0
}

// DetectionResponse ответ POST /api/ai/incident/.
type DetectionResponse struct {
	Detections      []Detection `json:"detections"`
	TotalDetections int         `json:"total_detections,omitempty"`
}
