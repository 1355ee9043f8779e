package domain

import "time"

// Detection is one bounding box with coordinates normalized to [0,1]
// relative to the source frame.
type Detection struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type DetectionBatch struct {
	Detections []Detection `json:"detections"`
	FrameW     int         `json:"frame_w,omitempty"`
	FrameH     int         `json:"frame_h,omitempty"`
	ReceivedAt time.Time   `json:"received_at"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Normalize clamps coordinates into [0,1] and orders the corners so that
// (X1,Y1) is top-left.
func (d Detection) Normalize() Detection {
	d.X1, d.Y1, d.X2, d.Y2 = clamp01(d.X1), clamp01(d.Y1), clamp01(d.X2), clamp01(d.Y2)
	if d.X1 > d.X2 {
		d.X1, d.X2 = d.X2, d.X1
	}
	if d.Y1 > d.Y2 {
		d.Y1, d.Y2 = d.Y2, d.Y1
	}
	return d
}
