package overlay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"edgeview/internal/core/domain"
)

var ErrUnknownPayload = errors.New("message carries no detections field")

// edgeDetection is the compact box the edge detector publishes: top-left
// corner plus size, all normalized, and a class index.
type edgeDetection struct {
	Class      int     `json:"cls"`
	Confidence float64 `json:"conf"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
}

type wireMessage struct {
	Detections *[]domain.Detection `json:"detections"`
	Dets       *[]edgeDetection    `json:"dets"`
	T          float64             `json:"t"`
	W          int                 `json:"w"`
	H          int                 `json:"h"`
}

// Decoder turns socket messages into detection batches.
type Decoder struct {
	classNames []string
}

func NewDecoder(classNames []string) *Decoder {
	return &Decoder{classNames: append([]string(nil), classNames...)}
}

func (d *Decoder) className(cls int) string {
	if cls >= 0 && cls < len(d.classNames) && d.classNames[cls] != "" {
		return d.classNames[cls]
	}
	return fmt.Sprintf("class %d", cls)
}

// Decode accepts either {detections:[{x1,y1,x2,y2,label,confidence}]} or
// {t,w,h,dets:[{cls,conf,x,y,w,h}]}. Coordinates are clamped to [0,1].
func (d *Decoder) Decode(data []byte, received time.Time) (domain.DetectionBatch, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.DetectionBatch{}, fmt.Errorf("invalid detection message: %w", err)
	}

	batch := domain.DetectionBatch{FrameW: msg.W, FrameH: msg.H, ReceivedAt: received}
	switch {
	case msg.Detections != nil:
		batch.Detections = make([]domain.Detection, 0, len(*msg.Detections))
		for _, det := range *msg.Detections {
			batch.Detections = append(batch.Detections, det.Normalize())
		}
	case msg.Dets != nil:
		batch.Detections = make([]domain.Detection, 0, len(*msg.Dets))
		for _, det := range *msg.Dets {
			batch.Detections = append(batch.Detections, domain.Detection{
				X1:         det.X,
				Y1:         det.Y,
				X2:         det.X + det.W,
				Y2:         det.Y + det.H,
				Label:      d.className(det.Class),
				Confidence: det.Confidence,
			}.Normalize())
		}
	default:
		return domain.DetectionBatch{}, ErrUnknownPayload
	}
	return batch, nil
}
