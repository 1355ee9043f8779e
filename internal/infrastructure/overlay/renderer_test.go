package overlay

import (
	"bytes"
	"image/png"
	"testing"

	"edgeview/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchOf(dets ...domain.Detection) domain.DetectionBatch {
	return domain.DetectionBatch{Detections: dets}
}

func TestRenderer_PaintsBoxStroke(t *testing.T) {
	r := NewRenderer(200, 100)
	r.Render(batchOf(domain.Detection{X1: 0.25, Y1: 0.4, X2: 0.75, Y2: 0.9, Label: "tool", Confidence: 0.75}))

	img := r.Image()
	// Left edge of the box at x=50.
	assert.Equal(t, boxColor, img.RGBAAt(50, 60))
	// Interior stays transparent.
	assert.Equal(t, uint8(0), img.RGBAAt(100, 70).A)
	// Label sits above the box.
	labelPainted := false
	for y := 25; y < 40; y++ {
		for x := 50; x < 120; x++ {
			if img.RGBAAt(x, y).A != 0 {
				labelPainted = true
			}
		}
	}
	assert.True(t, labelPainted)
}

func TestRenderer_ClearsPreviousBatch(t *testing.T) {
	r := NewRenderer(100, 100)
	r.Render(batchOf(domain.Detection{X1: 0.1, Y1: 0.5, X2: 0.4, Y2: 0.8}))
	require.Equal(t, boxColor, r.Image().RGBAAt(10, 60))

	r.Render(batchOf())
	img := r.Image()
	for _, px := range img.Pix {
		if px != 0 {
			t.Fatal("surface not cleared by empty batch")
		}
	}
}

func TestRenderer_FollowsActiveSlot(t *testing.T) {
	r := NewRenderer(100, 100)
	active := domain.SlotID("slot_a")
	follow := r.FollowActive(func() (domain.SlotID, bool) { return active, active != "" })

	follow()
	require.Equal(t, domain.SlotID("slot_a"), r.Slot())

	r.Render(batchOf(domain.Detection{X1: 0.1, Y1: 0.5, X2: 0.4, Y2: 0.8}))
	follow()
	assert.Len(t, r.Batch().Detections, 1, "same slot keeps the batch")

	active = "slot_b"
	follow()
	assert.Equal(t, domain.SlotID("slot_b"), r.Slot())
	assert.Empty(t, r.Batch().Detections)
	for _, px := range r.Image().Pix {
		if px != 0 {
			t.Fatal("surface not cleared on slot switch")
		}
	}

	active = ""
	follow()
	assert.Empty(t, r.Slot())
}

func TestRenderer_ResizeRepaints(t *testing.T) {
	r := NewRenderer(100, 100)
	r.Render(batchOf(domain.Detection{X1: 0.5, Y1: 0.5, X2: 1, Y2: 1}))

	r.Resize(300, 200)
	w, h := r.Size()
	assert.Equal(t, 300, w)
	assert.Equal(t, 200, h)
	assert.Equal(t, boxColor, r.Image().RGBAAt(150, 150))
}

func TestRenderer_LabelInsideWhenBoxAtTop(t *testing.T) {
	r := NewRenderer(100, 100)
	r.Render(batchOf(domain.Detection{X1: 0, Y1: 0, X2: 0.9, Y2: 0.9, Label: "x", Confidence: 1}))
	// The first row is the stroke, not clipped text.
	assert.Equal(t, boxColor, r.Image().RGBAAt(50, 0))
}

func TestRenderer_EncodePNG(t *testing.T) {
	r := NewRenderer(64, 32)
	r.Render(batchOf(domain.Detection{X1: 0.1, Y1: 0.1, X2: 0.9, Y2: 0.9}))

	var buf bytes.Buffer
	require.NoError(t, r.EncodePNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}
