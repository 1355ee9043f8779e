package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sync"

	"edgeview/internal/core/domain"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	boxColor     = color.RGBA{R: 0x00, G: 0xe6, B: 0x76, A: 0xff}
	outlineColor = color.RGBA{A: 0xff}
	textColor    = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

const strokeWidth = 2

// Renderer paints the latest detection batch onto a transparent surface
// the size of the rendered video, drawn over the pool's active slot. Every
// Render starts from a cleared surface.
type Renderer struct {
	mu    sync.RWMutex
	img   *image.RGBA
	batch domain.DetectionBatch
	slot  domain.SlotID
	face  font.Face
}

func NewRenderer(width, height int) *Renderer {
	return &Renderer{
		img:  image.NewRGBA(image.Rect(0, 0, width, height)),
		face: basicfont.Face7x13,
	}
}

// Resize reallocates the surface and repaints the current batch at the new
// dimensions.
func (r *Renderer) Resize(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.img = image.NewRGBA(image.Rect(0, 0, width, height))
	r.paintLocked()
}

// SetSlot binds the surface to the slot it is drawn over. Switching slots
// clears the surface until the next batch arrives.
func (r *Renderer) SetSlot(id domain.SlotID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.slot {
		return
	}
	r.slot = id
	r.batch = domain.DetectionBatch{}
	r.paintLocked()
}

func (r *Renderer) Slot() domain.SlotID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slot
}

// FollowActive returns a pool change callback that keeps the surface on
// the active slot.
func (r *Renderer) FollowActive(active func() (domain.SlotID, bool)) func() {
	return func() {
		id, _ := active()
		r.SetSlot(id)
	}
}

func (r *Renderer) Size() (width, height int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b := r.img.Bounds()
	return b.Dx(), b.Dy()
}

func (r *Renderer) Render(batch domain.DetectionBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batch = batch
	r.paintLocked()
}

func (r *Renderer) paintLocked() {
	bounds := r.img.Bounds()
	draw.Draw(r.img, bounds, image.Transparent, image.Point{}, draw.Src)

	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	for _, det := range r.batch.Detections {
		rect := image.Rect(
			int(math.Round(det.X1*w)), int(math.Round(det.Y1*h)),
			int(math.Round(det.X2*w)), int(math.Round(det.Y2*h)),
		).Intersect(bounds)
		if rect.Empty() {
			continue
		}
		r.strokeRect(rect)
		r.label(rect, fmt.Sprintf("%s %.0f%%", det.Label, det.Confidence*100))
	}
}

func (r *Renderer) strokeRect(rect image.Rectangle) {
	src := image.NewUniform(boxColor)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+strokeWidth),
		image.Rect(rect.Min.X, rect.Max.Y-strokeWidth, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+strokeWidth, rect.Max.Y),
		image.Rect(rect.Max.X-strokeWidth, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(r.img, e.Intersect(rect), src, image.Point{}, draw.Src)
	}
}

// label draws text above the box, or just inside its top edge when the box
// touches the top of the surface. The outline keeps it legible on any frame.
func (r *Renderer) label(rect image.Rectangle, text string) {
	ascent := r.face.Metrics().Ascent.Ceil()
	baseline := rect.Min.Y - 3
	if baseline-ascent < 0 {
		baseline = rect.Min.Y + strokeWidth + ascent
	}
	x := rect.Min.X + strokeWidth

	d := &font.Drawer{Dst: r.img, Src: image.NewUniform(outlineColor), Face: r.face}
	for _, off := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		d.Dot = fixed.P(x+off[0], baseline+off[1])
		d.DrawString(text)
	}
	d.Src = image.NewUniform(textColor)
	d.Dot = fixed.P(x, baseline)
	d.DrawString(text)
}

// Batch returns the batch currently painted.
func (r *Renderer) Batch() domain.DetectionBatch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.batch
}

// Image returns a copy of the surface.
func (r *Renderer) Image() *image.RGBA {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := image.NewRGBA(r.img.Bounds())
	copy(cp.Pix, r.img.Pix)
	return cp
}

func (r *Renderer) EncodePNG(w io.Writer) error {
	return png.Encode(w, r.Image())
}
