package services

import "edgeview/internal/core/domain"

// SelectLayout maps a pool size to its grid. Sizes beyond six keep the
// 2x3 grid; the extra slots are reported as overflow by BuildLayout.
func SelectLayout(count int) domain.GridShape {
	switch {
	case count <= 1:
		return domain.Grid1x1
	case count <= 2:
		return domain.Grid1x2
	case count <= 4:
		return domain.Grid2x2
	default:
		return domain.Grid2x3
	}
}

// BuildLayout derives the presentation for slots in insertion order. A
// non-empty fullscreen id that is present in slots forces a 1x1 grid
// showing only that slot.
func BuildLayout(slots []domain.SlotID, fullscreen domain.SlotID) domain.LayoutView {
	if fullscreen != "" {
		for _, id := range slots {
			if id == fullscreen {
				return domain.LayoutView{
					Shape:      domain.Grid1x1,
					Name:       "fullscreen",
					Fullscreen: fullscreen,
					Visible:    []domain.SlotID{fullscreen},
				}
			}
		}
	}

	shape := SelectLayout(len(slots))
	view := domain.LayoutView{
		Shape:   shape,
		Name:    "grid-" + shape.String(),
		Visible: []domain.SlotID{},
	}
	for i, id := range slots {
		if i < shape.Capacity() {
			view.Visible = append(view.Visible, id)
		} else {
			view.Overflow = append(view.Overflow, id)
		}
	}
	return view
}
