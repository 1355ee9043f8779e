package domain

import "fmt"

// GridShape is a rows x columns presentation grid.
type GridShape struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

var (
	Grid1x1 = GridShape{Rows: 1, Cols: 1}
	Grid1x2 = GridShape{Rows: 1, Cols: 2}
	Grid2x2 = GridShape{Rows: 2, Cols: 2}
	Grid2x3 = GridShape{Rows: 2, Cols: 3}
)

func (g GridShape) Capacity() int { return g.Rows * g.Cols }

func (g GridShape) String() string { return fmt.Sprintf("%dx%d", g.Rows, g.Cols) }

// LayoutView is the grid derived from pool membership plus the slots it shows.
type LayoutView struct {
	Shape      GridShape `json:"shape"`
	Name       string    `json:"name"`
	Fullscreen SlotID    `json:"fullscreen,omitempty"`
	Visible    []SlotID  `json:"visible"`
	Overflow   []SlotID  `json:"overflow,omitempty"`
}
