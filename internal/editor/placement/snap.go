package placement

import (
	"math"

	"beltline.dev/internal/editor/mirror"
	"beltline.dev/internal/editor/model"
)

// Snapper converts between pointer pixels and grid positions for one tile
// size.
type Snapper struct {
	Tile float64
	// RailOffset shifts the 2-tile rail lattice, in tiles.
	RailOffset model.Position
}

func (s Snapper) half() float64 { return s.Tile / 2 }

// Cell is the half-tile cell under the pointer. Drag updates only happen
// when it changes.
func (s Snapper) Cell(p mirror.Pixel) [2]int {
	h := s.half()
	return [2]int{
		int((p.X - math.Mod(p.X, h)) / h),
		int((p.Y - math.Mod(p.Y, h)) / h),
	}
}

// Footprint snaps a pointer position so the footprint lands on whole cells:
// even sides snap to tile edges, odd sides to tile centres.
func (s Snapper) Footprint(p mirror.Pixel, size model.Size) mirror.Pixel {
	return mirror.Pixel{X: s.axis(p.X, size.X), Y: s.axis(p.Y, size.Y)}
}

func (s Snapper) axis(v float64, n int) float64 {
	h := s.half()
	if n%2 == 0 {
		nv := v - math.Mod(v, h)
		if math.Mod(nv, s.Tile) == 0 {
			return nv
		}
		return nv + h
	}
	return v - math.Mod(v, s.Tile) + h
}

// Rail snaps rail-like entities to the 2-tile rail lattice.
func (s Snapper) Rail(p mirror.Pixel) mirror.Pixel {
	span := 2 * s.Tile
	return mirror.Pixel{
		X: p.X - math.Mod(p.X+s.RailOffset.X*s.Tile, span) + s.Tile,
		Y: p.Y - math.Mod(p.Y+s.RailOffset.Y*s.Tile, span) + s.Tile,
	}
}

// GridPosition converts a mirror position to grid units, rounded to a tenth.
func (s Snapper) GridPosition(p mirror.Pixel) model.Position {
	return model.Position{
		X: math.Round(p.X/s.Tile*10) / 10,
		Y: math.Round(p.Y/s.Tile*10) / 10,
	}
}

// RotationOffset is the nudge, in tiles, applied to a dragged non-square
// footprint when it turns: toward the pointer's half of the tile.
func (s Snapper) RotationOffset(pos mirror.Pixel, cell [2]int) model.Position {
	h := s.half()
	off := func(v float64, c int) float64 {
		if v/h-float64(c) == 0 {
			return 0.5
		}
		return -0.5
	}
	return model.Position{X: off(pos.X, cell[0]), Y: off(pos.Y, cell[1])}
}

func railLike(name string) bool {
	switch name {
	case "straight-rail", "curved-rail", "train-stop":
		return true
	}
	return false
}
