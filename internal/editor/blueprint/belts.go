package blueprint

import (
	"beltline.dev/internal/editor/model"
	"beltline.dev/internal/editor/record"
)

// BeltShape reports how the belt n visually connects: straight, or curved
// when exactly one side neighbour feeds into it and nothing feeds from
// behind. Non-belts are straight.
func (b *Blueprint) BeltShape(n int) int {
	r, err := b.Record(n)
	if err != nil || r.Kind() != "transport-belt" {
		return record.BeltStraight
	}
	d := model.NormalizeDirection(r.Direction())
	if b.feeds(r.Position(), model.Opposite(d), d) {
		return record.BeltStraight
	}
	left := b.feeds(r.Position(), d-2, d+2)
	right := b.feeds(r.Position(), d+2, d-2)
	switch {
	case left && !right:
		return record.BeltCurveLeft
	case right && !left:
		return record.BeltCurveRight
	default:
		return record.BeltStraight
	}
}

// feeds reports whether the belt-like entity next to pos on side faces
// toward pos.
func (b *Blueprint) feeds(pos model.Position, side, facing int) bool {
	dx, dy := model.Step(side)
	at := model.Position{X: pos.X + float64(dx), Y: pos.Y + float64(dy)}
	m, ok := b.grid.OccupantAt(at)
	if !ok {
		return false
	}
	nr, err := b.Record(m)
	if err != nil {
		return false
	}
	if nr.Direction() != model.NormalizeDirection(facing) {
		return false
	}
	switch nr.Kind() {
	case "transport-belt", "splitter":
		return true
	case "underground-belt":
		return nr.DirectionType() == model.DirectionOutput
	}
	return false
}
