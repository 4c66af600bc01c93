package model

// Directions are eighth-turns clockwise from north: 0=N, 2=E, 4=S, 6=W.
// Four-way entities only use even values.
const (
	North = 0
	East  = 2
	South = 4
	West  = 6
)

// NormalizeDirection folds any integer into [0,7].
func NormalizeDirection(d int) int {
	d %= 8
	if d < 0 {
		d += 8
	}
	return d
}

func Opposite(d int) int { return NormalizeDirection(d + 4) }

// QuarterTurned reports whether d is a 90 or 270 degree orientation.
func QuarterTurned(d int) bool {
	d = NormalizeDirection(d)
	return d == East || d == West
}

// RotatedSize swaps the sides of a non-square base size when the direction
// is quarter-turned.
func RotatedSize(base Size, d int) Size {
	if base.X != base.Y && QuarterTurned(d) {
		return Size{X: base.Y, Y: base.X}
	}
	return base
}

// Step returns the unit cell offset for a cardinal direction. Diagonals map
// to the zero vector.
func Step(d int) (dx, dy int) {
	switch NormalizeDirection(d) {
	case North:
		return 0, -1
	case East:
		return 1, 0
	case South:
		return 0, 1
	case West:
		return -1, 0
	default:
		return 0, 0
	}
}

// RotateOffset rotates a cell offset clockwise by the given number of
// quarter turns.
func RotateOffset(dx, dy, quarter int) (int, int) {
	switch ((quarter % 4) + 4) % 4 {
	case 0:
		return dx, dy
	case 1:
		return -dy, dx
	case 2:
		return -dx, -dy
	default:
		return dy, -dx
	}
}
