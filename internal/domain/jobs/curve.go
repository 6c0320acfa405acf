package jobs

import "math"

// DefaultExpBase scales the experience curve.
const DefaultExpBase = 100

// Bounds of stored progression. Both fit a 32-bit INTEGER column.
const (
	MaxLevel = 1_000_000
	MaxExp   = math.MaxInt32
)

// Curve maps a level to the cumulative experience required to leave it.
type Curve struct {
	Base int
}

// NewCurve returns a Curve; a non-positive base selects DefaultExpBase.
func NewCurve(base int) Curve {
	if base <= 0 {
		base = DefaultExpBase
	}
	return Curve{Base: base}
}

func (c Curve) base() int {
	if c.Base <= 0 {
		return DefaultExpBase
	}
	return c.Base
}

// ExpToLevel is the experience at which level is left for level+1. It
// saturates at math.MaxInt.
func (c Curve) ExpToLevel(level int) int {
	if level < 1 {
		level = 1
	}
	base := c.base()
	if level > isqrt(math.MaxInt/base) {
		return math.MaxInt
	}
	return base * level * level
}

// Apply returns the level reached with exp starting from level. Levels
// never go down and never pass MaxLevel.
func (c Curve) Apply(level, exp int) int {
	if level < 1 {
		level = 1
	}
	if exp < 0 {
		return level
	}
	// exp < base*L*L  <=>  exp/base < L*L
	reached := isqrt(exp/c.base()) + 1
	return min(max(level, reached), max(level, MaxLevel))
}

// AddExp adds delta to exp, clamped to [0, MaxExp].
func AddExp(exp, delta int) int {
	exp = min(max(exp, 0), MaxExp)
	delta = min(max(delta, -MaxExp), MaxExp)
	return min(max(exp+delta, 0), MaxExp)
}

// isqrt is floor(sqrt(n)) for n >= 0.
func isqrt(n int) int {
	if n <= 0 {
		return 0
	}
	r := int(math.Sqrt(float64(n)))
	for r > n/r {
		r--
	}
	for r+1 <= n/(r+1) {
		r++
	}
	return r
}
