package score

import "math"

// Level is the display bucket of a rating.
type Level int

const (
	VeryPoor Level = iota
	Poor
	Moderate
	Good
	Excellent
)

// lower bounds, closed; anything below the Poor bound is VeryPoor
const (
	poorMin      = 2.0
	moderateMin  = 4.0
	goodMin      = 6.0
	excellentMin = 8.0

	ratingPrecision = 2
)

var levels = map[Level]struct {
	label       string
	color       string
	description string
}{
	VeryPoor: {"Very Poor", "#dc2626",
		"These ingredients are likely unhealthy and should be consumed sparingly or avoided."},
	Poor: {"Poor", "#ef4444",
		"These ingredients may have limited nutritional value or contain unhealthy components."},
	Moderate: {"Moderate", "#f59e0b",
		"These ingredients are acceptable but could be improved with healthier alternatives."},
	Good: {"Good", "#3b82f6",
		"These ingredients are generally healthy with some nutritional value."},
	Excellent: {"Excellent", "#10b981",
		"These ingredients are highly nutritious and beneficial for your health."},
}

// Levels lists all levels from worst to best.
func Levels() []Level {
	return []Level{VeryPoor, Poor, Moderate, Good, Excellent}
}

func (l Level) String() string { return levels[l].label }

// Color is the hex display color.
func (l Level) Color() string { return levels[l].color }

// Description is a one-sentence explanation shown next to the rating.
func (l Level) Description() string { return levels[l].description }

// Classify maps a rating to its level. Ratings are not clamped; values
// outside 0-10 fall into the open-ended top or bottom bucket.
func Classify(rating float64) Level {
	switch {
	case rating >= excellentMin:
		return Excellent
	case rating >= goodMin:
		return Good
	case rating >= moderateMin:
		return Moderate
	case rating >= poorMin:
		return Poor
	default:
		return VeryPoor
	}
}

// Round returns rating rounded to two decimals.
func Round(rating float64) float64 {
	p := math.Pow(10, ratingPrecision)
	return math.Round(rating*p) / p
}
