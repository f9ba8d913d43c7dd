package codec

import (
	"fmt"
	"math"
)

type Level uint8

const (
	Excellent Level = iota
	Good
	Moderate
	Poor
	Bad
)

func (l Level) String() string {
	switch l {
	case Excellent:
		return "excellent"
	case Good:
		return "good"
	case Moderate:
		return "moderate"
	case Poor:
		return "poor"
	case Bad:
		return "bad"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// Advice is the hint printed next to a reading at this level.
func (l Level) Advice() string {
	switch l {
	case Moderate:
		return "consider ventilation"
	case Poor:
		return "open windows"
	case Bad:
		return "ventilate immediately"
	default:
		return ""
	}
}

// Classify maps CO2 ppm to a level. Bounds are inclusive below, exclusive
// above.
func Classify(co2 uint16) Level {
	switch {
	case co2 < 600:
		return Excellent
	case co2 < 800:
		return Good
	case co2 < 1000:
		return Moderate
	case co2 < 1500:
		return Poor
	default:
		return Bad
	}
}

// ClassifyIndex maps a VOC or NOx index (0-500) to a level. The index scales
// have no Excellent band.
func ClassifyIndex(idx uint16) Level {
	switch {
	case idx < 150:
		return Good
	case idx < 250:
		return Moderate
	case idx < 400:
		return Poor
	default:
		return Bad
	}
}

// OverallScore combines the three gases into 0-100, higher is better.
func OverallScore(co2, voc, nox uint16) int {
	co2Score := math.Max(0, 100-(float64(co2)-400)/20)
	co2Score = math.Min(100, co2Score)
	vocScore := math.Max(0, 100-float64(voc)/5)
	noxScore := math.Max(0, 100-float64(nox)/5)
	return int(math.Round((co2Score + vocScore + noxScore) / 3))
}
