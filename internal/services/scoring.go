package services

import "math"

// ieltsBands maps the share of correct answers to a band, highest first
var ieltsBands = []struct {
	min  float64
	band float64
}{
	{0.90, 9.0},
	{0.82, 8.5},
	{0.75, 8.0},
	{0.67, 7.5},
	{0.60, 7.0},
	{0.52, 6.5},
	{0.45, 6.0},
	{0.37, 5.5},
	{0.30, 5.0},
	{0.22, 4.5},
}

const ieltsFloorBand = 4.0

// IELTSBandScore converts a correct-answer share in [0,1] to an IELTS band
func IELTSBandScore(percentage float64) float64 {
	for _, b := range ieltsBands {
		if percentage >= b.min {
			return b.band
		}
	}
	return ieltsFloorBand
}

// IELTSWritingScore averages essay bands over the number of essays in the test,
// rounded half up to one decimal. Essays never submitted count as 0.
func IELTSWritingScore(bands []float64, totalQuestions int) float64 {
	if totalQuestions <= 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bands {
		sum += b
	}
	return roundHalfUp(sum/float64(totalQuestions), 1)
}

// TOEICScore scales a correct-answer share to the TOEIC range. Full-length
// tests (100+ questions) use 0-990; shorter practice sets use 10-495.
func TOEICScore(percentage float64, totalQuestions int) float64 {
	if totalQuestions >= 100 {
		return math.Round(percentage * 990)
	}
	return math.Max(10, math.Min(495, 10+math.Round(percentage*495)))
}

// Percentage is correct/total, 0 when total is 0
func Percentage(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// roundHalfUp rounds to the given number of decimals; the epsilon absorbs
// binary representation error such as 6.05 being stored as 6.0499...
func roundHalfUp(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Floor(x*p+0.5+1e-9) / p
}
