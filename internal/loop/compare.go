package loop

import "github.com/dotcommander/qloop/internal/scoring"

// Comparison captures how one assessment moved relative to another.
// Used when rendering loop traces.
type Comparison struct {
	ScoreDelta  float64 `json:"score_delta"`
	PrevBand    string  `json:"prev_band"`
	NextBand    string  `json:"next_band"`
	BandChanged bool    `json:"band_changed"`
	Improved    bool    `json:"improved"`
}

// Compare returns the score and band movement from prev to next. A nil
// prev treats next as the baseline with no movement.
func Compare(prev, next *scoring.Assessment) Comparison {
	if next == nil {
		return Comparison{}
	}
	if prev == nil {
		return Comparison{NextBand: next.Band, PrevBand: next.Band}
	}
	delta := next.OverallScore - prev.OverallScore
	return Comparison{
		ScoreDelta:  delta,
		PrevBand:    prev.Band,
		NextBand:    next.Band,
		BandChanged: prev.Band != next.Band,
		Improved:    delta > 0,
	}
}
