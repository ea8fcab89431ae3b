package scoring

import "github.com/dotcommander/qloop/internal/types"

// Default threshold cut points.
const (
	DefaultProductionReady = 70.0
	DefaultNeedsAttention  = 50.0
	DefaultIterateFloor    = 30.0
)

// Thresholds holds the three ordered cut points used to classify an
// overall score into a band. Immutable once constructed.
type Thresholds struct {
	ProductionReady float64
	NeedsAttention  float64
	Iterate         float64
}

// DefaultThresholds returns the built-in cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ProductionReady: DefaultProductionReady,
		NeedsAttention:  DefaultNeedsAttention,
		Iterate:         DefaultIterateFloor,
	}
}

// WithOverride returns a copy where the caller-supplied threshold becomes
// the production-ready cut. NeedsAttention is tightened so it is never
// looser than the new cut.
func (t Thresholds) WithOverride(threshold float64) Thresholds {
	out := t
	out.ProductionReady = threshold
	if out.NeedsAttention > threshold {
		out.NeedsAttention = threshold
	}
	return out
}

// Classify maps a score to its band.
func (t Thresholds) Classify(score float64) string {
	switch {
	case score >= t.ProductionReady:
		return types.BandProductionReady
	case score >= t.NeedsAttention:
		return types.BandNeedsAttention
	default:
		return types.BandIterate
	}
}
