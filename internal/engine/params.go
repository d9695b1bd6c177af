package engine

import "time"

// Params carries every tunable constant of the detection engine. Values
// come from configuration; the engine holds no package-level state.
type Params struct {
	// BaselineDays bounds the rolling historical window.
	BaselineDays int
	// AnalysisDays is the trailing period whose shifts are classified.
	AnalysisDays int
	// Sensitivity is the multiplier k in the mean − k·std threshold.
	Sensitivity float64
	// HardFloorRatio fires the variance-independent rule when a value
	// falls below mean·ratio.
	HardFloorRatio float64
	// MinRunLength is the minimum consecutive anomaly count that marks
	// shifts as part of an alert run.
	MinRunLength int
	// RatioThreshold flags a product pair when countA/countB exceeds it.
	RatioThreshold float64
	// RatioSentinel substitutes for countA/0 so the threshold comparison
	// stays well-defined.
	RatioSentinel float64
	// UTCOffsetHours fixes the store-local zone used for cohorting.
	UTCOffsetHours int
}

// DefaultParams mirrors the tuning the business has been running with.
func DefaultParams() Params {
	return Params{
		BaselineDays:   90,
		AnalysisDays:   7,
		Sensitivity:    1.8,
		HardFloorRatio: 0.6,
		MinRunLength:   3,
		RatioThreshold: 0.6,
		RatioSentinel:  9.99,
		UTCOffsetHours: 8,
	}
}

func (p Params) location() *time.Location {
	return time.FixedZone("local", p.UTCOffsetHours*3600)
}
