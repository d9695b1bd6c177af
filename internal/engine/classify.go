package engine

// Reason tags explain which rule fired; informational only.
const (
	ReasonStatistical = "low sales (statistical)"
	ReasonHardRule    = "low sales (hard rule)"
)

// Verdict is the outcome of classifying one shift against its baseline.
type Verdict struct {
	Statistical bool
	HardRule    bool
	Reasons     []string
}

// Anomalous reports whether either rule fired.
func (v Verdict) Anomalous() bool {
	return v.Statistical || v.HardRule
}

// ClassifyShift applies the two OR-combined rules to a metric value.
// The statistical rule only fires with positive variance; absence of
// history (zero baseline) is never evidence of anomaly.
func (p Params) ClassifyShift(value float64, b Baseline) Verdict {
	var v Verdict
	if b.StdDev > 0 && value < b.Mean-p.Sensitivity*b.StdDev {
		v.Statistical = true
		v.Reasons = append(v.Reasons, ReasonStatistical)
	}
	if value < b.Mean*p.HardFloorRatio {
		v.HardRule = true
		v.Reasons = append(v.Reasons, ReasonHardRule)
	}
	return v
}
