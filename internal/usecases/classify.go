package usecases

import (
	"math"
)

// Runnability labels, ordered from not-enough-water to too-much-water.
const (
	RunnabilityTooLow    = "too_low"
	RunnabilityLow       = "low"
	RunnabilityRunnable  = "runnable"
	RunnabilityOptimal   = "optimal"
	RunnabilityHigh      = "high"
	RunnabilityDangerous = "dangerous"
)

// Quality labels shown to users.
const (
	QualityExcellent = "excellent"
	QualityGood      = "good"
	QualityFair      = "fair"
	QualityPoor      = "poor"
	QualityDangerous = "dangerous"
)

// FlowRange is a per-river recommended flow band in CFS, usually sourced
// from American Whitewater reach data.
type FlowRange struct {
	Min float64
	Max float64
}

// defaultFlowBands are the generic CFS thresholds used when no per-river
// range is available. Bands are contiguous and lower-boundary inclusive:
// a flow sitting exactly on a boundary belongs to the higher band.
var defaultFlowBands = []struct {
	label string
	low   float64
	high  float64
}{
	{RunnabilityTooLow, 0, 200},
	{RunnabilityLow, 200, 500},
	{RunnabilityRunnable, 500, 1500},
	{RunnabilityOptimal, 1500, 5000},
	{RunnabilityHigh, 5000, 10000},
	{RunnabilityDangerous, 10000, math.Inf(1)},
}

// runnabilityToQualityMap translates runnability into the five-level quality
// scale. Unknown runnability maps to an empty quality, never an error.
var runnabilityToQualityMap = map[string]string{
	RunnabilityOptimal:   QualityExcellent,
	RunnabilityRunnable:  QualityGood,
	RunnabilityHigh:      QualityFair,
	RunnabilityLow:       QualityPoor,
	RunnabilityTooLow:    QualityPoor,
	"too_high":           QualityDangerous,
	RunnabilityDangerous: QualityDangerous,
}

// ClassifyRunnability derives a runnability label from a flow value. When a
// per-river range is present, position within the range decides the label;
// otherwise the generic default bands apply. A nil flow yields an empty
// label.
func ClassifyRunnability(flowRate *float64, flowRange *FlowRange) string {
	if flowRate == nil {
		return ""
	}
	flow := *flowRate

	if flowRange != nil {
		switch {
		case flow < flowRange.Min*0.5:
			return RunnabilityTooLow
		case flow < flowRange.Min:
			return RunnabilityLow
		case flow <= flowRange.Max:
			return RunnabilityOptimal
		case flow <= flowRange.Max*1.5:
			return RunnabilityHigh
		default:
			return RunnabilityDangerous
		}
	}

	for _, band := range defaultFlowBands {
		if flow >= band.low && flow < band.high {
			return band.label
		}
	}
	return ""
}

// RunnabilityToQuality maps a runnability label to a quality label.
func RunnabilityToQuality(runnability string) string {
	return runnabilityToQualityMap[runnability]
}
