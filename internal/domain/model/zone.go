package model

// Zone is a fixed glucose value band used for both chart coloring and the
// status panel.
type Zone string

const (
	ZoneLow  Zone = "low"
	ZoneGood Zone = "good"
	ZoneHigh Zone = "high"
)

// Glucose thresholds in mg/dL. The good band is inclusive on both edges:
// Categorize(80) and Categorize(130) are both good.
const (
	ThresholdLow  = 80
	ThresholdHigh = 130
)

// ChartValueMax is the fixed upper bound of the chart's value axis. The value
// axis never auto-scales; only the time axis follows the data.
const ChartValueMax = 400

// Categorize places a glucose value into its zone.
func Categorize(value int) Zone {
	switch {
	case value < ThresholdLow:
		return ZoneLow
	case value > ThresholdHigh:
		return ZoneHigh
	default:
		return ZoneGood
	}
}

// Label returns the status text shown for the zone.
func (z Zone) Label() string {
	switch z {
	case ZoneLow:
		return "Too Low"
	case ZoneHigh:
		return "Too High"
	default:
		return "Good"
	}
}
