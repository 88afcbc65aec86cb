package model

// Trend is the qualitative direction of recent glucose change shown to the
// user and attached to each Reading.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// Arrow returns the display glyph for the trend.
func (t Trend) Arrow() string {
	switch t {
	case TrendRising:
		return "↗"
	case TrendFalling:
		return "↘"
	default:
		return "→"
	}
}

// SymbolicTrend is the vendor's eight-state trend classification, decoded
// from the numeric GlucoseTrend field (0-7).
type SymbolicTrend string

const (
	SymbolicStale        SymbolicTrend = "STALE"
	SymbolicFallingFast  SymbolicTrend = "FALLING_FAST"
	SymbolicFalling      SymbolicTrend = "FALLING"
	SymbolicFlat         SymbolicTrend = "FLAT"
	SymbolicRising       SymbolicTrend = "RISING"
	SymbolicRisingFast   SymbolicTrend = "RISING_FAST"
	SymbolicFallingRapid SymbolicTrend = "FALLING_RAPID"
	// The vendor spells this one with "RAISING".
	SymbolicRaisingRapid SymbolicTrend = "RAISING_RAPID"
	SymbolicUnknown      SymbolicTrend = "UNKNOWN"
)

// trendCodes maps the vendor's numeric trend codes to symbolic trends.
var trendCodes = map[int]SymbolicTrend{
	0: SymbolicStale,
	1: SymbolicFallingFast,
	2: SymbolicFalling,
	3: SymbolicFlat,
	4: SymbolicRising,
	5: SymbolicRisingFast,
	6: SymbolicFallingRapid,
	7: SymbolicRaisingRapid,
}

// TrendFromCode decodes a numeric trend code. Unmapped codes decode to
// SymbolicUnknown rather than failing; the vendor has grown this enum before.
func TrendFromCode(code int) SymbolicTrend {
	if t, ok := trendCodes[code]; ok {
		return t
	}
	return SymbolicUnknown
}

// collapsed maps the eight symbolic states down to the three display trends.
// STALE and FLAT both read as stable.
var collapsed = map[SymbolicTrend]Trend{
	SymbolicFallingFast:  TrendFalling,
	SymbolicFalling:      TrendFalling,
	SymbolicFallingRapid: TrendFalling,
	SymbolicRisingFast:   TrendRising,
	SymbolicRising:       TrendRising,
	SymbolicRaisingRapid: TrendRising,
	SymbolicFlat:         TrendStable,
	SymbolicStale:        TrendStable,
}

// Collapse reduces a symbolic trend to the three-state display trend,
// defaulting to stable for UNKNOWN and any unlisted state.
func (t SymbolicTrend) Collapse() Trend {
	if c, ok := collapsed[t]; ok {
		return c
	}
	return TrendStable
}
