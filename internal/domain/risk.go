package domain

// RiskBand classifies a continuous risk score via scheme-configurable
// thresholds. Ordering is LOW < MEDIUM < HIGH.
type RiskBand string

const (
	BandLow    RiskBand = "LOW"
	BandMedium RiskBand = "MEDIUM"
	BandHigh   RiskBand = "HIGH"
)

// rank supports monotonicity comparisons between bands.
func (b RiskBand) rank() int {
	switch b {
	case BandLow:
		return 0
	case BandMedium:
		return 1
	case BandHigh:
		return 2
	}
	return -1
}

// AtMost reports whether b is at or below other in LOW<MEDIUM<HIGH order.
func (b RiskBand) AtMost(other RiskBand) bool {
	return b.rank() <= other.rank()
}

// Model types reported on a RiskScore.
const (
	ModelTypeClassifier = "classifier"
	ModelTypeFallback   = "rule-based-fallback"
)

// RiskScore is the output of the risk scoring stage. Band is always a
// pure function of Score and the scheme's thresholds.
type RiskScore struct {
	Score        float64  `json:"score"` // in [0,1]
	Band         RiskBand `json:"band"`
	TopFactors   []string `json:"topFactors,omitempty"`
	ModelType    string   `json:"modelType"`
	ModelVersion string   `json:"modelVersion,omitempty"`
}
