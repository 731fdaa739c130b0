// Package anomaly scores how unusual a transaction's (amount, hour) pair is
// against trained history of normal behavior.
//
// The scorer is consumed as a black box by the decision pipeline:
// Score(amount, hour) returns a risk in [0, 1], deterministic for a fixed
// trained state and side-effect-free. Training is external: Fit publishes
// an immutable model through an atomic pointer swap, so scoring reads are
// lock-free and a retrain can never be observed half-applied.
package anomaly

import (
	"fmt"
	"math"
	"sync/atomic"
)

const (
	// NeutralRisk is returned before any training has occurred. It sits
	// well below the review threshold: an untrained scorer must never
	// trigger a REVIEW or BLOCK on its own.
	NeutralRisk = 0.1

	// MinTrainingSamples is the smallest history Fit will accept.
	MinTrainingSamples = 5

	// zOnset is the amount z-score where risk starts to rise; risk
	// reaches 1.0 two standard deviations later.
	zOnset = 2.0

	// rareHourFraction marks an hour as unusual when it carries less
	// than this share of the training history.
	rareHourFraction = 0.02

	// rareHourRisk is the risk assigned to a transaction in an hour the
	// user base almost never transacts in.
	rareHourRisk = 0.8
)

// Sample is one historical (amount, hour-of-day) observation of normal
// behavior.
type Sample struct {
	Amount float64 `json:"amount"`
	Hour   int     `json:"hour"`
}

// model is an immutable trained state. Never mutated after publication.
type model struct {
	amountMean   float64
	amountStd    float64
	hourFraction [24]float64
	samples      int
}

// Scorer evaluates transactions against the most recently published model.
type Scorer struct {
	model atomic.Pointer[model]
}

// NewScorer creates an untrained scorer. Until Fit succeeds, Score returns
// NeutralRisk for every input.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Trained reports whether a model has been published.
func (s *Scorer) Trained() bool {
	return s.model.Load() != nil
}

// Fit trains on historical samples and atomically publishes the new model.
// Scoring calls in flight keep the previous model; there is no torn state.
func (s *Scorer) Fit(samples []Sample) error {
	if len(samples) < MinTrainingSamples {
		return fmt.Errorf("need at least %d samples, got %d", MinTrainingSamples, len(samples))
	}

	var sum float64
	var hourCounts [24]int
	for _, sm := range samples {
		if sm.Hour < 0 || sm.Hour > 23 {
			return fmt.Errorf("sample hour %d out of range", sm.Hour)
		}
		sum += sm.Amount
		hourCounts[sm.Hour]++
	}
	mean := sum / float64(len(samples))

	var sqDiff float64
	for _, sm := range samples {
		d := sm.Amount - mean
		sqDiff += d * d
	}
	std := math.Sqrt(sqDiff / float64(len(samples)))

	m := &model{
		amountMean: mean,
		amountStd:  std,
		samples:    len(samples),
	}
	for h, c := range hourCounts {
		m.hourFraction[h] = float64(c) / float64(len(samples))
	}

	s.model.Store(m)
	return nil
}

// Score returns the anomaly risk in [0, 1] for a transaction amount and
// hour of day. Invalid hours degrade to NeutralRisk rather than failing;
// scorer-internal problems never escalate risk.
func (s *Scorer) Score(amount float64, hour int) float64 {
	m := s.model.Load()
	if m == nil {
		return NeutralRisk
	}
	if hour < 0 || hour > 23 {
		return NeutralRisk
	}

	risk := math.Max(m.amountRisk(amount), m.hourRisk(hour))
	return math.Round(risk*1000) / 1000
}

// amountRisk maps the amount z-score onto [0, 1]: 0 below zOnset, rising
// linearly to 1.0 over the next two standard deviations.
func (m *model) amountRisk(amount float64) float64 {
	var z float64
	switch {
	case m.amountStd > 0:
		z = math.Abs(amount-m.amountMean) / m.amountStd
	case amount != m.amountMean:
		// Degenerate history (all identical amounts): any deviation is
		// maximally unusual.
		return 1.0
	default:
		return 0.0
	}

	risk := (z - zOnset) / 2.0
	if risk < 0 {
		return 0.0
	}
	if risk > 1 {
		return 1.0
	}
	return risk
}

// hourRisk flags hours that almost never appear in the training history.
func (m *model) hourRisk(hour int) float64 {
	if m.hourFraction[hour] < rareHourFraction {
		return rareHourRisk
	}
	return 0.0
}
