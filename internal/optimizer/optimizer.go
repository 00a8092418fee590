package optimizer

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
)

const (
	// DefaultMinImprovementPct is the default acceptance margin.
	DefaultMinImprovementPct = 15.0
	// DefaultMaxDelayHours bounds the delay window when unset.
	DefaultMaxDelayHours = 6
)

var (
	decOne     = decimal.NewFromInt(1)
	decHundred = decimal.NewFromInt(100)
)

// Scorer maps one forecast hour to a risk score.
type Scorer interface {
	Score(f domain.HourlyForecast) domain.RiskScore
}

// Optimizer searches the delay window for the safest departure.
type Optimizer struct {
	scorer Scorer
}

// New constructs an Optimizer around scorer.
func New(scorer Scorer) *Optimizer {
	return &Optimizer{scorer: scorer}
}

// Evaluate scores the baseline hour and every available offset in
// [1, maxDelayHours]. Candidates are returned in ascending offset order.
// ok is false when hourly is empty.
func (o *Optimizer) Evaluate(hourly []domain.HourlyForecast, maxDelayHours int) (baseline domain.RiskScore, candidates []domain.DelayCandidate, ok bool) {
	if len(hourly) == 0 {
		return domain.RiskScore{}, nil, false
	}
	baseline = o.scorer.Score(hourly[0])

	seen := make(map[int]bool, len(hourly))
	for i := 1; i < len(hourly); i++ {
		d, aligned := offsetOf(hourly, i)
		if !aligned || d < 1 || d > maxDelayHours || seen[d] {
			continue
		}
		seen[d] = true
		candidates = append(candidates, domain.DelayCandidate{DelayHours: d, Risk: o.scorer.Score(hourly[i])})
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].DelayHours < candidates[b].DelayHours })
	return baseline, candidates, true
}

// FindBestDelay picks the delay with the largest improvement over the
// baseline, preferring the smallest offset on ties, and accepts it when the
// improvement reaches minImprovementPct.
func (o *Optimizer) FindBestDelay(hourly []domain.HourlyForecast, maxDelayHours int, minImprovementPct float64) domain.BestDelayResult {
	if maxDelayHours <= 0 {
		return domain.BestDelayResult{}
	}
	baseline, candidates, ok := o.Evaluate(hourly, maxDelayHours)
	if !ok {
		return domain.BestDelayResult{}
	}
	result := domain.BestDelayResult{Baseline: baseline, ImprovementPct: decimal.Zero}
	if baseline.Overall <= 0 || len(candidates) == 0 {
		return result
	}

	base := decimal.NewFromFloat(baseline.Overall)
	best := -1
	bestImprovement := decimal.Zero
	for i, c := range candidates {
		imp := Improvement(base, decimal.NewFromFloat(c.Risk.Overall))
		if best < 0 || imp.GreaterThan(bestImprovement) {
			best = i
			bestImprovement = imp
		}
	}

	result.ImprovementPct = bestImprovement
	if bestImprovement.LessThan(decimal.NewFromFloat(minImprovementPct)) {
		return result
	}
	result.Found = true
	result.DelayHours = candidates[best].DelayHours
	result.Candidate = candidates[best].Risk
	return result
}

// Improvement returns (baseline - candidate) / max(baseline, 1) * 100,
// clamped to [0, 100].
func Improvement(baseline, candidate decimal.Decimal) decimal.Decimal {
	denom := decimal.Max(baseline, decOne)
	imp := baseline.Sub(candidate).Div(denom).Mul(decHundred)
	if imp.IsNegative() {
		return decimal.Zero
	}
	if imp.GreaterThan(decHundred) {
		return decHundred
	}
	return imp
}

// offsetOf resolves the hour offset of hourly[i]. Records without timestamps
// are positional; timestamped records must sit on a whole hour after the
// first record.
func offsetOf(hourly []domain.HourlyForecast, i int) (int, bool) {
	origin := hourly[0].Time
	at := hourly[i].Time
	if origin.IsZero() || at.IsZero() {
		return i, true
	}
	diff := at.Sub(origin)
	if diff%time.Hour != 0 {
		return 0, false
	}
	return int(diff / time.Hour), true
}
