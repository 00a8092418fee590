package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// HourlyForecast is a single hourly forecast record at one location.
type HourlyForecast struct {
	Time             time.Time
	WindSpeed        float64 // km/h
	Precipitation    float64 // mm/h
	Temperature      float64 // °C
	SevereAdvisories int
}

// RiskScore holds the hazard subscores for one forecast hour.
type RiskScore struct {
	Wind          float64
	Precipitation float64
	Temperature   float64
	Severe        float64
	Overall       float64
}

// Display returns the overall score rounded for presentation.
func (r RiskScore) Display() int {
	return int(math.Round(r.Overall))
}

// DelayCandidate is one evaluated point in the delay window.
type DelayCandidate struct {
	DelayHours int
	Risk       RiskScore
}

// BestDelayResult is the outcome of a delay window search.
type BestDelayResult struct {
	Found          bool
	DelayHours     int
	Baseline       RiskScore
	Candidate      RiskScore
	ImprovementPct decimal.Decimal
	Message        string
}

// RoundedImprovement returns the improvement percentage rounded to a whole number.
func (r BestDelayResult) RoundedImprovement() int64 {
	return r.ImprovementPct.Round(0).IntPart()
}

// DepartureHour is the forecast hour a departure is scored against. Delay
// offsets count whole hours from it.
func DepartureHour(departure time.Time) time.Time {
	return departure.UTC().Truncate(time.Hour)
}

// Waypoint is a point on a planned route.
type Waypoint struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name,omitempty"`
}

// PlannedTrip is a registered trip awaiting departure.
type PlannedTrip struct {
	ID          string
	UserID      string
	Origin      Waypoint
	Waypoints   []Waypoint
	DepartureAt time.Time
	Timezone    string
	CreatedAt   time.Time
	NextCheckAt time.Time
	LastAlertAt *time.Time
}

// PushToken is a device registration for push delivery.
type PushToken struct {
	UserID     string
	DeviceID   string
	Token      string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// NotificationRecord audits a single successful dispatch.
type NotificationRecord struct {
	ID             string
	TripID         string
	UserID         string
	DelayHours     int
	ImprovementPct decimal.Decimal
	Title          string
	Body           string
	SentAt         time.Time
}

// EvaluationState is the terminal state reached by one trip evaluation.
type EvaluationState string

const (
	StatePending          EvaluationState = "pending"
	StateEvaluating       EvaluationState = "evaluating"
	StateNoActionNeeded   EvaluationState = "no_action_needed"
	StateCooldownBlocked  EvaluationState = "cooldown_blocked"
	StateNotified         EvaluationState = "notified"
	StateEvaluationFailed EvaluationState = "evaluation_failed"
	// StateSkipped marks a trip whose owner is no longer premium.
	StateSkipped EvaluationState = "skipped"
)

// IsTerminal reports whether s ends an evaluation.
func (s EvaluationState) IsTerminal() bool {
	switch s {
	case StateNoActionNeeded, StateCooldownBlocked, StateNotified, StateEvaluationFailed, StateSkipped:
		return true
	default:
		return false
	}
}
