package risk

import (
	"math"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
)

// Thresholds configure the piecewise-linear subscore mappings.
type Thresholds struct {
	HighWind         float64 `mapstructure:"high_wind"`
	HeavyPrecip      float64 `mapstructure:"heavy_precip"`
	FreezingPoint    float64 `mapstructure:"freezing_point"`
	ColdDelta        float64 `mapstructure:"cold_delta"`
	SevereSaturation int     `mapstructure:"severe_saturation"`
}

// DefaultThresholds returns the reference calibration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighWind:         40,
		HeavyPrecip:      5,
		FreezingPoint:    0,
		ColdDelta:        10,
		SevereSaturation: 3,
	}
}

// Model maps forecast hours to hazard scores.
type Model struct {
	t Thresholds
}

// NewModel builds a Model. Non-positive thresholds fall back to the defaults.
func NewModel(t Thresholds) *Model {
	def := DefaultThresholds()
	if t.HighWind <= 0 {
		t.HighWind = def.HighWind
	}
	if t.HeavyPrecip <= 0 {
		t.HeavyPrecip = def.HeavyPrecip
	}
	if t.ColdDelta <= 0 {
		t.ColdDelta = def.ColdDelta
	}
	if t.SevereSaturation <= 0 {
		t.SevereSaturation = def.SevereSaturation
	}
	return &Model{t: t}
}

// Thresholds returns the effective calibration.
func (m *Model) Thresholds() Thresholds {
	return m.t
}

// Score computes the risk for a single hour. It never fails; out-of-range
// inputs are clamped.
func (m *Model) Score(f domain.HourlyForecast) domain.RiskScore {
	s := domain.RiskScore{
		Wind:          linear(f.WindSpeed, m.t.HighWind),
		Precipitation: linear(f.Precipitation, m.t.HeavyPrecip),
		Temperature:   linear(m.t.FreezingPoint-f.Temperature, m.t.ColdDelta),
		Severe:        linear(float64(f.SevereAdvisories), float64(m.t.SevereSaturation)),
	}
	s.Overall = (s.Wind + s.Precipitation + s.Temperature + s.Severe) / 4
	return s
}

// linear maps [0, full] onto [0, 100], clamping both ends. The multiply
// happens before the divide so whole-number inputs stay exact.
func linear(value, full float64) float64 {
	if math.IsNaN(value) || value <= 0 {
		return 0
	}
	if value >= full {
		return 100
	}
	return value * 100 / full
}
