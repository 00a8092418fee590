// Package forecast fetches hourly weather at a trip origin.
package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
)

// Source returns hourly forecasts starting at the hour containing from.
// hours counts records including the first one. Failures wrap
// domain.ErrForecastUnavailable.
type Source interface {
	Hourly(ctx context.Context, lat, lon float64, from time.Time, hours int) ([]domain.HourlyForecast, error)
}

// AlertCounter reports how many severe advisories cover each hour.
type AlertCounter interface {
	Advisories(ctx context.Context, lat, lon float64, hours []time.Time) ([]int, error)
}

// Anchored verifies that hourly opens with the departure hour of from. A
// source may drop incomplete hours, and a missing first hour would otherwise
// let the next record stand in as the baseline.
func Anchored(hourly []domain.HourlyForecast, from time.Time) error {
	if len(hourly) == 0 {
		return fmt.Errorf("%w: no forecast hours", domain.ErrForecastUnavailable)
	}
	want := domain.DepartureHour(from)
	if first := hourly[0].Time; !first.IsZero() && !first.Equal(want) {
		return fmt.Errorf("%w: departure hour %s missing, forecast starts at %s",
			domain.ErrForecastUnavailable, want.Format(time.RFC3339), first.UTC().Format(time.RFC3339))
	}
	return nil
}
