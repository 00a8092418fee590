package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"text/tabwriter"
	"time"

	"github.com/lhildreth66/Routecast2-sub001/internal/alerting"
	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
	"github.com/lhildreth66/Routecast2-sub001/internal/forecast"
)

// Simulate scores a forecast for a hypothetical departure, prints every
// candidate offset and, when a delay is worth suggesting, the composed push.
// With a token set the push is delivered through the configured providers.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	maxDelay := a.Config.Advisory.MaxDelayHours
	departure := opts.Departure.UTC().Truncate(time.Hour)

	var hourly []domain.HourlyForecast
	if opts.Live {
		rdb := a.newRedis()
		if rdb != nil {
			defer rdb.Close()
		}
		fctx, cancel := context.WithTimeout(ctx, a.Config.Forecast.RequestTimeout)
		defer cancel()
		var err error
		hourly, err = a.newForecast(rdb).Hourly(fctx, opts.Lat, opts.Lon, departure, maxDelay+1)
		if err != nil {
			return err
		}
		if err := forecast.Anchored(hourly, departure); err != nil {
			return err
		}
	} else {
		hourly = clearingStorm(departure, maxDelay+1)
	}

	opt := a.newOptimizer()
	baseline, candidates, ok := opt.Evaluate(hourly, maxDelay)
	if !ok {
		return errors.New("forecast returned no hours")
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Delay\tLeave (UTC)\tWind\tPrecip\tCold\tSevere\tOverall")
	printScore(writer, 0, departure, baseline)
	for _, c := range candidates {
		printScore(writer, c.DelayHours, departure, c.Risk)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	result := opt.FindBestDelay(hourly, maxDelay, a.Config.Advisory.MinImprovementPct)
	if !result.Found {
		fmt.Fprintf(a.Out, "no advisory: best improvement %s%% is below %.0f%%\n",
			result.ImprovementPct.StringFixed(1), a.Config.Advisory.MinImprovementPct)
		return nil
	}

	msg := alerting.Compose(result, alerting.TripContext{
		TripID:      "simulated",
		DepartureAt: departure,
		Timezone:    opts.Timezone,
	})
	fmt.Fprintf(a.Out, "%s: %s\n", msg.Title, msg.Body)

	if opts.Token == "" {
		return nil
	}
	dispatcher := a.newDispatcher()
	if dispatcher.Len() == 0 {
		return errors.New("no push provider enabled")
	}
	sctx, cancel := context.WithTimeout(ctx, a.Config.Push.Timeout)
	defer cancel()
	if err := dispatcher.Send(sctx, opts.Token, msg.Title, msg.Body, msg.Data); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDispatchFailed, err)
	}
	fmt.Fprintln(a.Out, "push delivered")
	return nil
}

func printScore(w *tabwriter.Writer, delay int, departure time.Time, r domain.RiskScore) {
	fmt.Fprintf(w, "+%dh\t%s\t%.0f\t%.0f\t%.0f\t%.0f\t%d\n",
		delay,
		departure.Add(time.Duration(delay)*time.Hour).Format("15:04"),
		r.Wind, r.Precipitation, r.Temperature, r.Severe, r.Display())
}

// clearingStorm is a synthetic front that is worst at departure and eases
// every hour.
func clearingStorm(departure time.Time, hours int) []domain.HourlyForecast {
	out := make([]domain.HourlyForecast, hours)
	for i := range out {
		f := float64(i)
		out[i] = domain.HourlyForecast{
			Time:             departure.Add(time.Duration(i) * time.Hour),
			WindSpeed:        math.Max(45-f*8, 5),
			Precipitation:    math.Max(6-f*1.5, 0),
			Temperature:      -3 + f*1.5,
			SevereAdvisories: max(3-i, 0),
		}
	}
	return out
}
