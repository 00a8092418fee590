package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints the most recent notifications for a trip.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	reg, err := a.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.close()
	if reg.store == nil {
		return errors.New("database not configured; cannot show notifications")
	}

	trip, err := reg.trips.GetTrip(ctx, opts.TripID)
	if err != nil {
		return err
	}
	records, err := reg.trips.ListRecentNotifications(ctx, trip.ID, opts.Limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "trip %s user %s departs %s next check %s\n",
		trip.ID, trip.UserID,
		trip.DepartureAt.UTC().Format(time.RFC3339),
		trip.NextCheckAt.UTC().Format(time.RFC3339))
	if len(records) == 0 {
		fmt.Fprintln(a.Out, "no notifications found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tDelay\tImprovement%\tBody")
	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%dh\t%s\t%s\n",
			rec.SentAt.UTC().Format(time.RFC3339),
			rec.DelayHours,
			rec.ImprovementPct.StringFixed(2),
			sanitizeInline(rec.Body),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
