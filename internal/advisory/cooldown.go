// Package advisory holds the stateless gates applied before a trip alert.
package advisory

import (
	"time"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
)

// DefaultCooldown is the minimum spacing between two alerts for one trip.
const DefaultCooldown = 3 * time.Hour

// Allow reports whether trip may be alerted at now. A trip that was never
// alerted is always allowed; otherwise the full cooldown must have elapsed.
// Allow never mutates the trip.
func Allow(trip domain.PlannedTrip, now time.Time, cooldown time.Duration) bool {
	if trip.LastAlertAt == nil {
		return true
	}
	return now.Sub(*trip.LastAlertAt) >= cooldown
}

// NextAllowed returns the earliest instant Allow will return true.
func NextAllowed(trip domain.PlannedTrip, cooldown time.Duration) time.Time {
	if trip.LastAlertAt == nil {
		return time.Time{}
	}
	return trip.LastAlertAt.Add(cooldown)
}
