package storage

import (
	"time"
)

// TripUpdate carries the mutable per-trip fields. A nil LastAlertAt leaves
// the stored value unchanged.
type TripUpdate struct {
	NextCheckAt time.Time
	LastAlertAt *time.Time
}
