package storage

import (
	"context"
	"errors"
	"time"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

// TripRegistry is the durable home of trips, push tokens and sent
// notifications. Implementations allow concurrent reads and atomic per-trip
// updates.
type TripRegistry interface {
	// DueTrips lists trips whose next check has elapsed and whose departure
	// lies in (now, now+lookahead].
	DueTrips(ctx context.Context, now time.Time, lookahead time.Duration) ([]domain.PlannedTrip, error)
	UpdateTrip(ctx context.Context, tripID string, update TripUpdate) error
	CreateTrip(ctx context.Context, trip domain.PlannedTrip) error
	GetTrip(ctx context.Context, tripID string) (domain.PlannedTrip, error)
	// ClaimAlert stamps the trip's last alert with at when it was never
	// alerted or its last alert is at least cooldown old. Only one of several
	// concurrent claims wins; claimed reports whether this one did.
	ClaimAlert(ctx context.Context, tripID string, at time.Time, cooldown time.Duration) (claimed bool, err error)
	// ReleaseAlert restores previous when the stamp left by a winning claim at
	// at is still in place.
	ReleaseAlert(ctx context.Context, tripID string, at time.Time, previous *time.Time) error

	UpsertPushToken(ctx context.Context, token domain.PushToken) error
	ListPushTokens(ctx context.Context, userID string) ([]domain.PushToken, error)
	TouchPushToken(ctx context.Context, userID, deviceID string, at time.Time) error

	InsertNotification(ctx context.Context, rec domain.NotificationRecord) error
	ListRecentNotifications(ctx context.Context, tripID string, limit int) ([]domain.NotificationRecord, error)
	DeleteNotificationsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// CustomerDirectory maps users to billing customers.
type CustomerDirectory interface {
	CustomerID(ctx context.Context, userID string) (string, error)
	SetCustomerID(ctx context.Context, userID, customerID string) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}
