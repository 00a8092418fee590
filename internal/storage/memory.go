package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
)

// MemoryStore is an in-process TripRegistry for single-node runs and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	trips         map[string]domain.PlannedTrip
	tokens        map[string]map[string]domain.PushToken
	notifications []domain.NotificationRecord
	customers     map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trips:     make(map[string]domain.PlannedTrip),
		tokens:    make(map[string]map[string]domain.PushToken),
		customers: make(map[string]string),
	}
}

// DueTrips implements TripRegistry.
func (m *MemoryStore) DueTrips(_ context.Context, now time.Time, lookahead time.Duration) ([]domain.PlannedTrip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	horizon := now.Add(lookahead)
	out := make([]domain.PlannedTrip, 0)
	for _, t := range m.trips {
		if t.NextCheckAt.After(now) || !t.DepartureAt.After(now) || t.DepartureAt.After(horizon) {
			continue
		}
		out = append(out, cloneTrip(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextCheckAt.Equal(out[j].NextCheckAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextCheckAt.Before(out[j].NextCheckAt)
	})
	return out, nil
}

// UpdateTrip implements TripRegistry.
func (m *MemoryStore) UpdateTrip(_ context.Context, tripID string, update TripUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trips[tripID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTripNotFound, tripID)
	}
	t.NextCheckAt = update.NextCheckAt
	if update.LastAlertAt != nil {
		at := *update.LastAlertAt
		t.LastAlertAt = &at
	}
	m.trips[tripID] = t
	return nil
}

// ClaimAlert implements TripRegistry.
func (m *MemoryStore) ClaimAlert(_ context.Context, tripID string, at time.Time, cooldown time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trips[tripID]
	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrTripNotFound, tripID)
	}
	if t.LastAlertAt != nil && at.Sub(*t.LastAlertAt) < cooldown {
		return false, nil
	}
	stamp := at
	t.LastAlertAt = &stamp
	m.trips[tripID] = t
	return true, nil
}

// ReleaseAlert implements TripRegistry.
func (m *MemoryStore) ReleaseAlert(_ context.Context, tripID string, at time.Time, previous *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trips[tripID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTripNotFound, tripID)
	}
	if t.LastAlertAt == nil || !t.LastAlertAt.Equal(at) {
		return nil
	}
	if previous == nil {
		t.LastAlertAt = nil
	} else {
		prev := *previous
		t.LastAlertAt = &prev
	}
	m.trips[tripID] = t
	return nil
}

// CreateTrip implements TripRegistry.
func (m *MemoryStore) CreateTrip(_ context.Context, trip domain.PlannedTrip) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.trips[trip.ID]; exists {
		return fmt.Errorf("trip %s already exists", trip.ID)
	}
	m.trips[trip.ID] = cloneTrip(trip)
	return nil
}

// GetTrip implements TripRegistry.
func (m *MemoryStore) GetTrip(_ context.Context, tripID string) (domain.PlannedTrip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.trips[tripID]
	if !ok {
		return domain.PlannedTrip{}, fmt.Errorf("%w: %s", domain.ErrTripNotFound, tripID)
	}
	return cloneTrip(t), nil
}

// UpsertPushToken implements TripRegistry. CreatedAt survives re-registration.
func (m *MemoryStore) UpsertPushToken(_ context.Context, token domain.PushToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byDevice, ok := m.tokens[token.UserID]
	if !ok {
		byDevice = make(map[string]domain.PushToken)
		m.tokens[token.UserID] = byDevice
	}
	if existing, ok := byDevice[token.DeviceID]; ok {
		existing.Token = token.Token
		byDevice[token.DeviceID] = existing
		return nil
	}
	byDevice[token.DeviceID] = token
	return nil
}

// ListPushTokens implements TripRegistry.
func (m *MemoryStore) ListPushTokens(_ context.Context, userID string) ([]domain.PushToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.PushToken, 0, len(m.tokens[userID]))
	for _, tok := range m.tokens[userID] {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// TouchPushToken implements TripRegistry.
func (m *MemoryStore) TouchPushToken(_ context.Context, userID, deviceID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tok, ok := m.tokens[userID][deviceID]; ok {
		tok.LastUsedAt = at
		m.tokens[userID][deviceID] = tok
	}
	return nil
}

// InsertNotification implements TripRegistry.
func (m *MemoryStore) InsertNotification(_ context.Context, rec domain.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notifications = append(m.notifications, rec)
	return nil
}

// ListRecentNotifications implements TripRegistry, newest first.
func (m *MemoryStore) ListRecentNotifications(_ context.Context, tripID string, limit int) ([]domain.NotificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.NotificationRecord, 0)
	for i := len(m.notifications) - 1; i >= 0; i-- {
		rec := m.notifications[i]
		if tripID != "" && rec.TripID != tripID {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteNotificationsBefore implements TripRegistry.
func (m *MemoryStore) DeleteNotificationsBefore(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.notifications[:0]
	var removed int64
	for _, rec := range m.notifications {
		if rec.SentAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.notifications = kept
	return removed, nil
}

// CustomerID implements CustomerDirectory.
func (m *MemoryStore) CustomerID(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.customers[userID], nil
}

// SetCustomerID implements CustomerDirectory.
func (m *MemoryStore) SetCustomerID(_ context.Context, userID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[userID] = customerID
	return nil
}

func cloneTrip(t domain.PlannedTrip) domain.PlannedTrip {
	if t.Waypoints != nil {
		t.Waypoints = append([]domain.Waypoint(nil), t.Waypoints...)
	}
	if t.LastAlertAt != nil {
		at := *t.LastAlertAt
		t.LastAlertAt = &at
	}
	return t
}

var (
	_ TripRegistry      = (*MemoryStore)(nil)
	_ CustomerDirectory = (*MemoryStore)(nil)
)
