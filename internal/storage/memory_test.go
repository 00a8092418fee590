package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
)

var now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func trip(id string, departIn, checkIn time.Duration) domain.PlannedTrip {
	origin := domain.Waypoint{Lat: 39.74, Lon: -104.99, Name: "Denver"}
	return domain.PlannedTrip{
		ID:          id,
		UserID:      "u1",
		Origin:      origin,
		Waypoints:   []domain.Waypoint{origin, {Lat: 40.01, Lon: -105.27}},
		DepartureAt: now.Add(departIn),
		CreatedAt:   now.Add(-time.Hour),
		NextCheckAt: now.Add(checkIn),
	}
}

func TestMemoryStoreDueTrips(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateTrip(ctx, trip("due-late", 5*time.Hour, -time.Minute)))
	require.NoError(t, s.CreateTrip(ctx, trip("due-early", 2*time.Hour, -time.Hour)))
	require.NoError(t, s.CreateTrip(ctx, trip("not-yet", 2*time.Hour, time.Minute)))
	require.NoError(t, s.CreateTrip(ctx, trip("too-far", 7*time.Hour, -time.Hour)))
	require.NoError(t, s.CreateTrip(ctx, trip("departed", -time.Minute, -time.Hour)))
	require.NoError(t, s.CreateTrip(ctx, trip("at-horizon", 6*time.Hour, 0)))
	assert.Error(t, s.CreateTrip(ctx, trip("due-late", time.Hour, 0)))

	due, err := s.DueTrips(ctx, now, 6*time.Hour)
	require.NoError(t, err)

	ids := make([]string, len(due))
	for i, d := range due {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"due-early", "due-late", "at-horizon"}, ids)
}

func TestMemoryStoreUpdateTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateTrip(ctx, trip("t1", 3*time.Hour, 0)))

	alert := now
	require.NoError(t, s.UpdateTrip(ctx, "t1", TripUpdate{NextCheckAt: now.Add(30 * time.Minute), LastAlertAt: &alert}))
	require.NoError(t, s.UpdateTrip(ctx, "t1", TripUpdate{NextCheckAt: now.Add(time.Hour)}))

	got, err := s.GetTrip(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), got.NextCheckAt)
	require.NotNil(t, got.LastAlertAt)
	assert.Equal(t, now, *got.LastAlertAt)

	// callers cannot mutate stored state through returned values
	got.Waypoints[0].Name = "changed"
	again, _ := s.GetTrip(ctx, "t1")
	assert.Equal(t, "Denver", again.Waypoints[0].Name)

	assert.ErrorIs(t, s.UpdateTrip(ctx, "missing", TripUpdate{}), domain.ErrTripNotFound)
	_, err = s.GetTrip(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTripNotFound)
}

func TestMemoryStorePushTokens(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertPushToken(ctx, domain.PushToken{UserID: "u1", DeviceID: "phone", Token: "ExponentPushToken[a]", CreatedAt: now}))
	require.NoError(t, s.UpsertPushToken(ctx, domain.PushToken{UserID: "u1", DeviceID: "phone", Token: "ExponentPushToken[b]", CreatedAt: now.Add(time.Hour)}))
	require.NoError(t, s.UpsertPushToken(ctx, domain.PushToken{UserID: "u1", DeviceID: "tablet", Token: "tg:1", CreatedAt: now.Add(time.Minute)}))
	require.NoError(t, s.TouchPushToken(ctx, "u1", "phone", now.Add(2*time.Hour)))
	require.NoError(t, s.TouchPushToken(ctx, "u1", "unknown", now))

	tokens, err := s.ListPushTokens(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "ExponentPushToken[b]", tokens[0].Token)
	assert.Equal(t, now, tokens[0].CreatedAt)
	assert.Equal(t, now.Add(2*time.Hour), tokens[0].LastUsedAt)
	assert.Equal(t, "tablet", tokens[1].DeviceID)

	empty, err := s.ListPushTokens(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStoreNotifications(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i, id := range []string{"t1", "t2", "t1"} {
		require.NoError(t, s.InsertNotification(ctx, domain.NotificationRecord{
			ID:             id + "-" + string(rune('a'+i)),
			TripID:         id,
			ImprovementPct: decimal.NewFromInt(int64(20 + i)),
			SentAt:         now.Add(time.Duration(i) * time.Hour),
		}))
	}

	recent, err := s.ListRecentNotifications(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "t1-c", recent[0].ID)

	all, err := s.ListRecentNotifications(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "t1-c", all[0].ID)

	removed, err := s.DeleteNotificationsBefore(ctx, now.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	left, _ := s.ListRecentNotifications(ctx, "", 0)
	assert.Len(t, left, 1)
}

func TestMemoryStoreConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.CreateTrip(ctx, trip(id, 3*time.Hour, 0)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := []string{"a", "b", "c", "d"}[i%4]
			_ = s.UpdateTrip(ctx, id, TripUpdate{NextCheckAt: now.Add(time.Duration(i) * time.Minute)})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = s.DueTrips(ctx, now.Add(time.Hour), 6*time.Hour)
		}()
	}
	wg.Wait()

	due, err := s.DueTrips(ctx, now.Add(2*time.Hour), 6*time.Hour)
	require.NoError(t, err)
	assert.Len(t, due, 4)
}

func TestMemoryStoreCustomers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, err := s.CustomerID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, s.SetCustomerID(ctx, "u1", "cus_1"))
	id, _ = s.CustomerID(ctx, "u1")
	assert.Equal(t, "cus_1", id)
}

func TestStoreWithoutPool(t *testing.T) {
	var s *Store
	_, err := s.DueTrips(context.Background(), now, time.Hour)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.ClaimAlert(context.Background(), "t1", now, time.Hour)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, NewStore(nil).EnsureSchema(context.Background()), ErrNotConfigured)
	s.Close()
}

func TestMemoryStoreClaimAlert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateTrip(ctx, trip("t1", 4*time.Hour, 0)))

	claimed, err := s.ClaimAlert(ctx, "t1", now, 3*time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = s.ClaimAlert(ctx, "t1", now.Add(time.Hour), 3*time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed, "inside cooldown")

	claimed, err = s.ClaimAlert(ctx, "t1", now.Add(3*time.Hour), 3*time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed, "cooldown boundary")

	_, err = s.ClaimAlert(ctx, "missing", now, time.Hour)
	assert.ErrorIs(t, err, domain.ErrTripNotFound)
}

func TestMemoryStoreReleaseAlert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateTrip(ctx, trip("t1", 4*time.Hour, 0)))

	claimed, err := s.ClaimAlert(ctx, "t1", now, 3*time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, s.ReleaseAlert(ctx, "t1", now, nil))
	got, _ := s.GetTrip(ctx, "t1")
	assert.Nil(t, got.LastAlertAt)

	// a release for a superseded claim leaves the newer stamp alone
	later := now.Add(4 * time.Hour)
	_, err = s.ClaimAlert(ctx, "t1", later, 3*time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.ReleaseAlert(ctx, "t1", now, nil))
	got, _ = s.GetTrip(ctx, "t1")
	require.NotNil(t, got.LastAlertAt)
	assert.Equal(t, later, *got.LastAlertAt)
}

func TestMemoryStoreConcurrentClaimsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateTrip(ctx, trip("t1", 4*time.Hour, 0)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.ClaimAlert(ctx, "t1", now, 3*time.Hour)
			if err == nil && claimed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
