package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
)

// TripRequest is the input to RegisterTrip.
type TripRequest struct {
	UserID      string
	Waypoints   []domain.Waypoint
	DepartureAt time.Time
	Timezone    string
}

// RegisterTrip validates and stores a trip. The first waypoint becomes the
// forecast origin and the trip is due for its first check immediately.
func (s *Service) RegisterTrip(ctx context.Context, req TripRequest) (string, error) {
	now := s.clock.Now()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return "", domain.NewValidationError("user_id", "is required")
	}
	if len(req.Waypoints) == 0 {
		return "", domain.NewValidationError("waypoints", "must not be empty")
	}
	for i, wp := range req.Waypoints {
		if !validLatitude(wp.Lat) {
			return "", domain.NewValidationError(fmt.Sprintf("waypoints[%d].lat", i), "must be within [-90, 90]")
		}
		if !validLongitude(wp.Lon) {
			return "", domain.NewValidationError(fmt.Sprintf("waypoints[%d].lon", i), "must be within [-180, 180]")
		}
	}
	if !req.DepartureAt.After(now) {
		return "", domain.NewValidationError("departure_at", "must be in the future")
	}

	if s.entitlement != nil {
		premium, err := s.entitlement.IsPremium(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("check entitlement: %w", err)
		}
		if !premium {
			return "", domain.NewValidationError("user_id", "premium subscription required")
		}
	}

	waypoints := append([]domain.Waypoint(nil), req.Waypoints...)
	trip := domain.PlannedTrip{
		ID:          s.newID(),
		UserID:      userID,
		Origin:      waypoints[0],
		Waypoints:   waypoints,
		DepartureAt: req.DepartureAt.UTC(),
		Timezone:    strings.TrimSpace(req.Timezone),
		CreatedAt:   now,
		NextCheckAt: now,
	}
	if err := s.registry.CreateTrip(ctx, trip); err != nil {
		return "", fmt.Errorf("register trip: %w", err)
	}

	s.logger.Info().Str("trip_id", trip.ID).Str("user_id", userID).Time("departure_at", trip.DepartureAt).Msg("trip registered")
	return trip.ID, nil
}

// RegisterPushToken upserts a device token. Re-registering the same device
// replaces its token. An empty deviceID keys the device by its token.
func (s *Service) RegisterPushToken(ctx context.Context, userID, token, deviceID string) error {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)
	deviceID = strings.TrimSpace(deviceID)
	if userID == "" {
		return domain.NewValidationError("user_id", "is required")
	}
	if token == "" {
		return domain.NewValidationError("token", "is required")
	}
	if deviceID == "" {
		deviceID = token
	}

	err := s.registry.UpsertPushToken(ctx, domain.PushToken{
		UserID:    userID,
		DeviceID:  deviceID,
		Token:     token,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("register push token: %w", err)
	}
	return nil
}

// CheckNow evaluates one trip immediately, outside the tick loop.
func (s *Service) CheckNow(ctx context.Context, tripID string) (domain.EvaluationState, error) {
	trip, err := s.registry.GetTrip(ctx, tripID)
	if err != nil {
		return domain.StatePending, err
	}
	return s.EvaluateTrip(ctx, trip, s.clock.Now())
}

// RecentNotifications lists the newest notifications for a trip.
func (s *Service) RecentNotifications(ctx context.Context, tripID string, limit int) ([]domain.NotificationRecord, error) {
	if _, err := s.registry.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return s.registry.ListRecentNotifications(ctx, tripID, limit)
}

func validLatitude(v float64) bool {
	return !math.IsNaN(v) && v >= -90 && v <= 90
}

func validLongitude(v float64) bool {
	return !math.IsNaN(v) && v >= -180 && v <= 180
}
