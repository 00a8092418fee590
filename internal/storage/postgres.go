package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const (
	dueTripsSQL = `SELECT
        id,
        user_id,
        origin_lat,
        origin_lon,
        origin_name,
        waypoints,
        departure_at,
        timezone,
        created_at,
        next_check_at,
        last_alert_at
    FROM trips
    WHERE next_check_at <= $1
      AND departure_at > $1
      AND departure_at <= $2
    ORDER BY next_check_at, id;`

	getTripSQL = `SELECT
        id,
        user_id,
        origin_lat,
        origin_lon,
        origin_name,
        waypoints,
        departure_at,
        timezone,
        created_at,
        next_check_at,
        last_alert_at
    FROM trips
    WHERE id = $1;`

	insertTripSQL = `INSERT INTO trips (
        id,
        user_id,
        origin_lat,
        origin_lon,
        origin_name,
        waypoints,
        departure_at,
        timezone,
        created_at,
        next_check_at,
        last_alert_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    );`

	updateTripSQL = `UPDATE trips
    SET next_check_at = $2,
        last_alert_at = COALESCE($3, last_alert_at)
    WHERE id = $1;`

	claimAlertSQL = `UPDATE trips
    SET last_alert_at = $2
    WHERE id = $1
      AND (last_alert_at IS NULL OR last_alert_at <= $3);`

	releaseAlertSQL = `UPDATE trips
    SET last_alert_at = $3
    WHERE id = $1
      AND last_alert_at = $2;`

	upsertPushTokenSQL = `INSERT INTO push_tokens (
        user_id,
        device_id,
        token,
        created_at
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (user_id, device_id) DO UPDATE
    SET token = EXCLUDED.token;`

	listPushTokensSQL = `SELECT
        user_id,
        device_id,
        token,
        created_at,
        last_used_at
    FROM push_tokens
    WHERE user_id = $1
    ORDER BY created_at, device_id;`

	touchPushTokenSQL = `UPDATE push_tokens
    SET last_used_at = $3
    WHERE user_id = $1 AND device_id = $2;`

	insertNotificationSQL = `INSERT INTO notifications (
        id,
        trip_id,
        user_id,
        delay_hours,
        improvement_pct,
        title,
        body,
        sent_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    );`

	listRecentNotificationsSQL = `SELECT
        id,
        trip_id,
        user_id,
        delay_hours,
        improvement_pct::text,
        title,
        body,
        sent_at
    FROM notifications
    WHERE ($1 = '' OR trip_id = $1)
    ORDER BY sent_at DESC
    LIMIT NULLIF($2::int, 0);`

	deleteNotificationsBeforeSQL = `DELETE FROM notifications WHERE sent_at < $1;`

	customerIDSQL    = `SELECT stripe_customer_id FROM billing_customers WHERE user_id = $1;`
	setCustomerIDSQL = `INSERT INTO billing_customers (user_id, stripe_customer_id)
    VALUES ($1, $2)
    ON CONFLICT (user_id) DO UPDATE SET stripe_customer_id = EXCLUDED.stripe_customer_id;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store persists trips, tokens and notifications in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// DueTrips implements TripRegistry.
func (s *Store) DueTrips(ctx context.Context, now time.Time, lookahead time.Duration) ([]domain.PlannedTrip, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, dueTripsSQL, now, now.Add(lookahead))
	if err != nil {
		return nil, fmt.Errorf("due trips: %w", err)
	}
	defer rows.Close()

	trips := make([]domain.PlannedTrip, 0)
	for rows.Next() {
		trip, scanErr := scanTrip(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		trips = append(trips, trip)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return trips, nil
}

// GetTrip implements TripRegistry.
func (s *Store) GetTrip(ctx context.Context, tripID string) (domain.PlannedTrip, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.PlannedTrip{}, err
	}

	trip, err := scanTrip(pool.QueryRow(ctx, getTripSQL, tripID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PlannedTrip{}, fmt.Errorf("%w: %s", domain.ErrTripNotFound, tripID)
	}
	if err != nil {
		return domain.PlannedTrip{}, fmt.Errorf("get trip: %w", err)
	}
	return trip, nil
}

// CreateTrip implements TripRegistry.
func (s *Store) CreateTrip(ctx context.Context, trip domain.PlannedTrip) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	waypoints, err := json.Marshal(trip.Waypoints)
	if err != nil {
		return fmt.Errorf("marshal waypoints: %w", err)
	}

	if _, err := pool.Exec(ctx, insertTripSQL,
		trip.ID,
		trip.UserID,
		trip.Origin.Lat,
		trip.Origin.Lon,
		trip.Origin.Name,
		waypoints,
		trip.DepartureAt,
		trip.Timezone,
		trip.CreatedAt,
		trip.NextCheckAt,
		trip.LastAlertAt,
	); err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

// UpdateTrip implements TripRegistry.
func (s *Store) UpdateTrip(ctx context.Context, tripID string, update TripUpdate) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tag, err := pool.Exec(ctx, updateTripSQL, tripID, update.NextCheckAt, update.LastAlertAt)
	if err != nil {
		return fmt.Errorf("update trip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrTripNotFound, tripID)
	}
	return nil
}

// ClaimAlert implements TripRegistry. The conditional update serialises
// claims across replicas on the trip row.
func (s *Store) ClaimAlert(ctx context.Context, tripID string, at time.Time, cooldown time.Duration) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	tag, err := pool.Exec(ctx, claimAlertSQL, tripID, at, at.Add(-cooldown))
	if err != nil {
		return false, fmt.Errorf("claim alert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseAlert implements TripRegistry.
func (s *Store) ReleaseAlert(ctx context.Context, tripID string, at time.Time, previous *time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, releaseAlertSQL, tripID, at, previous); err != nil {
		return fmt.Errorf("release alert: %w", err)
	}
	return nil
}

// UpsertPushToken implements TripRegistry.
func (s *Store) UpsertPushToken(ctx context.Context, token domain.PushToken) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, upsertPushTokenSQL, token.UserID, token.DeviceID, token.Token, token.CreatedAt); err != nil {
		return fmt.Errorf("upsert push token: %w", err)
	}
	return nil
}

// ListPushTokens implements TripRegistry.
func (s *Store) ListPushTokens(ctx context.Context, userID string) ([]domain.PushToken, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listPushTokensSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list push tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]domain.PushToken, 0)
	for rows.Next() {
		var (
			tok      domain.PushToken
			lastUsed *time.Time
		)
		if err := rows.Scan(&tok.UserID, &tok.DeviceID, &tok.Token, &tok.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		if lastUsed != nil {
			tok.LastUsedAt = *lastUsed
		}
		tokens = append(tokens, tok)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tokens, nil
}

// TouchPushToken implements TripRegistry.
func (s *Store) TouchPushToken(ctx context.Context, userID, deviceID string, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, touchPushTokenSQL, userID, deviceID, at); err != nil {
		return fmt.Errorf("touch push token: %w", err)
	}
	return nil
}

// InsertNotification implements TripRegistry.
func (s *Store) InsertNotification(ctx context.Context, rec domain.NotificationRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, insertNotificationSQL,
		rec.ID,
		rec.TripID,
		rec.UserID,
		rec.DelayHours,
		rec.ImprovementPct.String(),
		rec.Title,
		rec.Body,
		rec.SentAt,
	); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListRecentNotifications implements TripRegistry. An empty tripID lists
// across all trips.
func (s *Store) ListRecentNotifications(ctx context.Context, tripID string, limit int) ([]domain.NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentNotificationsSQL, tripID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent notifications: %w", err)
	}
	defer rows.Close()

	records := make([]domain.NotificationRecord, 0, max(limit, 0))
	for rows.Next() {
		var (
			rec        domain.NotificationRecord
			improveStr string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.TripID,
			&rec.UserID,
			&rec.DelayHours,
			&improveStr,
			&rec.Title,
			&rec.Body,
			&rec.SentAt,
		); err != nil {
			return nil, err
		}
		rec.ImprovementPct, err = decimal.NewFromString(improveStr)
		if err != nil {
			return nil, fmt.Errorf("parse improvement pct: %w", err)
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// DeleteNotificationsBefore implements TripRegistry.
func (s *Store) DeleteNotificationsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, err := pool.Exec(ctx, deleteNotificationsBeforeSQL, olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete notifications before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CustomerID implements CustomerDirectory.
func (s *Store) CustomerID(ctx context.Context, userID string) (string, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", err
	}
	var id string
	err = pool.QueryRow(ctx, customerIDSQL, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup customer: %w", err)
	}
	return id, nil
}

// SetCustomerID implements CustomerDirectory.
func (s *Store) SetCustomerID(ctx context.Context, userID, customerID string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, setCustomerIDSQL, userID, customerID); err != nil {
		return fmt.Errorf("set customer: %w", err)
	}
	return nil
}

func scanTrip(row pgx.Row) (domain.PlannedTrip, error) {
	var (
		trip      domain.PlannedTrip
		waypoints []byte
	)
	if err := row.Scan(
		&trip.ID,
		&trip.UserID,
		&trip.Origin.Lat,
		&trip.Origin.Lon,
		&trip.Origin.Name,
		&waypoints,
		&trip.DepartureAt,
		&trip.Timezone,
		&trip.CreatedAt,
		&trip.NextCheckAt,
		&trip.LastAlertAt,
	); err != nil {
		return domain.PlannedTrip{}, err
	}
	if len(waypoints) > 0 {
		if err := json.Unmarshal(waypoints, &trip.Waypoints); err != nil {
			return domain.PlannedTrip{}, fmt.Errorf("decode waypoints: %w", err)
		}
	}
	return trip, nil
}

var (
	_ TripRegistry      = (*Store)(nil)
	_ CustomerDirectory = (*Store)(nil)
	_ AdvisoryLocker    = (*Store)(nil)
)
