// Package service runs the per-tick advisory pipeline and the registration
// operations behind the API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lhildreth66/Routecast2-sub001/internal/advisory"
	"github.com/lhildreth66/Routecast2-sub001/internal/alerting"
	"github.com/lhildreth66/Routecast2-sub001/internal/config"
	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
	"github.com/lhildreth66/Routecast2-sub001/internal/entitlement"
	"github.com/lhildreth66/Routecast2-sub001/internal/events"
	"github.com/lhildreth66/Routecast2-sub001/internal/forecast"
	"github.com/lhildreth66/Routecast2-sub001/internal/metrics"
	"github.com/lhildreth66/Routecast2-sub001/internal/optimizer"
	"github.com/lhildreth66/Routecast2-sub001/internal/scheduler"
	"github.com/lhildreth66/Routecast2-sub001/internal/storage"
)

// Options tune the pipeline.
type Options struct {
	CheckInterval     time.Duration
	RetryInterval     time.Duration
	Lookahead         time.Duration
	MaxDelayHours     int
	MinImprovementPct float64
	Cooldown          time.Duration
	Parallelism       int
	ForecastTimeout   time.Duration
	DispatchTimeout   time.Duration
	Retention         time.Duration
	LockKey           int64
}

// DefaultOptions returns the reference tunables.
func DefaultOptions() Options {
	return Options{
		CheckInterval:     30 * time.Minute,
		RetryInterval:     30 * time.Minute,
		Lookahead:         6 * time.Hour,
		MaxDelayHours:     optimizer.DefaultMaxDelayHours,
		MinImprovementPct: optimizer.DefaultMinImprovementPct,
		Cooldown:          advisory.DefaultCooldown,
		Parallelism:       4,
		ForecastTimeout:   5 * time.Second,
		DispatchTimeout:   5 * time.Second,
	}
}

// OptionsFromConfig maps runtime configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CheckInterval:     cfg.Scheduler.Interval,
		RetryInterval:     cfg.Scheduler.RetryInterval,
		Lookahead:         cfg.Scheduler.Lookahead,
		MaxDelayHours:     cfg.Advisory.MaxDelayHours,
		MinImprovementPct: cfg.Advisory.MinImprovementPct,
		Cooldown:          cfg.Advisory.Cooldown,
		Parallelism:       cfg.Scheduler.Parallelism,
		ForecastTimeout:   cfg.Forecast.RequestTimeout,
		DispatchTimeout:   cfg.Push.Timeout,
		Retention:         cfg.Advisory.Retention,
		LockKey:           cfg.Scheduler.AdvisoryLockKey,
	}
}

// Deps are the collaborators of a Service. Entitlement, Events, Locker,
// Scheduler, Clock and NewID are optional.
type Deps struct {
	Registry    storage.TripRegistry
	Forecast    forecast.Source
	Optimizer   *optimizer.Optimizer
	Dispatcher  alerting.Dispatcher
	Entitlement entitlement.Checker
	Events      events.Publisher
	Locker      storage.AdvisoryLocker
	Scheduler   *scheduler.Scheduler
	Clock       domain.Clock
	NewID       func() string
}

// Service orchestrates forecasting, optimisation and dispatch per trip.
type Service struct {
	opts        Options
	registry    storage.TripRegistry
	forecast    forecast.Source
	optimizer   *optimizer.Optimizer
	dispatcher  alerting.Dispatcher
	entitlement entitlement.Checker
	events      events.Publisher
	locker      storage.AdvisoryLocker
	scheduler   *scheduler.Scheduler
	clock       domain.Clock
	newID       func() string
	logger      zerolog.Logger
}

// New constructs the advisory service.
func New(opts Options, deps Deps, logger zerolog.Logger) *Service {
	def := DefaultOptions()
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = def.CheckInterval
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = def.RetryInterval
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = def.Lookahead
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = def.Parallelism
	}
	if opts.ForecastTimeout <= 0 {
		opts.ForecastTimeout = def.ForecastTimeout
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = def.DispatchTimeout
	}

	s := &Service{
		opts:        opts,
		registry:    deps.Registry,
		forecast:    deps.Forecast,
		optimizer:   deps.Optimizer,
		dispatcher:  deps.Dispatcher,
		entitlement: deps.Entitlement,
		events:      deps.Events,
		locker:      deps.Locker,
		scheduler:   deps.Scheduler,
		clock:       deps.Clock,
		newID:       deps.NewID,
		logger:      logger.With().Str("component", "service").Logger(),
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.clock == nil {
		s.clock = domain.SystemClock{}
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Run begins the tick loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick evaluates every due trip. Per-trip failures are logged and
// rescheduled; only registry or lock failures surface.
func (s *Service) ProcessTick(ctx context.Context, now time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", now).Msg("skip tick because advisory lock held elsewhere")
		metrics.TickSkipped("locked")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	started := time.Now()
	trips, err := s.registry.DueTrips(ctx, now, s.opts.Lookahead)
	if err != nil {
		return fmt.Errorf("list due trips: %w", err)
	}

	var (
		mu     sync.Mutex
		counts = make(map[domain.EvaluationState]int)
	)
	var g errgroup.Group
	g.SetLimit(s.opts.Parallelism)
	for _, trip := range trips {
		g.Go(func() error {
			state := s.evaluateIsolated(ctx, trip, now)
			mu.Lock()
			counts[state]++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.prune(ctx, now)
	metrics.ObserveTick(len(trips), time.Since(started))

	event := s.logger.Info().Time("tick", now).Int("due", len(trips))
	for state, n := range counts {
		event = event.Int(string(state), n)
	}
	event.Msg("tick complete")
	return nil
}

// evaluateIsolated keeps a panicking trip from taking down the tick.
func (s *Service) evaluateIsolated(ctx context.Context, trip domain.PlannedTrip, now time.Time) (state domain.EvaluationState) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("trip_id", trip.ID).Interface("panic", r).Msg("trip evaluation panicked")
			s.reschedule(ctx, trip, now, s.opts.RetryInterval, nil)
			state = domain.StateEvaluationFailed
		}
	}()
	state, _ = s.EvaluateTrip(ctx, trip, now)
	return state
}

// EvaluateTrip runs the advisory pipeline for one trip and persists the
// outcome. The returned error explains an EvaluationFailed state.
func (s *Service) EvaluateTrip(ctx context.Context, trip domain.PlannedTrip, now time.Time) (domain.EvaluationState, error) {
	started := time.Now()
	log := s.logger.With().Str("trip_id", trip.ID).Str("user_id", trip.UserID).Logger()
	log.Debug().Str("state", string(domain.StateEvaluating)).Msg("evaluating trip")

	state, err := s.evaluate(ctx, trip, now, log)

	metrics.ObserveEvaluation(string(state), time.Since(started))
	switch state {
	case domain.StateEvaluationFailed:
		log.Warn().Err(err).Str("state", string(state)).Msg("trip evaluation failed")
	case domain.StateSkipped:
		log.Debug().Str("state", string(state)).Msg("trip skipped")
	default:
		log.Info().Str("state", string(state)).Msg("trip evaluated")
	}
	return state, err
}

func (s *Service) evaluate(ctx context.Context, trip domain.PlannedTrip, now time.Time, log zerolog.Logger) (domain.EvaluationState, error) {
	if s.entitlement != nil {
		premium, err := s.entitlement.IsPremium(ctx, trip.UserID)
		if err != nil {
			s.reschedule(ctx, trip, now, s.opts.RetryInterval, nil)
			return domain.StateEvaluationFailed, fmt.Errorf("check entitlement: %w", err)
		}
		if !premium {
			s.reschedule(ctx, trip, now, s.opts.CheckInterval, nil)
			return domain.StateSkipped, nil
		}
	}

	hourly, err := s.fetchForecast(ctx, trip)
	if err != nil {
		s.reschedule(ctx, trip, now, s.opts.RetryInterval, nil)
		return domain.StateEvaluationFailed, err
	}

	result := s.optimizer.FindBestDelay(hourly, s.opts.MaxDelayHours, s.opts.MinImprovementPct)
	log.Debug().
		Float64("baseline", result.Baseline.Overall).
		Str("improvement_pct", result.ImprovementPct.StringFixed(2)).
		Bool("found", result.Found).
		Msg("delay search finished")
	if !result.Found {
		s.reschedule(ctx, trip, now, s.opts.CheckInterval, nil)
		return domain.StateNoActionNeeded, nil
	}

	if !advisory.Allow(trip, now, s.opts.Cooldown) {
		s.reschedule(ctx, trip, now, s.cooldownWait(trip, now), nil)
		return domain.StateCooldownBlocked, nil
	}
	// The snapshot may be stale when CheckNow and a tick race on one trip;
	// the registry claim is what keeps alerts one per cooldown.
	claimed, err := s.registry.ClaimAlert(ctx, trip.ID, now, s.opts.Cooldown)
	if err != nil {
		s.reschedule(ctx, trip, now, s.opts.RetryInterval, nil)
		return domain.StateEvaluationFailed, fmt.Errorf("claim alert: %w", err)
	}
	if !claimed {
		log.Debug().Msg("alert already claimed by a concurrent evaluation")
		s.reschedule(ctx, trip, now, s.opts.CheckInterval, nil)
		return domain.StateCooldownBlocked, nil
	}

	msg := alerting.Compose(result, alerting.TripContext{
		TripID:      trip.ID,
		DepartureAt: trip.DepartureAt,
		Timezone:    trip.Timezone,
	})
	result.Message = msg.Body

	sent, err := s.dispatch(ctx, trip, msg, log)
	if len(sent) == 0 {
		if rerr := s.registry.ReleaseAlert(ctx, trip.ID, now, trip.LastAlertAt); rerr != nil {
			log.Error().Err(rerr).Msg("failed to release alert claim")
		}
		s.reschedule(ctx, trip, now, s.opts.RetryInterval, nil)
		return domain.StateEvaluationFailed, err
	}
	if err != nil {
		log.Warn().Err(err).Int("delivered", len(sent)).Msg("some push tokens failed")
	}

	s.record(ctx, trip, result, msg, sent, now, log)
	alertAt := now
	s.reschedule(ctx, trip, now, s.opts.CheckInterval, &alertAt)
	return domain.StateNotified, nil
}

func (s *Service) fetchForecast(ctx context.Context, trip domain.PlannedTrip) ([]domain.HourlyForecast, error) {
	fctx, cancel := context.WithTimeout(ctx, s.opts.ForecastTimeout)
	defer cancel()

	hourly, err := s.forecast.Hourly(fctx, trip.Origin.Lat, trip.Origin.Lon, trip.DepartureAt, s.opts.MaxDelayHours+1)
	if err != nil {
		if !errors.Is(err, domain.ErrForecastUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrForecastUnavailable, err)
		}
		return nil, err
	}
	if err := forecast.Anchored(hourly, trip.DepartureAt); err != nil {
		return nil, err
	}
	return hourly, nil
}

// dispatch sends msg to every token of the trip owner and returns the tokens
// that accepted it.
func (s *Service) dispatch(ctx context.Context, trip domain.PlannedTrip, msg alerting.Message, log zerolog.Logger) ([]domain.PushToken, error) {
	tokens, err := s.registry.ListPushTokens(ctx, trip.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: list push tokens: %w", domain.ErrDispatchFailed, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: user has no push tokens", domain.ErrDispatchFailed)
	}

	var (
		sent []domain.PushToken
		errs []error
	)
	for _, tok := range tokens {
		dctx, cancel := context.WithTimeout(ctx, s.opts.DispatchTimeout)
		err := s.dispatcher.Send(dctx, tok.Token, msg.Title, msg.Body, msg.Data)
		cancel()
		metrics.ObservePush(err == nil)
		if err != nil {
			log.Debug().Err(err).Str("device_id", tok.DeviceID).Msg("push failed")
			errs = append(errs, fmt.Errorf("device %s: %w", tok.DeviceID, err))
			continue
		}
		sent = append(sent, tok)
	}
	if len(errs) > 0 {
		return sent, fmt.Errorf("%w: %w", domain.ErrDispatchFailed, errors.Join(errs...))
	}
	return sent, nil
}

func (s *Service) record(ctx context.Context, trip domain.PlannedTrip, result domain.BestDelayResult, msg alerting.Message, sent []domain.PushToken, now time.Time, log zerolog.Logger) {
	for _, tok := range sent {
		rec := domain.NotificationRecord{
			ID:             s.newID(),
			TripID:         trip.ID,
			UserID:         trip.UserID,
			DelayHours:     result.DelayHours,
			ImprovementPct: result.ImprovementPct,
			Title:          msg.Title,
			Body:           msg.Body,
			SentAt:         now,
		}
		if err := s.registry.InsertNotification(ctx, rec); err != nil {
			log.Error().Err(err).Msg("failed to persist notification record")
		}
		if err := s.registry.TouchPushToken(ctx, tok.UserID, tok.DeviceID, now); err != nil {
			log.Error().Err(err).Str("device_id", tok.DeviceID).Msg("failed to touch push token")
		}
		evt := events.NotificationSent{
			NotificationID: rec.ID,
			TripID:         rec.TripID,
			UserID:         rec.UserID,
			DelayHours:     rec.DelayHours,
			ImprovementPct: rec.ImprovementPct.StringFixed(2),
			SentAt:         rec.SentAt,
		}
		if err := s.events.PublishNotification(ctx, evt); err != nil {
			log.Warn().Err(err).Msg("failed to publish notification event")
		}
	}
}

// reschedule moves the next check to now+after, capped at departure so the
// trip is never checked past its departure.
func (s *Service) reschedule(ctx context.Context, trip domain.PlannedTrip, now time.Time, after time.Duration, lastAlert *time.Time) {
	next := NextCheck(now, trip.DepartureAt, after)
	if err := s.registry.UpdateTrip(ctx, trip.ID, storage.TripUpdate{NextCheckAt: next, LastAlertAt: lastAlert}); err != nil {
		s.logger.Error().Err(err).Str("trip_id", trip.ID).Msg("failed to update trip")
	}
}

// cooldownWait is the regular check interval, shortened when the cooldown
// lifts sooner.
func (s *Service) cooldownWait(trip domain.PlannedTrip, now time.Time) time.Duration {
	wait := s.opts.CheckInterval
	if until := advisory.NextAllowed(trip, s.opts.Cooldown).Sub(now); until > 0 && until < wait {
		wait = until
	}
	return wait
}

// NextCheck returns now+after, capped at departure while departure is still
// ahead. The result is always strictly after now.
func NextCheck(now, departure time.Time, after time.Duration) time.Time {
	if after <= 0 {
		after = time.Minute
	}
	next := now.Add(after)
	if departure.After(now) && next.After(departure) {
		next = departure
	}
	return next
}

func (s *Service) prune(ctx context.Context, now time.Time) {
	if s.opts.Retention <= 0 {
		return
	}
	removed, err := s.registry.DeleteNotificationsBefore(ctx, now.Add(-s.opts.Retention))
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to prune notification records")
		return
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("pruned notification records")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
