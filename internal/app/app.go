package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lhildreth66/Routecast2-sub001/internal/alerting"
	"github.com/lhildreth66/Routecast2-sub001/internal/api"
	"github.com/lhildreth66/Routecast2-sub001/internal/config"
	"github.com/lhildreth66/Routecast2-sub001/internal/entitlement"
	"github.com/lhildreth66/Routecast2-sub001/internal/events"
	"github.com/lhildreth66/Routecast2-sub001/internal/forecast"
	"github.com/lhildreth66/Routecast2-sub001/internal/metrics"
	"github.com/lhildreth66/Routecast2-sub001/internal/optimizer"
	"github.com/lhildreth66/Routecast2-sub001/internal/risk"
	"github.com/lhildreth66/Routecast2-sub001/internal/scheduler"
	"github.com/lhildreth66/Routecast2-sub001/internal/service"
	"github.com/lhildreth66/Routecast2-sub001/internal/storage"
	"github.com/lhildreth66/Routecast2-sub001/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// registry bundles the storage backends chosen by configuration.
type registry struct {
	trips     storage.TripRegistry
	customers storage.CustomerDirectory
	locker    storage.AdvisoryLocker
	store     *storage.Store
	close     func()
}

func (a *App) openRegistry(ctx context.Context) (*registry, error) {
	if a.Config.Database.DSN == "" {
		mem := storage.NewMemoryStore()
		return &registry{trips: mem, customers: mem, close: func() {}}, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database, a.Config.Scheduler.Parallelism)
	if err != nil {
		return nil, err
	}
	store := storage.NewStore(pool)
	if a.Config.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	return &registry{trips: store, customers: store, locker: store, store: store, close: store.Close}, nil
}

func (a *App) newRedis() redis.UniversalClient {
	cfg := a.Config.Redis
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func (a *App) newForecast(rdb redis.UniversalClient) forecast.Source {
	cfg := a.Config.Forecast
	weather := forecast.NewOpenMeteo(forecast.OpenMeteoOptions{
		BaseURL:   cfg.OpenMeteoURL,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
	}, a.Logger)

	var alerts forecast.AlertCounter
	if cfg.NWSEnabled {
		alerts = forecast.NewNWS(forecast.NWSOptions{
			BaseURL:   cfg.NWSURL,
			Timeout:   cfg.RequestTimeout,
			UserAgent: cfg.UserAgent,
		}, a.Logger)
	}

	live := forecast.NewLive(weather, alerts, a.Logger)
	return forecast.NewCachedSource(live, rdb, a.Config.Redis.ForecastTTL, a.Logger)
}

func (a *App) newEntitlement(reg *registry, rdb redis.UniversalClient) entitlement.Checker {
	cfg := a.Config.Entitlement
	var checker entitlement.Checker
	switch strings.ToLower(cfg.Provider) {
	case "stripe":
		checker = entitlement.NewStripe(entitlement.StripeOptions{
			SecretKey: cfg.Stripe.SecretKey,
			BaseURL:   cfg.Stripe.BaseURL,
			Timeout:   cfg.Stripe.Timeout,
			PriceIDs:  cfg.Stripe.PriceIDs,
		}, reg.customers, a.Logger)
	default:
		checker = entitlement.NewStatic(cfg.Static)
	}
	return entitlement.NewCached(checker, rdb, a.Config.Redis.EntitlementTTL, a.Logger)
}

func (a *App) newDispatcher() *alerting.Router {
	cfg := a.Config.Push
	var providers []alerting.Provider
	if cfg.Expo.Enabled {
		providers = append(providers, alerting.NewExpoDispatcher(cfg.Expo.URL, cfg.Expo.AccessToken, cfg.Timeout, a.Logger))
	}
	if cfg.Telegram.Enabled {
		providers = append(providers, alerting.NewTelegramDispatcher(cfg.Telegram.BotToken, cfg.Telegram.APIBase, cfg.Timeout, a.Logger))
	}
	return alerting.NewRouter(providers...)
}

func (a *App) newPublisher() events.Publisher {
	cfg := a.Config.Events
	if cfg.AMQPURL == "" {
		return events.Nop{}
	}
	pub, err := events.NewAMQP(cfg.AMQPURL, cfg.Exchange, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("notification events disabled")
		return events.Nop{}
	}
	return pub
}

func (a *App) newOptimizer() *optimizer.Optimizer {
	return optimizer.New(risk.NewModel(a.Config.Risk))
}

// buildService wires the advisory service. sched may be nil for one-shot
// commands.
func (a *App) buildService(reg *registry, rdb redis.UniversalClient, publisher events.Publisher, sched *scheduler.Scheduler) *service.Service {
	dispatcher := a.newDispatcher()
	if dispatcher.Len() == 0 {
		a.Logger.Warn().Msg("no push provider enabled; advisories cannot be delivered")
	}

	deps := service.Deps{
		Registry:    reg.trips,
		Forecast:    a.newForecast(rdb),
		Optimizer:   a.newOptimizer(),
		Dispatcher:  dispatcher,
		Entitlement: a.newEntitlement(reg, rdb),
		Events:      publisher,
		Scheduler:   sched,
	}
	if reg.locker != nil {
		deps.Locker = reg.locker
	}
	return service.New(service.OptionsFromConfig(a.Config), deps, a.Logger)
}

// Run executes the long-running advisory service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg, err := a.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.close()
	if reg.store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; trips are kept in memory")
	}

	rdb := a.newRedis()
	if rdb != nil {
		defer rdb.Close()
	}

	publisher := a.newPublisher()
	defer publisher.Close()

	metrics.MustRegister(prometheus.DefaultRegisterer)
	if a.Config.Metrics.Enabled {
		metrics.StartServer(ctx, a.Logger, a.Config.Metrics.Addr)
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		OnSkip: func(time.Time) {
			metrics.TickSkipped("busy")
		},
	}, a.Logger)

	svc := a.buildService(reg, rdb, publisher, sched)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info().Str("version", version.String()).Dur("interval", a.Config.Scheduler.Interval).Msg("starting advisory service")
		return svc.Run(gctx)
	})
	if a.Config.API.Enabled {
		router := api.NewRouter(svc, api.Options{
			RateLimit: a.Config.API.RateLimit,
			Burst:     a.Config.API.Burst,
			Timeout:   a.Config.API.Timeout,
		}, a.Logger)
		server := api.NewServer(a.Config.API.Addr, router, a.Logger)
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("advisory service stopped")
	return nil
}

// ExportOptions hold parameters for exporting a risk timeline.
type ExportOptions struct {
	Lat       float64
	Lon       float64
	From      *time.Time
	Hours     int
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	TripID string
	Limit  int
}

// SimulateOptions configure the simulate command.
type SimulateOptions struct {
	Lat       float64
	Lon       float64
	Departure time.Time
	Live      bool
	Timezone  string
	Token     string
}
