// Package metrics exposes Prometheus instruments for the advisor.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	registerOnce sync.Once

	evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routecast_trip_evaluations_total",
		Help: "Trip evaluations by terminal state.",
	}, []string{"state"})

	evaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "routecast_trip_evaluation_duration_seconds",
		Help:    "Duration of a single trip evaluation.",
		Buckets: prometheus.DefBuckets,
	})

	ticksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routecast_ticks_total",
		Help: "Scheduler ticks by outcome.",
	}, []string{"outcome"})

	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "routecast_tick_duration_seconds",
		Help:    "Duration of a full evaluation pass.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})

	dueTrips = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "routecast_due_trips",
		Help: "Trips picked up by the most recent tick.",
	})

	pushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routecast_push_dispatch_total",
		Help: "Push dispatch attempts by result.",
	}, []string{"result"})

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routecast_http_requests_total",
		Help: "HTTP requests served by the registration API.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "routecast_http_request_duration_seconds",
		Help:    "Duration of registration API requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// MustRegister registers the package collectors once.
func MustRegister(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		registerer.MustRegister(
			evaluationsTotal,
			evaluationDuration,
			ticksTotal,
			tickDuration,
			dueTrips,
			pushesTotal,
			httpRequestsTotal,
			httpRequestDuration,
		)
	})
}

// ObserveEvaluation records one finished trip evaluation.
func ObserveEvaluation(state string, d time.Duration) {
	evaluationsTotal.WithLabelValues(state).Inc()
	evaluationDuration.Observe(d.Seconds())
}

// ObserveTick records a completed pass over due trips.
func ObserveTick(due int, d time.Duration) {
	ticksTotal.WithLabelValues("completed").Inc()
	dueTrips.Set(float64(due))
	tickDuration.Observe(d.Seconds())
}

// TickSkipped counts a tick dropped for the given reason.
func TickSkipped(reason string) {
	ticksTotal.WithLabelValues(reason).Inc()
}

// ObservePush counts a push dispatch attempt.
func ObservePush(ok bool) {
	result := "failed"
	if ok {
		result = "sent"
	}
	pushesTotal.WithLabelValues(result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer runs a dedicated /metrics listener until ctx ends.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())

	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// Middleware records request counts and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		labels := []string{r.Method, route, strconv.Itoa(status)}
		httpRequestsTotal.WithLabelValues(labels...).Inc()
		httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}
