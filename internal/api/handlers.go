package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
	"github.com/lhildreth66/Routecast2-sub001/internal/service"
)

// Advisor is the subset of the advisory service exposed over HTTP.
type Advisor interface {
	RegisterTrip(ctx context.Context, req service.TripRequest) (string, error)
	RegisterPushToken(ctx context.Context, userID, token, deviceID string) error
	CheckNow(ctx context.Context, tripID string) (domain.EvaluationState, error)
	RecentNotifications(ctx context.Context, tripID string, limit int) ([]domain.NotificationRecord, error)
}

type waypointRequest struct {
	Lat  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon  float64 `json:"lon" validate:"gte=-180,lte=180"`
	Name string  `json:"name" validate:"max=200"`
}

type createTripRequest struct {
	UserID      string            `json:"user_id" validate:"required,max=128"`
	Waypoints   []waypointRequest `json:"waypoints" validate:"required,min=1,max=100,dive"`
	DepartureAt time.Time         `json:"departure_at" validate:"required"`
	Timezone    string            `json:"timezone" validate:"omitempty,timezone"`
}

type createTripResponse struct {
	TripID string `json:"trip_id"`
}

type pushTokenRequest struct {
	UserID   string `json:"user_id" validate:"required,max=128"`
	Token    string `json:"token" validate:"required,max=512"`
	DeviceID string `json:"device_id" validate:"max=256"`
}

type checkResponse struct {
	TripID string `json:"trip_id"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
}

type notificationDTO struct {
	ID             string    `json:"id"`
	DelayHours     int       `json:"delay_hours"`
	ImprovementPct string    `json:"improvement_pct"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
}

type notificationsResponse struct {
	TripID        string            `json:"trip_id"`
	Notifications []notificationDTO `json:"notifications"`
}

type handler struct {
	advisor  Advisor
	validate *validator.Validate
	logger   zerolog.Logger
}

func newHandler(advisor Advisor, logger zerolog.Logger) *handler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &handler{advisor: advisor, validate: validate, logger: logger}
}

func (h *handler) createTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.writeRequestError(w, err)
		return
	}

	waypoints := make([]domain.Waypoint, len(req.Waypoints))
	for i, wp := range req.Waypoints {
		waypoints[i] = domain.Waypoint{Lat: wp.Lat, Lon: wp.Lon, Name: wp.Name}
	}
	id, err := h.advisor.RegisterTrip(r.Context(), service.TripRequest{
		UserID:      req.UserID,
		Waypoints:   waypoints,
		DepartureAt: req.DepartureAt,
		Timezone:    req.Timezone,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createTripResponse{TripID: id})
}

func (h *handler) registerPushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.writeRequestError(w, err)
		return
	}
	if err := h.advisor.RegisterPushToken(r.Context(), req.UserID, req.Token, req.DeviceID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) checkTrip(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "id")
	state, err := h.advisor.CheckNow(r.Context(), tripID)
	if err != nil && !state.IsTerminal() {
		h.writeServiceError(w, err)
		return
	}
	resp := checkResponse{TripID: tripID, State: string(state)}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			writeFieldError(w, "limit", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	records, err := h.advisor.RecentNotifications(r.Context(), tripID, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	resp := notificationsResponse{TripID: tripID, Notifications: make([]notificationDTO, 0, len(records))}
	for _, rec := range records {
		resp.Notifications = append(resp.Notifications, notificationDTO{
			ID:             rec.ID,
			DelayHours:     rec.DelayHours,
			ImprovementPct: rec.ImprovementPct.StringFixed(2),
			Title:          rec.Title,
			Body:           rec.Body,
			SentAt:         rec.SentAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) writeRequestError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		field := first.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		writeFieldError(w, field, fmt.Sprintf("failed %q validation", first.Tag()))
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

func (h *handler) writeServiceError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeFieldError(w, verr.Field, verr.Reason)
	case errors.Is(err, domain.ErrTripNotFound):
		writeError(w, http.StatusNotFound, "trip_not_found", "trip not found")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		h.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
}
