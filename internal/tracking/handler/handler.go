package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"terraguard/internal/geo"
	"terraguard/internal/tracking/feed"
	"terraguard/internal/tracking/monitor"
	"terraguard/internal/tracking/session"
	dErrors "terraguard/pkg/domain-errors"
	"terraguard/pkg/platform/httputil"
	"terraguard/pkg/requestcontext"
)

// Feed modes accepted by the start endpoint.
const (
	ModeDemo      = "demo"
	ModeWaypoints = "waypoints"
	ModePush      = "push"
)

// Service is the session surface used over HTTP.
type Service interface {
	Start(ctx context.Context, req session.StartRequest) (*session.Status, error)
	Stop(ctx context.Context, identityNumber string) error
	Status(identityNumber string) (*session.Status, error)
	Observe(ctx context.Context, identityNumber string, pos geo.Position) (*monitor.BreachEvent, error)
}

// Handler serves tracking session control.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts tracking routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/tracking/{aadhaar}", h.handleStatus)
	r.Post("/api/tracking/{aadhaar}/start", h.handleStart)
	r.Post("/api/tracking/{aadhaar}/stop", h.handleStop)
	r.Post("/api/tracking/{aadhaar}/positions", h.handlePosition)
}

type startRequest struct {
	ZoneID     string      `json:"zone_id"`
	Mode       string      `json:"mode"`
	Waypoints  []geo.Point `json:"waypoints"`
	IntervalMS int         `json:"interval_ms"`
}

func (r *startRequest) Normalize() {
	r.ZoneID = strings.TrimSpace(r.ZoneID)
	r.Mode = strings.ToLower(strings.TrimSpace(r.Mode))
	if r.Mode == "" {
		r.Mode = ModeDemo
		if len(r.Waypoints) > 0 {
			r.Mode = ModeWaypoints
		}
	}
}

func (r *startRequest) Validate() error {
	switch r.Mode {
	case ModeDemo, ModePush:
	case ModeWaypoints:
		if len(r.Waypoints) == 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "waypoints are required")
		}
		for _, p := range r.Waypoints {
			if err := p.Validate(); err != nil {
				return err
			}
		}
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "mode must be demo, waypoints or push")
	}
	if r.IntervalMS < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "interval_ms must not be negative")
	}
	return nil
}

func (r *startRequest) source() feed.Source {
	switch r.Mode {
	case ModeWaypoints:
		return feed.Waypoints(r.Waypoints)
	case ModePush:
		return nil
	default:
		return feed.DemoPath()
	}
}

type positionRequest struct {
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Timestamp *time.Time `json:"timestamp"`
}

func (r *positionRequest) Validate() error {
	if r.Latitude == nil || r.Longitude == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "latitude and longitude are required")
	}
	return nil
}

type positionResponse struct {
	Breached bool                 `json:"breached"`
	Event    *monitor.BreachEvent `json:"event,omitempty"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[startRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	status, err := h.service.Start(ctx, session.StartRequest{
		IdentityNumber: chi.URLParam(r, "aadhaar"),
		ZoneID:         req.ZoneID,
		Source:         req.source(),
		Interval:       time.Duration(req.IntervalMS) * time.Millisecond,
	})
	if err != nil {
		h.logFailure(ctx, "tracking start failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, status)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	identity := chi.URLParam(r, "aadhaar")

	if err := h.service.Stop(ctx, identity); err != nil {
		h.logFailure(ctx, "tracking stop failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	status, err := h.service.Status(identity)
	if err != nil {
		h.logFailure(ctx, "tracking status failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(chi.URLParam(r, "aadhaar"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handlePosition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[positionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	pos := geo.At(*req.Latitude, *req.Longitude, requestcontext.Now(ctx))
	if req.Timestamp != nil {
		pos.Timestamp = *req.Timestamp
	}

	ev, err := h.service.Observe(ctx, chi.URLParam(r, "aadhaar"), pos)
	if err != nil {
		h.logFailure(ctx, "position rejected", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, positionResponse{Breached: ev != nil, Event: ev})
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest, dErrors.CodeNotFound, dErrors.CodeConflict:
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err.Error())
	default:
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err.Error())
	}
}
