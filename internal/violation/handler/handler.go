package handler

import (
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"terraguard/internal/geo"
	"terraguard/internal/violation/models"
	dErrors "terraguard/pkg/domain-errors"
	"terraguard/pkg/platform/httputil"
	"terraguard/pkg/requestcontext"
)

// Service is the violation surface used over HTTP.
type Service interface {
	RecordViolation(ctx context.Context, req models.RecordRequest) (*models.Violation, error)
	ListViolations(ctx context.Context, w models.Window) ([]models.WithActor, error)
	ListByActor(ctx context.Context, identityNumber string, w models.Window) ([]*models.Violation, error)
}

// Handler serves violation logging and reporting.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts violation routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/log-violation", h.handleLog)
	r.Get("/api/admin/violations", h.handleList)
	r.Get("/api/admin/violations.csv", h.handleExportCSV)
	r.Get("/api/drivers/{aadhaar}/violations", h.handleListByDriver)
}

type logViolationRequest struct {
	Aadhaar   string     `json:"aadhaar"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Message   string     `json:"message"`
	ZoneID    string     `json:"zone_id"`
	Timestamp *time.Time `json:"timestamp"`
}

func (r *logViolationRequest) Normalize() {
	r.Aadhaar = strings.TrimSpace(r.Aadhaar)
	r.Message = strings.TrimSpace(r.Message)
	r.ZoneID = strings.TrimSpace(r.ZoneID)
}

func (r *logViolationRequest) Validate() error {
	if r.Aadhaar == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "aadhaar is required")
	}
	if r.Latitude == nil || r.Longitude == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "latitude and longitude are required")
	}
	return nil
}

func (h *Handler) handleLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[logViolationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	pos := geo.At(*req.Latitude, *req.Longitude, requestcontext.Now(ctx))
	if req.Timestamp != nil {
		pos.Timestamp = *req.Timestamp
	}

	v, err := h.service.RecordViolation(ctx, models.RecordRequest{
		IdentityNumber: req.Aadhaar,
		Position:       pos,
		ZoneID:         req.ZoneID,
		Message:        req.Message,
	})
	if err != nil {
		h.logFailure(ctx, requestID, "violation log failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, v)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	window, err := parseWindow(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.service.ListViolations(ctx, window)
	if err != nil {
		h.logFailure(ctx, requestID, "violation listing failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

var csvHeader = []string{"driver", "aadhaar", "latitude", "longitude", "zone_id", "message", "detected_at"}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	window, err := parseWindow(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.service.ListViolations(ctx, window)
	if err != nil {
		h.logFailure(ctx, requestID, "violation export failed", err)
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="violations.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	for _, v := range list {
		name, aadhaar := "Unknown", "N/A"
		if v.Driver != nil {
			name, aadhaar = v.Driver.Name, v.Driver.IdentityNumber
		}
		_ = cw.Write([]string{
			name,
			aadhaar,
			strconv.FormatFloat(v.Latitude, 'f', -1, 64),
			strconv.FormatFloat(v.Longitude, 'f', -1, 64),
			v.ZoneID,
			v.Message,
			v.DetectedAt.Format(time.RFC3339Nano),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.ErrorContext(ctx, "csv export write failed",
			"request_id", requestID,
			"error", err.Error(),
		)
	}
}

func (h *Handler) handleListByDriver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	window, err := parseWindow(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.service.ListByActor(ctx, chi.URLParam(r, "aadhaar"), window)
	if err != nil {
		h.logFailure(ctx, requestID, "driver violation listing failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

// parseWindow reads optional RFC 3339 from/to query parameters.
func parseWindow(r *http.Request) (models.Window, error) {
	var w models.Window
	q := r.URL.Query()
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &w.From}, {"to", &w.To}} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return models.Window{}, dErrors.New(dErrors.CodeInvalidInput, p.key+" must be an RFC 3339 timestamp")
		}
		*p.dst = t
	}
	return w, w.Validate()
}

func (h *Handler) logFailure(ctx context.Context, requestID, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodePersistence || dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestID,
		"error", err.Error(),
	)
}
