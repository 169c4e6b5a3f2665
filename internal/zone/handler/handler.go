package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"terraguard/internal/geo"
	"terraguard/internal/zone"
	"terraguard/pkg/platform/httputil"
	"terraguard/pkg/requestcontext"
)

// Registry is the zone registry surface used over HTTP.
type Registry interface {
	Register(z zone.Zone, replace bool) (zone.Zone, error)
	Get(zoneID string) (zone.Zone, error)
	ListAll() []zone.Zone
}

// Handler exposes the zone registry.
type Handler struct {
	registry Registry
	logger   *slog.Logger
}

// New constructs a zone handler.
func New(registry Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Register mounts zone routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/zones", h.handleList)
	r.Get("/zones/{zoneID}", h.handleGet)
	r.Put("/zones/{zoneID}", h.handlePut)
}

type putZoneRequest struct {
	Name     string      `json:"name"`
	Boundary []geo.Point `json:"boundary"`
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.registry.ListAll())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	z, err := h.registry.Get(chi.URLParam(r, "zoneID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, z)
}

// handlePut registers a zone, replacing any existing zone with the same id.
func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[putZoneRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	z, err := h.registry.Register(zone.Zone{
		ID:       chi.URLParam(r, "zoneID"),
		Name:     req.Name,
		Boundary: req.Boundary,
	}, true)
	if err != nil {
		h.logger.WarnContext(ctx, "zone registration rejected",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, z)
}
