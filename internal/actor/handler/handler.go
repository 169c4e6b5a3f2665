package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"terraguard/internal/actor/models"
	dErrors "terraguard/pkg/domain-errors"
	"terraguard/pkg/platform/httputil"
	"terraguard/pkg/requestcontext"
)

// Service is the actor surface used over HTTP.
type Service interface {
	RegisterActor(ctx context.Context, name, identityNumber string) (*models.Actor, error)
	LookupActor(ctx context.Context, identityNumber string) (*models.Actor, error)
}

// Handler serves driver registration and login.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts actor routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/register-driver", h.handleRegister)
	r.Post("/api/login-driver", h.handleLogin)
}

type registerRequest struct {
	Name    string `json:"name"`
	Aadhaar string `json:"aadhaar"`
}

func (r *registerRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Aadhaar = strings.TrimSpace(r.Aadhaar)
}

func (r *registerRequest) Validate() error {
	if r.Name == "" || r.Aadhaar == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "Missing fields")
	}
	return nil
}

type loginRequest struct {
	Aadhaar string `json:"aadhaar"`
}

func (r *loginRequest) Normalize() {
	r.Aadhaar = strings.TrimSpace(r.Aadhaar)
}

func (r *loginRequest) Validate() error {
	if r.Aadhaar == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "Aadhaar required")
	}
	return nil
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[registerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	actor, err := h.service.RegisterActor(ctx, req.Name, req.Aadhaar)
	if err != nil {
		h.logger.WarnContext(ctx, "driver registration failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, actor)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[loginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	actor, err := h.service.LookupActor(ctx, req.Aadhaar)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "driver login failed",
				"request_id", requestID,
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, actor)
}
