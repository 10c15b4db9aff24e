package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kirychukyurii/weka-scale-in/internal/jrpc"
	"github.com/kirychukyurii/weka-scale-in/internal/model"
	"github.com/kirychukyurii/weka-scale-in/internal/report"
	"github.com/kirychukyurii/weka-scale-in/internal/service"
)

const maxEventSize = 1 << 20

// ScaleIn handles POST /api/scale-in
func (h *Handler) ScaleIn(w http.ResponseWriter, r *http.Request) {
	var req model.ScaleInRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventSize))
	if err := dec.Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid scale-in event: "+err.Error())
		return
	}

	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid scale-in event: "+err.Error())
		return
	}

	// a half-issued command sequence must not be cut short by the trigger hanging up
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.invocationTimeout)
	defer cancel()

	resp, err := h.service.ScaleIn(ctx, &req)
	if err != nil {
		h.logger.Error("failed to scale in",
			slog.String("role", string(req.Role)),
			slog.String("error", err.Error()),
		)
		h.respondError(w, statusFor(err), err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps an invocation failure to the HTTP status returned to the trigger
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case jrpc.IsAuthentication(err):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

// GetLastReport handles GET /api/scale-in/{role}/last
func (h *Handler) GetLastReport(w http.ResponseWriter, r *http.Request) {
	var role model.Role
	if err := role.UnmarshalText([]byte(chi.URLParam(r, "role"))); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := h.service.LastReport(r.Context(), role)
	if errors.Is(err, report.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "no report for role "+string(role))
		return
	}
	if err != nil {
		h.logger.Error("failed to read scale-in report",
			slog.String("role", string(role)),
			slog.String("error", err.Error()),
		)
		h.respondError(w, http.StatusInternalServerError, "failed to read scale-in report")
		return
	}

	h.respondJSON(w, http.StatusOK, rep)
}
