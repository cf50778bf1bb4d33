package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/boxflow-erp/boxflow-erp/internal/platform/httpx"
	"github.com/boxflow-erp/boxflow-erp/internal/shared"
)

// Handler exposes the movement log over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/inbound", h.PostInbound)
	r.Post("/outbound", h.PostOutbound)
	r.Get("/movements", h.ListMovements)
}

type movementPayload struct {
	Code       string  `json:"code"`
	MaterialID int64   `json:"material_id" validate:"required,gt=0"`
	Qty        float64 `json:"qty" validate:"required,gt=0"`
	PONumber   string  `json:"po_number"`
	JobNumber  string  `json:"job_number"`
	Note       string  `json:"note"`
	ActorID    int64   `json:"actor_id"`
}

func (h *Handler) PostInbound(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeMovement(w, r)
	if !ok {
		return
	}
	movement, err := h.service.PostInbound(r.Context(), InboundInput{
		Code:       payload.Code,
		MaterialID: payload.MaterialID,
		Qty:        payload.Qty,
		PONumber:   payload.PONumber,
		JobNumber:  payload.JobNumber,
		Note:       payload.Note,
		ActorID:    payload.ActorID,
	})
	if err != nil {
		h.respondMovementError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) PostOutbound(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeMovement(w, r)
	if !ok {
		return
	}
	movement, err := h.service.PostOutbound(r.Context(), OutboundInput{
		Code:       payload.Code,
		MaterialID: payload.MaterialID,
		Qty:        payload.Qty,
		JobNumber:  payload.JobNumber,
		Note:       payload.Note,
		ActorID:    payload.ActorID,
	})
	if err != nil {
		h.respondMovementError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	filter := MovementFilter{
		Type: MovementType(r.URL.Query().Get("type")),
	}
	if raw := r.URL.Query().Get("material_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material_id")
			return
		}
		filter.MaterialID = id
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from timestamp")
			return
		}
		filter.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to timestamp")
			return
		}
		filter.To = t
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid limit")
			return
		}
		filter.Limit = limit
	}

	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) decodeMovement(w http.ResponseWriter, r *http.Request) (movementPayload, bool) {
	var payload movementPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return payload, false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return payload, false
	}
	return payload, true
}

func (h *Handler) respondMovementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMaterialNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNegativeStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error("post movement", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
