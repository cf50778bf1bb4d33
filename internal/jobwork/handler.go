package jobwork

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/boxflow-erp/boxflow-erp/internal/inventory"
	"github.com/boxflow-erp/boxflow-erp/internal/platform/httpx"
	"github.com/boxflow-erp/boxflow-erp/internal/shared"
)

// Handler exposes job cards over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/jobs", h.List)
	r.Post("/jobs", h.Create)
	r.Get("/jobs/{id}", h.Show)
	r.Post("/jobs/{id}/issue", h.Issue)
	r.Post("/jobs/{id}/receipts", h.Receive)
	r.Post("/jobs/{id}/cancel", h.Cancel)
}

type linePayload struct {
	MaterialID int64   `json:"material_id" validate:"required,gt=0"`
	Qty        float64 `json:"qty" validate:"required,gt=0"`
}

type createPayload struct {
	Number      string        `json:"number"`
	JobWorkerID int64         `json:"job_worker_id" validate:"required,gt=0"`
	Process     string        `json:"process"`
	Lines       []linePayload `json:"lines" validate:"required,min=1,dive"`
	ActorID     int64         `json:"actor_id"`
}

type receivePayload struct {
	LineID  int64   `json:"line_id" validate:"required,gt=0"`
	Qty     float64 `json:"qty" validate:"required,gt=0"`
	Note    string  `json:"note"`
	ActorID int64   `json:"actor_id"`
}

type actorPayload struct {
	ActorID int64 `json:"actor_id"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CreateInput{Number: payload.Number, JobWorkerID: payload.JobWorkerID, Process: payload.Process, ActorID: payload.ActorID}
	for _, line := range payload.Lines {
		input.Lines = append(input.Lines, LineInput{MaterialID: line.MaterialID, Qty: line.Qty})
	}

	job, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, job)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := h.service.List(r.Context(), JobStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"job_cards": jobs})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	job, err := h.service.GetByID(r.Context(), jobID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	var payload actorPayload
	_ = httpx.DecodeJSON(r, &payload)

	job, err := h.service.IssueMaterials(r.Context(), jobID, payload.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	var payload receivePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	job, err := h.service.ReceiveProcessed(r.Context(), ReceiveInput{
		JobID:   jobID,
		LineID:  payload.LineID,
		Qty:     payload.Qty,
		Note:    payload.Note,
		ActorID: payload.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	var payload actorPayload
	_ = httpx.DecodeJSON(r, &payload)

	job, err := h.service.Cancel(r.Context(), jobID, payload.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid job card ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLineNotFound), errors.Is(err, inventory.ErrMaterialNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrQuantityExceeded), errors.Is(err, inventory.ErrNegativeStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrLockHeld):
		httpx.Problem(w, http.StatusConflict, "Conflict", "job card busy")
	default:
		h.logger.Error("job card request", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
