package purchasing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/boxflow-erp/boxflow-erp/internal/platform/httpx"
	"github.com/boxflow-erp/boxflow-erp/internal/shared"
)

// Handler exposes the purchase order workflow over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pos", h.List)
	r.Post("/pos", h.Create)
	r.Get("/pos/{id}", h.Show)
	r.Post("/pos/{id}/submit", h.event(EventSubmit))
	r.Post("/pos/{id}/approve", h.event(EventApprove))
	r.Post("/pos/{id}/reject", h.event(EventReject))
	r.Post("/pos/{id}/send", h.event(EventSend))
	r.Post("/pos/{id}/acknowledge", h.event(EventAcknowledge))
	r.Post("/pos/{id}/cancel", h.event(EventCancel))
	r.Post("/pos/{id}/deliveries", h.RecordDelivery)
}

type itemPayload struct {
	MaterialID int64   `json:"material_id" validate:"required,gt=0"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	Rate       float64 `json:"rate" validate:"required,gt=0"`
}

type createPayload struct {
	Number     string        `json:"number"`
	SupplierID int64         `json:"supplier_id" validate:"required,gt=0"`
	Items      []itemPayload `json:"items" validate:"required,min=1,dive"`
	ActorID    int64         `json:"actor_id"`
}

type actorPayload struct {
	ActorID int64 `json:"actor_id"`
}

type deliveryPayload struct {
	ItemID          int64   `json:"item_id" validate:"required,gt=0"`
	Qty             float64 `json:"qty" validate:"required,gt=0"`
	QualityAccepted *bool   `json:"quality_accepted"`
	GRNNumber       string  `json:"grn_number"`
	ActorID         int64   `json:"actor_id"`
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

	input := CreateInput{Number: payload.Number, SupplierID: payload.SupplierID, ActorID: payload.ActorID}
	for _, item := range payload.Items {
		input.Items = append(input.Items, ItemInput{MaterialID: item.MaterialID, Quantity: item.Quantity, Rate: item.Rate})
	}

	po, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filter := ListFilter{
		Status: POStatus(r.URL.Query().Get("status")),
		Page:   page,
		Limit:  limit,
	}
	if raw := r.URL.Query().Get("supplier_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid supplier_id")
			return
		}
		filter.SupplierID = id
	}

	orders, total, err := h.service.ListByStatus(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"purchase_orders": orders,
		"pagination":      shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	poID, ok := h.poID(w, r)
	if !ok {
		return
	}
	po, err := h.service.GetByID(r.Context(), poID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

// event builds a handler applying one transition.
func (h *Handler) event(event Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		poID, ok := h.poID(w, r)
		if !ok {
			return
		}
		var payload actorPayload
		// Body is optional; the actor defaults to 0 (system).
		_ = httpx.DecodeJSON(r, &payload)

		var (
			po  PurchaseOrder
			err error
		)
		switch event {
		case EventSubmit:
			po, err = h.service.Submit(r.Context(), poID, payload.ActorID)
		case EventApprove:
			po, err = h.service.Approve(r.Context(), poID, payload.ActorID)
		case EventReject:
			po, err = h.service.Reject(r.Context(), poID, payload.ActorID)
		case EventSend:
			po, err = h.service.Send(r.Context(), poID, payload.ActorID)
		case EventAcknowledge:
			po, err = h.service.Acknowledge(r.Context(), poID, payload.ActorID)
		case EventCancel:
			po, err = h.service.Cancel(r.Context(), poID, payload.ActorID)
		}
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, po)
	}
}

func (h *Handler) RecordDelivery(w http.ResponseWriter, r *http.Request) {
	poID, ok := h.poID(w, r)
	if !ok {
		return
	}
	var payload deliveryPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	po, err := h.service.RecordDelivery(r.Context(), DeliveryInput{
		POID:            poID,
		ItemID:          payload.ItemID,
		Qty:             payload.Qty,
		QualityAccepted: payload.QualityAccepted,
		GRNNumber:       payload.GRNNumber,
		ActorID:         payload.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) poID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase order ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrItemNotFound), errors.Is(err, ErrMaterialNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrQuantityExceeded):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrLockHeld):
		httpx.Problem(w, http.StatusConflict, "Conflict", "delivery already in progress for this purchase order")
	default:
		h.logger.Error("purchase order request", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
