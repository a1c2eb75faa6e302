package order

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/welovename555/smsdesk/internal/provider"
)

type Handler struct {
	mgr      *Manager
	validate *validator.Validate
}

func NewHandler(mgr *Manager, validate *validator.Validate) *Handler {
	return &Handler{mgr: mgr, validate: validate}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.PurchaseOrder)
	r.Get("/active", h.ActiveOrder)
	r.Post("/active/ready", h.ReadyOrder)
	r.Post("/active/cancel", h.CancelOrder)
	r.Post("/active/complete", h.CompleteOrder)
	r.Get("/events", h.StreamEvents)
	r.Get("/history", h.ListHistory)
	r.Delete("/history", h.ClearHistory)
	return r
}

type purchaseReq struct {
	Service     string `json:"service" validate:"required"`
	Country     string `json:"country" validate:"required"`
	ServiceName string `json:"serviceName" validate:"required"`
	CountryName string `json:"countryName" validate:"required"`
}

func (h *Handler) PurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req purchaseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.mgr.Purchase(r.Context(), req.Service, req.Country, req.ServiceName, req.CountryName)
	if err != nil {
		var acquireErr *provider.AcquireError
		switch {
		case errors.Is(err, ErrOrderActive):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.As(err, &acquireErr):
			http.Error(w, acquireErr.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, provider.ErrBadKey):
			http.Error(w, err.Error(), http.StatusUnauthorized)
		default:
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(o)
}

func (h *Handler) ActiveOrder(w http.ResponseWriter, r *http.Request) {
	o := h.mgr.Active()
	if o == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(o)
}

// ReadyOrder просит провайдера перепослать СМС для активного заказа.
func (h *Handler) ReadyOrder(w http.ResponseWriter, r *http.Request) {
	h.pushStatus(w, r, h.mgr.Ready)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.pushStatus(w, r, h.mgr.Cancel)
}

func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	h.pushStatus(w, r, h.mgr.Complete)
}

func (h *Handler) pushStatus(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error) {
	o := h.mgr.Active()
	if o == nil {
		http.Error(w, ErrNoActiveOrder.Error(), http.StatusNotFound)
		return
	}
	if err := op(r.Context(), o.ActivationID); err != nil {
		switch {
		case errors.Is(err, ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			// апстрим не принял переход — локально ничего не изменилось
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.mgr.History(r.Context())
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.ClearHistory(r.Context()); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// StreamEvents отдаёт переходы заказа как server-sent events.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := h.mgr.Events().Subscribe()
	defer h.mgr.Events().Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
