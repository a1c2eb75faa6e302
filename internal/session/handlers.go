package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/welovename555/smsdesk/internal/order"
	"github.com/welovename555/smsdesk/internal/provider"
)

type Handler struct {
	svc *Service
	mgr *order.Manager
}

func NewHandler(svc *Service, mgr *order.Manager) *Handler {
	return &Handler{svc: svc, mgr: mgr}
}

type connectReq struct {
	APIKey string `json:"apiKey"`
}

type connectResp struct {
	Balance float64 `json:"balance"`
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.APIKey == "" {
		http.Error(w, "apiKey is required", http.StatusBadRequest)
		return
	}

	token, balance, err := h.svc.Connect(r.Context(), req.APIKey)
	if err != nil {
		if errors.Is(err, provider.ErrBadKey) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(connectResp{Balance: balance})
}

// Disconnect гасит и сессию, и активный заказ вместе с его таймерами.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.mgr.Disconnect()
	h.svc.Disconnect()
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.svc.Balance(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(connectResp{Balance: balance})
}

func (h *Handler) Countries(w http.ResponseWriter, r *http.Request) {
	countries, err := h.svc.Countries(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(countries)
}

func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")
	if country == "" {
		http.Error(w, "country is required", http.StatusBadRequest)
		return
	}
	services, err := h.svc.Services(r.Context(), country)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(services)
}

func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	country := r.URL.Query().Get("country")
	if service == "" || country == "" {
		http.Error(w, "service and country are required", http.StatusBadRequest)
		return
	}
	price, err := h.svc.Price(r.Context(), service, country)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(price)
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotConnected):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, provider.ErrBadKey):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}
