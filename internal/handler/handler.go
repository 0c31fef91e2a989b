// Package handler exposes the order lifecycle over HTTP with JSON bodies.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/franchise-orders/internal/domain/auth"
	"github.com/xenking/franchise-orders/internal/domain/order"
)

// Orders is the order service surface the handlers call. *order.Service
// implements it.
type Orders interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (*order.CreateResult, error)
	GenerateOrder(ctx context.Context, req order.GenerateRequest) (*order.CreateResult, error)
	UpdateOrder(ctx context.Context, id int64, req order.UpdateRequest) (*order.UpdateResult, error)
	DeleteOrder(ctx context.Context, id int64) error
	ConfirmOrder(ctx context.Context, id int64) (*order.Transition, error)
	ChangeStatus(ctx context.Context, id int64, to order.Status) (*order.Transition, error)
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
}

// Authenticator validates the api_key header. *auth.Authenticator
// implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*auth.APIKeyInfo, error)
}

// Handler serves the /api/orders routes.
type Handler struct {
	orders Orders
	auth   Authenticator
}

// New creates a Handler.
func New(orders Orders, auth Authenticator) *Handler {
	return &Handler{orders: orders, auth: auth}
}

// Mount registers the order routes on r. Every route requires an API key;
// mw runs after authentication, so it can key on the principal.
func (h *Handler) Mount(r chi.Router, mw ...func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Use(mw...)

		r.Post("/", h.createOrder)
		r.Post("/generate", h.generateOrder)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Put("/", h.updateOrder)
			r.Delete("/", h.deleteOrder)
			r.Post("/confirm", h.confirmOrder)
			r.Patch("/status", h.changeStatus)
		})
	})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCreate(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	res, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, encodeCreated(res))
}

func (h *Handler) generateOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeGenerate(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	res, err := h.orders.GenerateOrder(r.Context(), req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, encodeCreated(res))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrder(o))
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	req, err := decodeUpdate(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	res, err := h.orders.UpdateOrder(r.Context(), id, req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeUpdated(res))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if err := h.orders.DeleteOrder(r.Context(), id); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	tr, err := h.orders.ConfirmOrder(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeTransition(tr))
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	to, err := decodeStatus(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	tr, err := h.orders.ChangeStatus(r.Context(), id, to)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeTransition(tr))
}

func orderID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, malformed("invalid order id %q", raw)
	}
	return id, nil
}
