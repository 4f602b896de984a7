package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/brianphil/ecommerce-app/internal/cart"
	"github.com/brianphil/ecommerce-app/internal/checkout"
	"github.com/brianphil/ecommerce-app/internal/inventory"
	"github.com/brianphil/ecommerce-app/internal/orders"
	"github.com/brianphil/ecommerce-app/internal/redisx"
)

type cartStore interface {
	SetItem(ctx context.Context, customerID, productID string, qty int) error
	Lines(ctx context.Context, customerID string) ([]cart.Line, error)
	Clear(ctx context.Context, customerID string) error
}

type productLister interface {
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type OrdersHandler struct {
	Carts    cartStore
	Builder  *cart.Builder
	Checkout *checkout.Orchestrator
	Machine  *orders.Machine
	Products productLister
	Redis    *redis.Client // optional fast paths; nil disables them
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.doCheckout)
	r.Put("/cart/{customerID}/items", h.putCartItem)
	r.Get("/cart/{customerID}", h.getCart)
	r.Delete("/cart/{customerID}", h.clearCart)
	r.Post("/orders/{id}/transition", h.transition)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/products", h.listProducts)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var ise *inventory.InsufficientStockError
	if errors.As(err, &ise) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient stock",
			"product_id": ise.ProductID,
			"requested":  ise.Requested,
			"available":  ise.Available,
		})
		return
	}
	var ite *orders.InvalidTransitionError
	if errors.As(err, &ite) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "invalid transition",
			"from":  ite.From,
			"to":    ite.To,
		})
		return
	}
	switch {
	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidArgument),
		errors.Is(err, inventory.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, inventory.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, checkout.ErrTimeout):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
	case errors.Is(err, inventory.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

type checkoutReq struct {
	CustomerID string         `json:"customer_id"`
	ExternalID string         `json:"external_id"`
	Contact    orders.Contact `json:"contact"`
}

func (h *OrdersHandler) doCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.CustomerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing customer_id"})
		return
	}
	ctx := r.Context()

	// Idempotency fast path: a repeated external id returns the prior order.
	if req.ExternalID != "" && h.Redis != nil {
		idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, req.ExternalID)
		if orderID, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && orderID != "" {
			if o, err := h.Machine.Get(ctx, orderID); err == nil {
				writeJSON(w, http.StatusOK, o)
				return
			}
		}
	}

	snap, err := h.Builder.Snapshot(ctx, req.CustomerID, req.Contact)
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := h.Checkout.Checkout(ctx, snap)
	if err != nil {
		writeError(w, err)
		return
	}

	_ = h.Carts.Clear(ctx, req.CustomerID)
	if h.Redis != nil {
		if req.ExternalID != "" {
			idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, req.ExternalID)
			_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
		}
		h.cacheOrder(ctx, o)
	}
	writeJSON(w, http.StatusCreated, o)
}

type cartItemReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

func (h *OrdersHandler) putCartItem(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	var req cartItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing product_id"})
		return
	}
	if err := h.Carts.SetItem(r.Context(), customerID, req.ProductID, req.Qty); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) getCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Carts.Lines(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": lines})
}

func (h *OrdersHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Carts.Clear(r.Context(), chi.URLParam(r, "customerID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionReq struct {
	Status         orders.Status `json:"status"`
	Actor          orders.Actor  `json:"actor"`
	Note           string        `json:"note"`
	TrackingNumber string        `json:"tracking_number"`
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req transitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Actor == "" {
		req.Actor = orders.ActorAdmin
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Machine.Transition(ctx, orderID, orders.TransitionRequest{
		To:             req.Status,
		Actor:          req.Actor,
		Note:           req.Note,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Redis != nil {
		h.cacheOrder(ctx, o)
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		cacheKey := fmt.Sprintf(redisx.KeyOrderCache, orderID)
		if s, err := h.Redis.Get(ctx, cacheKey).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	o, err := h.Machine.Get(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Redis != nil {
		h.cacheOrder(ctx, o)
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing customer_id"})
		return
	}
	out, err := h.Machine.ListByCustomer(r.Context(), customerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Products.ListProducts(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) cacheOrder(ctx context.Context, o *orders.Order) {
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderCache, o.ID)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLOrderCache).Err()
}
