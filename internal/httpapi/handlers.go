package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"shopgate/internal/checkout"
	"shopgate/internal/gateway"
)

type envelope struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type cartLineRequest struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type checkoutRequest struct {
	UserID          string            `json:"user_id"`
	OrderItems      []cartLineRequest `json:"order_items"`
	ShippingAddress string            `json:"shipping_address1"`
	City            string            `json:"city"`
	Zip             string            `json:"zip"`
	Country         string            `json:"country"`
	Phone           string            `json:"phone"`
}

type processedCallbackRequest struct {
	TransactionID string `json:"transaction_id"`
	Success       bool   `json:"success"`
}

type updateOrderRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.writeError(w, r, &checkout.ValidationError{Field: "body", Err: errors.New("invalid request body")})
		return
	}

	lines := make([]checkout.CartLine, 0, len(req.OrderItems))
	for _, item := range req.OrderItems {
		lines = append(lines, checkout.CartLine{ProductID: item.Product, Quantity: item.Quantity})
	}

	result, err := s.checkout.Checkout(r.Context(), checkout.CheckoutRequest{
		CustomerID: req.UserID,
		Lines:      lines,
		Shipping: checkout.ShippingDetails{
			Address: req.ShippingAddress,
			City:    req.City,
			Zip:     req.Zip,
			Country: req.Country,
			Phone:   req.Phone,
		},
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeSuccess(w, r, http.StatusOK, "Payment key returned successfully", map[string]any{
		"payment_key":    result.PaymentKey,
		"frame_id":       result.FrameID,
		"correlation_id": result.CorrelationID,
	})
}

func (s *Server) handleProcessedCallback(w http.ResponseWriter, r *http.Request) {
	var req processedCallbackRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.writeError(w, r, &checkout.ValidationError{Field: "body", Err: errors.New("invalid request body")})
		return
	}
	if req.TransactionID == "" {
		s.writeError(w, r, &checkout.ValidationError{Field: "transaction_id", Err: errors.New("required")})
		return
	}

	result, err := s.settlement.HandleProcessed(r.Context(), req.TransactionID, req.Success)
	if err != nil {
		// Not acknowledged; the gateway redelivers and the pending entry has
		// been restored for the retry.
		s.writeError(w, r, err)
		return
	}

	switch result.Outcome {
	case checkout.OutcomeSettled:
		s.writeSuccess(w, r, http.StatusCreated, "Order created successfully", result.Order)
	default:
		s.writeSuccess(w, r, http.StatusOK, "Callback acknowledged", map[string]any{
			"outcome": result.Outcome,
		})
	}
}

func (s *Server) handleResponseCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := s.settlement.RedirectTarget(r.Context(), checkout.RedirectQuery{
		CorrelationID: q.Get("transaction_id"),
		Success:       q.Get("success") == "true",
		Message:       q.Get("message"),
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 0)

	orders, total, err := s.orders.ListOrders(r.Context(), page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeSuccess(w, r, http.StatusOK, "Orders fetched successfully", map[string]any{
		"total_orders": total,
		"orders":       orders,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if !validID(orderID) {
		s.writeError(w, r, &checkout.ValidationError{Field: "order", Err: checkout.ErrInvalidIdentifier})
		return
	}

	order, err := s.orders.FindOrder(r.Context(), orderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, r, http.StatusOK, "Order fetched successfully", order)
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if !validID(orderID) {
		s.writeError(w, r, &checkout.ValidationError{Field: "order", Err: checkout.ErrInvalidIdentifier})
		return
	}

	var req updateOrderRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.writeError(w, r, &checkout.ValidationError{Field: "body", Err: errors.New("invalid request body")})
		return
	}
	if req.Status == "" {
		s.writeError(w, r, &checkout.ValidationError{Field: "status", Err: errors.New("required")})
		return
	}

	order, err := s.orders.UpdateOrderStatus(r.Context(), orderID, checkout.OrderStatus(req.Status))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, r, http.StatusOK, "Order updated successfully", order)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if !validID(orderID) {
		s.writeError(w, r, &checkout.ValidationError{Field: "order", Err: checkout.ErrInvalidIdentifier})
		return
	}

	if err := s.orders.DeleteOrder(r.Context(), orderID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, r, http.StatusOK, "Order deleted successfully", nil)
}

func (s *Server) handleListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !validID(userID) {
		s.writeError(w, r, &checkout.ValidationError{Field: "user", Err: checkout.ErrInvalidIdentifier})
		return
	}

	orders, err := s.orders.ListOrdersForUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, r, http.StatusOK, "Orders fetched successfully", orders)
}

func (s *Server) handleGetUserOrder(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	orderID := chi.URLParam(r, "orderID")
	if !validID(userID) {
		s.writeError(w, r, &checkout.ValidationError{Field: "user", Err: checkout.ErrInvalidIdentifier})
		return
	}
	if !validID(orderID) {
		s.writeError(w, r, &checkout.ValidationError{Field: "order", Err: checkout.ErrInvalidIdentifier})
		return
	}

	order, err := s.orders.FindOrderForUser(r.Context(), userID, orderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, r, http.StatusOK, "Order fetched successfully", order)
}

func (s *Server) writeSuccess(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	render.Status(r, status)
	render.JSON(w, r, envelope{Status: "success", Message: message, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *checkout.ValidationError

	switch {
	case errors.As(err, &ve):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, envelope{
			Status:  "error",
			Message: "Validation failed",
			Errors:  map[string]string{ve.Field: ve.Err.Error()},
		})
	case errors.Is(err, checkout.ErrProductNotFound),
		errors.Is(err, checkout.ErrUserNotFound),
		errors.Is(err, checkout.ErrOrderNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, envelope{Status: "error", Message: err.Error()})
	case gateway.IsGatewayError(err):
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, envelope{Status: "error", Message: err.Error()})
	default:
		s.logf("internal error: %v", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, envelope{Status: "error", Message: "Internal server error"})
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return fallback
	}
	return val
}

func validID(id string) bool {
	return checkout.ValidID(id)
}
