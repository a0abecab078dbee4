package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"shopgate/internal/checkout"
	"shopgate/internal/realtime"
)

// Server exposes the checkout saga, the gateway callbacks, the order CRUD
// collaborator surface, and the settlement WebSocket feed.
type Server struct {
	checkout   *checkout.CheckoutService
	settlement *checkout.SettlementService
	orders     checkout.OrderStore
	hub        *realtime.Hub
	logf       func(format string, args ...any)
	upgrader   websocket.Upgrader
}

// NewServer constructs a Server. hub and logf may be nil.
func NewServer(checkoutSvc *checkout.CheckoutService, settlementSvc *checkout.SettlementService, orders checkout.OrderStore, hub *realtime.Hub, logf func(format string, args ...any)) *Server {
	if logf == nil {
		logf = log.Printf
	}
	return &Server{
		checkout:   checkoutSvc,
		settlement: settlementSvc,
		orders:     orders,
		hub:        hub,
		logf:       logf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/checkout", s.handleCheckout)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/processed", s.handleProcessedCallback)
			r.Get("/response", s.handleResponseCallback)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", s.handleListOrders)
			r.Get("/{orderID}", s.handleGetOrder)
			r.Patch("/{orderID}", s.handleUpdateOrder)
			r.Delete("/{orderID}", s.handleDeleteOrder)
		})

		r.Route("/users/{userID}/orders", func(r chi.Router) {
			r.Get("/", s.handleListUserOrders)
			r.Get("/{orderID}", s.handleGetUserOrder)
		})
	})

	if s.hub != nil {
		r.Get("/ws/orders", s.handleOrderFeed)
	}

	return r
}

func (s *Server) handleOrderFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("websocket upgrade failed: %v", err)
		return
	}

	s.hub.Register(conn)
	defer s.hub.Unregister(conn)

	// Clients only listen; the read loop exists to notice disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
