package server

import "net/http"

func (s *Server) addRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders/lock", s.handleCreateLocks)
	mux.HandleFunc("GET /orders/lock/{id}", s.handleGetLock)
	mux.HandleFunc("POST /orders/confirm", s.handleConfirmOrder)
	mux.HandleFunc("GET /orders", s.handleListOrders)
	mux.HandleFunc("GET /orders/{id}", s.handleGetOrder)
	mux.HandleFunc("DELETE /orders/{id}", s.handleCancelOrder)

	mux.HandleFunc("POST /admin/market-event", s.handleActivateEvent)
	mux.HandleFunc("DELETE /admin/market-event", s.handleDeactivateEvent)
	mux.HandleFunc("GET /admin/market-event", s.handleGetEvent)

	mux.HandleFunc("GET /market/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /market/stream", s.handleStream)
	mux.HandleFunc("GET /market/history/{itemId}", s.handleHistory)

	mux.HandleFunc("GET /health", s.handleHealth)
}
