package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/evituu/bar-market/internal/cache"
	"github.com/evituu/bar-market/internal/feed"
	"github.com/evituu/bar-market/internal/market"
	"github.com/evituu/bar-market/internal/model"
)

// Server wires the pricing and settlement core to HTTP.
type Server struct {
	store        *market.Store
	reservations *market.ReservationManager
	settler      *market.Settler
	engine       *market.Engine
	events       *market.EventController
	history      *cache.PriceHistory
	hub          *feed.Hub
	logger       *slog.Logger
}

func New(
	store *market.Store,
	reservations *market.ReservationManager,
	settler *market.Settler,
	engine *market.Engine,
	events *market.EventController,
	history *cache.PriceHistory,
	hub *feed.Hub,
	logger *slog.Logger,
) *Server {
	return &Server{
		store:        store,
		reservations: reservations,
		settler:      settler,
		engine:       engine,
		events:       events,
		history:      history,
		hub:          hub,
		logger:       logger,
	}
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.addRoutes(mux)
	return mux
}

func (s *Server) handleCreateLocks(w http.ResponseWriter, r *http.Request) {
	var intent market.OrderIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if intent.SessionID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SESSION", "sessionId is required")
		return
	}
	if len(intent.Items) == 0 {
		writeError(w, http.StatusBadRequest, "NO_ITEMS", "items must not be empty")
		return
	}

	set, err := s.reservations.CreateReservations(r.Context(), intent)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, set)
}

type lockStatusResponse struct {
	model.Reservation
	LineTotalCents   int64 `json:"lineTotalCents"`
	RemainingSeconds int64 `json:"remainingSeconds"`
}

func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	res, err := s.reservations.GetReservation(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	remaining := int64(time.Until(res.ExpiresAt).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(w, http.StatusOK, lockStatusResponse{
		Reservation:      res,
		LineTotalCents:   res.LineTotalCents(),
		RemainingSeconds: remaining,
	})
}

type confirmRequest struct {
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
}

type confirmResponse struct {
	Success bool `json:"success"`
	*market.SettlementResult
}

func (s *Server) handleConfirmOrder(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ORDER", "orderId is required")
		return
	}

	result, err := s.settler.Settle(r.Context(), req.OrderID, req.SessionID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Success: true, SettlementResult: result})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := s.store.Order(r.PathValue("id"))
	if !ok {
		writeDomainError(w, s.logger, market.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	status := model.OrderStatus(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, s.store.Orders(status))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if err := s.reservations.CancelOrder(r.Context(), r.PathValue("id"), sessionID); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type activateEventRequest struct {
	Kind            string `json:"kind"`
	DurationMinutes int    `json:"durationMinutes"`
}

func (s *Server) handleActivateEvent(w http.ResponseWriter, r *http.Request) {
	var req activateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	kind, err := market.ParseEventKind(req.Kind)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	event, err := s.events.Activate(r.Context(), kind, req.DurationMinutes)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "eventId": event.ID})
}

func (s *Server) handleDeactivateEvent(w http.ResponseWriter, r *http.Request) {
	s.events.Deactivate(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]*model.EventKind{"activeKind": s.events.ActiveKind()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "price history cache is not configured")
		return
	}

	itemID := r.PathValue("itemId")
	if _, ok := s.store.Item(itemID); !ok {
		writeDomainError(w, s.logger, market.ErrItemNotFound)
		return
	}

	period := 5 * time.Minute
	if raw := r.URL.Query().Get("period"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_PERIOD", "period must be a duration like 90s or 5m")
			return
		}
		period = parsed
	}

	points, err := s.history.PointsByPeriod(r.Context(), itemID, period)
	if err != nil {
		s.logger.Error("failed to read price history", "itemId", itemID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"itemId": itemID, "points": points})
}

type healthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.history != nil {
		resp.Redis = s.history.Ping(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}
