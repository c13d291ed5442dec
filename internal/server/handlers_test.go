package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evituu/bar-market/internal/config"
	"github.com/evituu/bar-market/internal/feed"
	"github.com/evituu/bar-market/internal/market"
	"github.com/evituu/bar-market/internal/model"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store := market.NewStore()
	for _, item := range market.DefaultCatalog() {
		require.NoError(t, store.AddItem(item))
	}

	cfg := config.MarketConfig{
		TickSeconds: 3, ChaoticTickSeconds: 3, LockTTLSeconds: 15,
		Decay: 0.95, SensitivityK: 0.02,
	}

	events := market.NewEventController(nil, logger)
	engine := market.NewEngine(store, events, cfg, nil, nil, nil, logger)
	reservations := market.NewReservationManager(store, 15*time.Second, nil, logger)
	settler := market.NewSettler(store, engine, nil, logger)
	hub := feed.NewHub(logger)

	srv := New(store, reservations, settler, engine, events, nil, hub, logger)
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestLockThenConfirmFlow(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/orders/lock", map[string]any{
		"sessionId": "sess-1",
		"tableRef":  "table-7",
		"items":     []map[string]any{{"itemId": "item-lagr", "qty": 2}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	set := decode[market.LockSet](t, rec)
	require.NotEmpty(t, set.OrderID)
	require.Len(t, set.Locks, 1)
	assert.Equal(t, 15, set.TTLSeconds)
	assert.Equal(t, int64(3600), set.TotalCents)

	rec = doJSON(t, h, http.MethodGet, "/orders/lock/"+set.Locks[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lock := decode[lockStatusResponse](t, rec)
	assert.Equal(t, model.ReservationActive, lock.Status)
	assert.Equal(t, int64(3600), lock.LineTotalCents)
	assert.Positive(t, lock.RemainingSeconds)

	rec = doJSON(t, h, http.MethodPost, "/orders/confirm", confirmRequest{
		OrderID: set.OrderID, SessionID: "sess-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	confirmed := decode[confirmResponse](t, rec)
	assert.True(t, confirmed.Success)
	assert.Equal(t, int64(3600), confirmed.TotalCents)

	rec = doJSON(t, h, http.MethodGet, "/orders/"+set.OrderID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	order := decode[model.Order](t, rec)
	assert.Equal(t, model.OrderConfirmed, order.Status)
}

func TestConfirmTwiceConflicts(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/orders/lock", map[string]any{
		"sessionId": "sess-1",
		"items":     []map[string]any{{"itemId": "item-lagr", "qty": 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	set := decode[market.LockSet](t, rec)

	req := confirmRequest{OrderID: set.OrderID, SessionID: "sess-1"}
	rec = doJSON(t, h, http.MethodPost, "/orders/confirm", req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/orders/confirm", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "ORDER_ALREADY_SETTLED", body.Code)
}

func TestLockValidation(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{
			"missing session",
			map[string]any{"items": []map[string]any{{"itemId": "item-lagr", "qty": 1}}},
			http.StatusBadRequest, "MISSING_SESSION",
		},
		{
			"no items",
			map[string]any{"sessionId": "sess-1", "items": []map[string]any{}},
			http.StatusBadRequest, "NO_ITEMS",
		},
		{
			"unknown item",
			map[string]any{"sessionId": "sess-1", "items": []map[string]any{{"itemId": "item-ghost", "qty": 1}}},
			http.StatusNotFound, "ITEM_NOT_FOUND",
		},
		{
			"zero qty",
			map[string]any{"sessionId": "sess-1", "items": []map[string]any{{"itemId": "item-lagr", "qty": 0}}},
			http.StatusBadRequest, "INVALID_QUANTITY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/orders/lock", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decode[errorBody](t, rec).Code)
		})
	}
}

func TestConfirmWrongSessionForbidden(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/orders/lock", map[string]any{
		"sessionId": "sess-1",
		"items":     []map[string]any{{"itemId": "item-lagr", "qty": 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	set := decode[market.LockSet](t, rec)

	rec = doJSON(t, h, http.MethodPost, "/orders/confirm", confirmRequest{
		OrderID: set.OrderID, SessionID: "sess-2",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "SESSION_MISMATCH", decode[errorBody](t, rec).Code)
}

func TestConfirmUnknownOrder(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/orders/confirm", confirmRequest{
		OrderID: "order-ghost", SessionID: "sess-1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ORDER_NOT_FOUND", decode[errorBody](t, rec).Code)
}

func TestGetUnknownLock(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/orders/lock/lock-ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "LOCK_NOT_FOUND", decode[errorBody](t, rec).Code)
}

func TestCancelOrder(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/orders/lock", map[string]any{
		"sessionId": "sess-1",
		"items":     []map[string]any{{"itemId": "item-lagr", "qty": 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	set := decode[market.LockSet](t, rec)

	rec = doJSON(t, h, http.MethodDelete, "/orders/"+set.OrderID+"?sessionId=sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/orders/confirm", confirmRequest{
		OrderID: set.OrderID, SessionID: "sess-1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMarketEventLifecycle(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/admin/market-event", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[map[string]*model.EventKind](t, rec)
	assert.Nil(t, state["activeKind"])

	rec = doJSON(t, h, http.MethodPost, "/admin/market-event", activateEventRequest{
		Kind: "crash", DurationMinutes: 10,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/admin/market-event", nil)
	state = decode[map[string]*model.EventKind](t, rec)
	require.NotNil(t, state["activeKind"])
	assert.Equal(t, model.EventCrash, *state["activeKind"])

	// A second activation replaces the first.
	rec = doJSON(t, h, http.MethodPost, "/admin/market-event", activateEventRequest{
		Kind: "freeze", DurationMinutes: 10,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/admin/market-event", nil)
	state = decode[map[string]*model.EventKind](t, rec)
	require.NotNil(t, state["activeKind"])
	assert.Equal(t, model.EventFreeze, *state["activeKind"])

	rec = doJSON(t, h, http.MethodDelete, "/admin/market-event", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/admin/market-event", nil)
	state = decode[map[string]*model.EventKind](t, rec)
	assert.Nil(t, state["activeKind"])
}

func TestActivateUnknownEventKind(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/admin/market-event", activateEventRequest{Kind: "moonshot"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_EVENT_KIND", decode[errorBody](t, rec).Code)
}

func TestSnapshotEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/market/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	snap := decode[model.MarketSnapshot](t, rec)
	assert.Len(t, snap.Items, len(market.DefaultCatalog()))
	for _, item := range snap.Items {
		assert.Positive(t, item.CurrentPriceCents)
	}
}

func TestListOrdersFilterByStatus(t *testing.T) {
	h := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, h, http.MethodPost, "/orders/lock", map[string]any{
			"sessionId": fmt.Sprintf("sess-%d", i),
			"items":     []map[string]any{{"itemId": "item-lagr", "qty": 1}},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		if i == 0 {
			set := decode[market.LockSet](t, rec)
			confirm := doJSON(t, h, http.MethodPost, "/orders/confirm", confirmRequest{
				OrderID: set.OrderID, SessionID: "sess-0",
			})
			require.Equal(t, http.StatusOK, confirm.Code)
		}
	}

	rec := doJSON(t, h, http.MethodGet, "/orders?status=confirmed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Order](t, rec), 1)

	rec = doJSON(t, h, http.MethodGet, "/orders?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Order](t, rec), 2)

	rec = doJSON(t, h, http.MethodGet, "/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Order](t, rec), 3)
}

func TestHistoryUnavailableWithoutCache(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/market/history/item-lagr", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "HISTORY_UNAVAILABLE", decode[errorBody](t, rec).Code)
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[healthResponse](t, rec).Status)
}
