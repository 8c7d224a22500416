package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordersaga/internal/pkg/metrics"
	"ordersaga/internal/pkg/mq"
	"ordersaga/internal/service/order/application"
	"ordersaga/internal/service/order/application/saga"
	"ordersaga/internal/service/order/domain"
	"ordersaga/internal/service/order/domain/event"
	"ordersaga/internal/service/order/infrastructure/adapter"
	"ordersaga/internal/service/order/infrastructure/memory"
)

type apiFixture struct {
	server  *httptest.Server
	store   *memory.Store
	bus     *mq.MemoryBus
	product *domain.Product
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{store: memory.NewStore(), bus: mq.NewMemoryBus()}
	f.product = &domain.Product{Name: "Keyboard", Price: decimal.NewFromInt(15000), Stock: 10, IsActive: true}
	require.NoError(t, f.store.Products().Create(context.Background(), f.product))

	reg := prometheus.NewRegistry()
	m := metrics.NewSaga(reg)
	now := func() time.Time { return time.Date(2025, 9, 16, 9, 30, 0, 0, time.UTC) }
	pub := saga.NewPublisher(f.bus, event.DefaultTopics(), f.store.Events(), now, m)
	svc := application.NewOrderApplicationService(f.store, pub, adapter.NewMockPaymentGateway(nil), application.WithClock(now))

	mux := http.NewServeMux()
	NewOrderHandler(svc, reg).RegisterRoutes(mux)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func (f *apiFixture) orderBody(quantity int) string {
	return fmt.Sprintf(`{"customer":{"id":3,"name":"Lee","email":"lee@example.com"},"items":[{"product_id":%d,"quantity":%d}]}`, f.product.ID, quantity)
}

func TestPlaceAndGetOrder(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodPost, "/orders", f.orderBody(2))
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "33000", body["total"])
	id := uint64(body["id"].(float64))
	assert.Len(t, f.bus.Messages(string(event.TypeOrderCreated)), 1)

	status, body = f.do(t, http.MethodGet, fmt.Sprintf("/orders/%d", id), "")
	require.Equal(t, http.StatusOK, status)
	order := body["order"].(map[string]any)
	assert.Equal(t, float64(id), order["id"])
	events := body["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, string(event.TypeOrderCreated), events[0].(map[string]any)["event_type"])
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodPost, "/orders", `{"customer":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "invalid request body")

	status, _ = f.do(t, http.MethodPost, "/orders", `{"unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = f.do(t, http.MethodPost, "/orders", f.orderBody(0))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "must be positive")
}

func TestPlaceOrderAcceptedWhenBrokerDown(t *testing.T) {
	f := newAPIFixture(t)
	f.bus.FailPublishes(errors.New("broker down"))

	status, body := f.do(t, http.MethodPost, "/orders", f.orderBody(1))
	require.Equal(t, http.StatusAccepted, status)
	assert.Contains(t, body["warning"], "broker down")
	assert.NotNil(t, body["order"])
}

func TestOrderErrorsMapToStatus(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(t, http.MethodGet, "/orders/abc", "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = f.do(t, http.MethodGet, "/orders/404", "")
	assert.Equal(t, http.StatusNotFound, status)

	_, body := f.do(t, http.MethodPost, "/orders", f.orderBody(1))
	id := uint64(body["id"].(float64))

	status, _ = f.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/refund", id), "")
	assert.Equal(t, http.StatusConflict, status)

	status, body = f.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/restore-inventory", id), "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = f.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/cancel", id), "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cancelled", body["status"])

	status, _ = f.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/cancel", id), "")
	assert.Equal(t, http.StatusConflict, status)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)
	f.bus.FailPublishes(errors.New("broker down"))
	f.do(t, http.MethodPost, "/orders", f.orderBody(1))

	status, _ := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)

	resp, err := f.server.Client().Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `topic="order.created"`)
}
