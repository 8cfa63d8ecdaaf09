package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"tradectl/internal/handler/status"
	"tradectl/internal/metrics"
	"tradectl/internal/middleware"
	"tradectl/internal/router"
	"tradectl/internal/store"
	"tradectl/internal/trader"
	"tradectl/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct{}

func (fakeSession) Status() trader.Status {
	return trader.Status{Symbol: "BTC-USDT-SWAP", Timeframe: "5m", Strategy: "IFRStrategy", Candles: 42}
}

func newTestServer(t *testing.T, session status.StatusProvider) (*Server, *store.FileStore) {
	t.Helper()
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "optimized_params.json"))
	h := status.NewHandler(session, fs)
	return NewServer(":0", gin.TestMode, middleware.NewMiddleware(), router.NewApiRouter(h)), fs
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := get(t, s, "/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Success")
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t, fakeSession{})
	w := get(t, s, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		RequestId string        `json:"request_id"`
		Code      int           `json:"code"`
		Data      trader.Status `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, response.CodeSuccess, body.Code)
	assert.Equal(t, 42, body.Data.Candles)
	assert.NotEmpty(t, body.RequestId)

	idle, _ := newTestServer(t, nil)
	w = get(t, idle, "/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"trading":false`)
}

func TestParams(t *testing.T) {
	s, fs := newTestServer(t, nil)
	w := get(t, s, "/params")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":1003`)

	require.NoError(t, fs.Save(context.Background(), &store.ParameterSet{
		StrategyName:       "IFRStrategy",
		StrategyParams:     map[string]float64{"rsi_period": 14},
		TrailingStopParams: map[string]float64{"atr_multiplier": 2},
		Symbol:             "BTC-USDT-SWAP",
		Timeframe:          "5m",
	}))
	w = get(t, s, "/params")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"strategy_name":"IFRStrategy"`)
}

func TestMetrics(t *testing.T) {
	metrics.OrderRejections.Inc()
	s, _ := newTestServer(t, nil)
	w := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tradectl_order_rejections_total")
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.listen = "127.0.0.1:0"
	s.maxPingCount = 1
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not stop")
	}
}
