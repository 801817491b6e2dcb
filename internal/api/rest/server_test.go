package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/KevinKickass/OpenInverterCore/internal/api/websocket"
	"github.com/KevinKickass/OpenInverterCore/internal/auth"
	"github.com/KevinKickass/OpenInverterCore/internal/catalog"
	"github.com/KevinKickass/OpenInverterCore/internal/config"
	"github.com/KevinKickass/OpenInverterCore/internal/interfaces"
	"github.com/KevinKickass/OpenInverterCore/internal/inverter"
	"github.com/KevinKickass/OpenInverterCore/internal/metrics"
	"github.com/KevinKickass/OpenInverterCore/internal/modbus/modbustest"
	"github.com/KevinKickass/OpenInverterCore/internal/storage"
	"github.com/KevinKickass/OpenInverterCore/internal/types"
)

type memoryStore struct {
	mu     sync.Mutex
	audits []storage.WriteAudit
}

func (m *memoryStore) SaveReadings(context.Context, []storage.Reading) error { return nil }

func (m *memoryStore) SaveWriteAudit(_ context.Context, a storage.WriteAudit) error {
	m.mu.Lock()
	m.audits = append(m.audits, a)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) ReadingHistory(_ context.Context, _, sensorID string, _ time.Time, _ int) ([]storage.Reading, error) {
	v := 80.0
	return []storage.Reading{{SensorID: sensorID, Value: &v}}, nil
}

func (m *memoryStore) ListWriteAudits(context.Context, string, int) ([]storage.WriteAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.WriteAudit(nil), m.audits...), nil
}

type fakeLifecycle struct {
	cfg     *config.Config
	inv     *inverter.Inverter
	store   storage.Store
	metrics *metrics.Metrics
}

func (f *fakeLifecycle) Config() *config.Config         { return f.cfg }
func (f *fakeLifecycle) Inverter() *inverter.Inverter   { return f.inv }
func (f *fakeLifecycle) Store() storage.Store           { return f.store }
func (f *fakeLifecycle) Metrics() *metrics.Metrics      { return f.metrics }
func (f *fakeLifecycle) Shutdown(context.Context) error { return nil }

func (f *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{
		State:       "RUNNING",
		InverterID:  f.inv.ID(),
		Serial:      f.inv.Serial(),
		Connected:   f.inv.Connected(),
		SensorCount: f.inv.Registry().Len(),
		Stats:       f.inv.Stats(),
	}
}

type testServer struct {
	server *Server
	lm     *fakeLifecycle
	bank   *modbustest.Memory
	store  *memoryStore
	auth   *auth.AuthService
	apiKey string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	r, err := catalog.New()
	require.NoError(t, err)
	bank := modbustest.NewMemory(modbustest.SunsynkRegisters())
	inv := inverter.New(inverter.Config{ID: "_"}, r, bank, logger)
	require.NoError(t, inv.Connect(context.Background()))
	require.NoError(t, inv.Startup(context.Background(), r.All()))

	apiKey, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	hash, err := auth.NewKeyHasher().Hash(apiKey)
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{HTTPPort: 0},
		Auth:   config.AuthConfig{JWTSecretEnv: "REST_TEST_JWT_SECRET", AccessTokenTTL: time.Minute, APIKeyHash: hash},
	}
	store := &memoryStore{}
	lm := &fakeLifecycle{cfg: cfg, inv: inv, store: store, metrics: metrics.New(inv)}
	authService := auth.NewAuthService(cfg.Auth, logger)

	return &testServer{
		server: NewServer(cfg, lm, logger, websocket.NewHub(logger), authService),
		lm:     lm,
		bank:   bank,
		store:  store,
		auth:   authService,
		apiKey: apiKey,
	}
}

func (ts *testServer) writeToken(t *testing.T) string {
	t.Helper()
	token, _, err := ts.auth.JWT().GenerateAccessToken("tester", auth.ScopeRead, auth.ScopeWrite)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Details any    `json:"details"`
	} `json:"error"`
}

func TestMain(m *testing.M) {
	os.Setenv("REST_TEST_JWT_SECRET", "rest-test-secret-rest-test-secret-123")
	os.Exit(m.Run())
}

func TestListAndGetSensors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/sensors", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[struct {
		Count int `json:"count"`
	}](t, w)
	assert.Equal(t, ts.lm.inv.Registry().Len(), all.Count)

	w = ts.do(t, http.MethodGet, "/api/v1/sensors?model="+catalog.ModelDeye12k, "", nil)
	deye := decode[struct {
		Count int `json:"count"`
	}](t, w)
	assert.Less(t, deye.Count, all.Count)

	w = ts.do(t, http.MethodGet, "/api/v1/sensors/"+catalog.BatteryLowCapacity, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[map[string]any](t, w)
	assert.Equal(t, "number", info["kind"])
	assert.Equal(t, true, info["writable"])
	assert.Equal(t, 10.0, info["min"])
	assert.Equal(t, 50.0, info["max"])
	assert.Equal(t, 30.0, info["value"])
	assert.ElementsMatch(t, []any{catalog.BatteryShutdownCapacity, catalog.BatteryRestartCapacity}, info["depends_on"])

	w = ts.do(t, http.MethodGet, "/api/v1/sensors/prog2_time", "", nil)
	info = decode[map[string]any](t, w)
	assert.Equal(t, "04:00", info["value"])
	assert.Equal(t, "00:00", info["min"])

	w = ts.do(t, http.MethodGet, "/api/v1/sensors/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, types.CodeSensorNotFound, decode[errorBody](t, w).Error.Code)
}

func TestReadSensor(t *testing.T) {
	ts := newTestServer(t)
	ts.bank.Set(588, 64)

	w := ts.do(t, http.MethodPost, "/api/v1/sensors/battery_soc/read", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[map[string]any](t, w)
	assert.Equal(t, 64.0, info["value"])
	assert.Equal(t, "64", info["formatted"])

	ts.bank.SetFail(true)
	w = ts.do(t, http.MethodPost, "/api/v1/sensors/battery_soc/read", "", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, types.CodeInverterUnreachable, decode[errorBody](t, w).Error.Code)
}

func TestWriteSensor(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/sensors/" + catalog.BatteryLowCapacity + "/write"

	w := ts.do(t, http.MethodPost, path, "", jsonMap{"value": 35})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := ts.writeToken(t)
	w = ts.do(t, http.MethodPost, path, token, jsonMap{"value": 35})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "35", decode[map[string]any](t, w)["formatted"])
	assert.Equal(t, uint16(35), ts.bank.Get(219))

	w = ts.do(t, http.MethodPost, path, token, jsonMap{"value": 5})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, types.CodeSensorRejected, body.Error.Code)
	details, ok := body.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "min", details["side"])
	assert.Equal(t, 10.0, details["limit"])

	w = ts.do(t, http.MethodPost, path, token, jsonMap{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/sensors/battery_soc/write", token, jsonMap{"value": 5})
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/sensors/prog1_mode/write", token, jsonMap{"value": "Charge"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, uint16(0x12), ts.bank.Get(274))

	ts.bank.SetFail(true)
	w = ts.do(t, http.MethodPost, path, token, jsonMap{"value": 40})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	audits := ts.store.audits
	require.Len(t, audits, 5)
	assert.True(t, audits[0].Success)
	assert.Equal(t, "tester", audits[0].Subject)
	assert.Equal(t, "30", audits[0].OldValue)
	assert.Equal(t, "35", audits[0].NewValue)
	assert.False(t, audits[1].Success)
	assert.False(t, audits[4].Success)
}

func TestTokenEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/auth/token", "", jsonMap{"api_key": ts.apiKey})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string]any](t, w)
	assert.Equal(t, "Bearer", resp["token_type"])

	token := resp["access_token"].(string)
	w = ts.do(t, http.MethodPost, "/api/v1/sensors/load_limit/write", token, jsonMap{"value": "Zero Export"})
	assert.Equal(t, http.StatusOK, w.Code)

	other, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	w = ts.do(t, http.MethodPost, "/api/v1/auth/token", "", jsonMap{"api_key": other})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSystemEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/system/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[interfaces.SystemStatus](t, w)
	assert.Equal(t, "2103045678", status.Serial)
	assert.True(t, status.Connected)
	assert.Equal(t, uint64(1), status.Stats.Reads)

	w = ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "inverter_modbus_reads_total")

	w = ts.do(t, http.MethodGet, "/api/v1/sensors/battery_soc/history?since=2h", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode[map[string]any](t, w)["count"])

	w = ts.do(t, http.MethodGet, "/api/v1/audit/writes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = ts.do(t, http.MethodGet, "/api/v1/audit/writes", ts.writeToken(t), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodOptions, "/api/v1/sensors", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

type jsonMap = map[string]any
