package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GoPolymarket/polylend/internal/middleware"
	"github.com/GoPolymarket/polylend/internal/oracle"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/repository"
	"github.com/GoPolymarket/polylend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	authority = "0x00000000000000000000000000000000000000a1"
	owner     = "0x00000000000000000000000000000000000000b2"
)

type testServer struct {
	router *gin.Engine
	book   *oracle.FeedBook
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	book := oracle.NewFeedBook()
	resolver := oracle.NewResolver(book, 2)

	registrySvc := service.NewRegistryService(store, resolver, 300*time.Second, time.Second)
	auditSvc, err := service.NewAuditService("", 100, nil)
	require.NoError(t, err)
	t.Cleanup(auditSvc.Close)
	engine := service.NewRiskEngine(resolver, 60*time.Second, time.Second)
	obligationSvc := service.NewObligationService(store, registrySvc, engine, auditSvc)

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	v1 := r.Group("/v1")
	v1.Use(middleware.CallerMiddleware(""))
	RegisterRoutes(v1, Handlers{
		Registry:   NewRegistryHandler(registrySvc),
		Obligation: NewObligationHandler(obligationSvc),
		Oracle:     NewOracleHandler(book),
		Audit:      NewAuditHandler(auditSvc),
	})
	return &testServer{router: r, book: book}
}

func (s *testServer) do(t *testing.T, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(middleware.HeaderCallerAddress, caller)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// setupScenario builds asset 1 @100, asset 2 @50, pair (1,2) risk 20 and an empty obligation.
func (s *testServer) setupScenario(t *testing.T) {
	t.Helper()
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/registry", authority, nil).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/registry/assets", authority,
		gin.H{"id": 1, "price": 100, "decimals": 0}).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/registry/assets", authority,
		gin.H{"id": 2, "price": 50, "decimals": 0}).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/registry/risk-params", authority,
		gin.H{"asset_a": 1, "asset_b": 2, "risk_level": 20}).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/obligation", owner, nil).Code)
}

func TestLedgerScenarioOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.setupScenario(t)

	w := s.do(t, http.MethodPost, "/v1/obligation/deposits", owner, gin.H{"asset_id": 1, "amount": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/v1/obligation/borrows", owner, gin.H{"asset_id": 2, "amount": 15})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, string(apperrors.ErrUnhealthy), decode(t, w)["code"])

	w = s.do(t, http.MethodGet, "/v1/obligation/snapshot", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	obligation := decode(t, w)["obligation"].(map[string]any)
	assert.Empty(t, obligation["borrows"])

	w = s.do(t, http.MethodPost, "/v1/obligation/deposits", owner, gin.H{"asset_id": 1, "amount": 90})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, "/v1/obligation/borrows", owner, gin.H{"asset_id": 2, "amount": 15})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "2.666", decode(t, w)["health_score"])

	w = s.do(t, http.MethodGet, "/v1/obligation/health", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2.666", decode(t, w)["health_score"])

	w = s.do(t, http.MethodGet, "/v1/audit", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 4)
	assert.Equal(t, "applied", entries[0]["outcome"])
	assert.Equal(t, "rejected", entries[2]["outcome"])

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/v1/obligation", owner, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/v1/obligation", owner, nil).Code)
}

func TestRegistryErrorsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.setupScenario(t)

	w := s.do(t, http.MethodPost, "/v1/registry/assets", owner, gin.H{"id": 3, "price": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(apperrors.ErrUnauthorized), decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/v1/registry/assets", authority, gin.H{"id": 1, "price": 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/v1/registry/risk-params", authority, gin.H{"asset_a": 2, "asset_b": 1, "risk_level": 5})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(apperrors.ErrRiskParamAlreadyExists), decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/v1/registry/assets", authority, gin.H{"price": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/v1/registry/assets/300/price", authority, gin.H{"price": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/v1/registry/assets/9/price", authority, gin.H{"price": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/v1/registry", authority, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/v1/registry", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshPriceAndFeedOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.setupScenario(t)

	w := s.do(t, http.MethodPost, "/v1/registry/assets", authority,
		gin.H{"id": 3, "price": 1, "decimals": 0, "oracle_feed_id": "SOL/USD"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/v1/registry/assets/3/refresh", owner, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(apperrors.ErrOracleUnavailable), decode(t, w)["code"])

	require.NoError(t, s.book.SetDecimal("SOL/USD", "23.45", time.Now()))

	w = s.do(t, http.MethodGet, "/v1/oracle/feeds/SOL/USD", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "23.45", decode(t, w)["price"])

	w = s.do(t, http.MethodPost, "/v1/registry/assets/3/refresh", owner, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2345), decode(t, w)["price"])

	require.NoError(t, s.book.SetDecimal("ETH/USD", "1800", time.Now().Add(-10*time.Minute)))
	w = s.do(t, http.MethodPost, "/v1/registry/assets", authority,
		gin.H{"id": 4, "price": 1, "oracle_feed_id": "ETH/USD"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, http.MethodPost, "/v1/registry/assets/4/refresh", owner, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(apperrors.ErrPriceTooOld), decode(t, w)["code"])
}
