package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ignitia/internal/config"
	"ignitia/internal/infrastructure/database"
	"ignitia/internal/infrastructure/gateway"
	"ignitia/internal/infrastructure/lock"
	"ignitia/internal/model"
	"ignitia/internal/service"
	"ignitia/pkg/apperr"
	"ignitia/pkg/auth"
	"ignitia/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuth = auth.Config{Secret: "handler-test-secret", Issuer: "ignitia", TTL: time.Hour}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Kind    apperr.Code     `json:"kind"`
	Data    json.RawMessage `json:"data"`
	Details map[string]any  `json:"details"`
}

type testServer struct {
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:http_" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.Seed(context.Background(), db))
	t.Cleanup(func() { _ = database.Close(db) })

	cfg := &config.Config{
		Kafka:   config.KafkaConfig{Topic: config.KafkaTopicConfig{Wallet: "w", Order: "o", Registration: "r", Payment: "p"}},
		Gateway: config.GatewayConfig{Currency: "INR"},
		Business: config.BusinessConfig{
			WelcomeBonus:          2000,
			MaxAmount:             1000000,
			OrderTimeoutMinutes:   15,
			PaymentTimeoutMinutes: 30,
			MaxRetryCount:         3,
			CheckoutTimeoutSecs:   5,
		},
	}
	gw := gateway.NewSimulator("", false, model.PaymentMethodUPI, model.PaymentMethodCard, model.PaymentMethodNetbanking)
	svc := service.NewServices(db, cfg, lock.NewLocalLocker(10*time.Millisecond, 500), gw)

	reg := prometheus.NewRegistry()
	router, err := SetupRouter(svc, RouterOptions{
		Mode:      gin.TestMode,
		Logger:    zerolog.Nop(),
		Auth:      testAuth,
		AdminRole: "admin",
		MaxAmount: cfg.Business.MaxAmount,
		Metrics:   metrics.NewHTTPMetrics(reg),
		Gatherer:  reg,
	})
	require.NoError(t, err)
	return &testServer{router: router}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := auth.MintAccessToken(testAuth, time.Now(), userID, role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignitia_http_requests_total")
}

func TestPublicCatalogAndEvents(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodGet, "/api/v1/merch/catalog", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var catalog struct {
		Items []model.MerchItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &catalog))
	assert.Len(t, catalog.Items, 3)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/events/leaderboard", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWalletRequiresToken(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodGet, "/api/v1/wallet/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperr.CodeUnauthorized, env.Kind)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/wallet/balance", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWalletEndpoints(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "alice", "")

	rec, env := s.do(t, http.MethodGet, "/api/v1/wallet/balance", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance struct {
		UserID  string `json:"user_id"`
		Balance int64  `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &balance))
	assert.Equal(t, "alice", balance.UserID)
	assert.Equal(t, int64(2000), balance.Balance)

	rec, env = s.do(t, http.MethodPost, "/api/v1/wallet/credit", tok, map[string]any{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodeValidation, env.Kind)

	for _, amount := range []int64{-5, 1000001, math.MaxInt64} {
		rec, env = s.do(t, http.MethodPost, "/api/v1/wallet/credit", tok, map[string]any{"amount": amount})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "amount %d", amount)
		assert.Equal(t, apperr.CodeValidation, env.Kind)
		assert.Equal(t, "amount", env.Details["Amount"])
	}

	rec, env = s.do(t, http.MethodPost, "/api/v1/wallet/credit", tok, map[string]any{"amount": 300})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &balance))
	assert.Equal(t, int64(2300), balance.Balance)

	rec, env = s.do(t, http.MethodGet, "/api/v1/wallet/transactions?limit=1", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txns struct {
		Transactions []model.WalletTransaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &txns))
	assert.Len(t, txns.Transactions, 1)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/wallet/transactions?limit=abc", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderCheckoutFlow(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice", "")

	rec, env := s.do(t, http.MethodPost, "/api/v1/merch/orders", alice, map[string]any{
		"items": []map[string]any{{"itemId": "1", "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var order model.MerchOrder
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, int64(598), order.TotalPrice)

	rec, env = s.do(t, http.MethodPost, "/api/v1/merch/orders/"+order.OrderNo+"/checkout", token(t, "bob", ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperr.CodeForbidden, env.Kind)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/merch/orders/"+order.OrderNo+"/checkout", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = s.do(t, http.MethodPost, "/api/v1/merch/orders/"+order.OrderNo+"/cancel", alice, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.CodeInvalidState, env.Kind)

	rec, env = s.do(t, http.MethodGet, "/api/v1/merch/orders/ord_missing", alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeOrderNotFound, env.Kind)

	rec, env = s.do(t, http.MethodPost, "/api/v1/merch/orders", alice, map[string]any{
		"items": []map[string]any{{"itemId": "2", "quantity": 51}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.CodeOutOfStock, env.Kind)
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodPost, "/api/v1/merch/orders", token(t, "alice", ""), map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodeValidation, env.Kind)
}

func TestRegistrationEndpoints(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice", "")

	rec, env := s.do(t, http.MethodPost, "/api/v1/events/3/register", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first service.RegistrationResult
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.False(t, first.AlreadyRegistered)

	rec, env = s.do(t, http.MethodPost, "/api/v1/events/3/register", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var second service.RegistrationResult
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.True(t, second.AlreadyRegistered)

	rec, env = s.do(t, http.MethodPost, "/api/v1/events/nope/register", alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeEventNotFound, env.Kind)

	body := map[string]any{"userId": "alice", "eventId": "3", "status": "participated"}
	rec, env = s.do(t, http.MethodPost, "/api/v1/admin/registrations/status", alice, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperr.CodeForbidden, env.Kind)

	admin := token(t, "root", "admin")
	rec, env = s.do(t, http.MethodPost, "/api/v1/admin/registrations/status", admin, map[string]any{"userId": "alice", "eventId": "3", "status": "registered"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodeValidation, env.Kind)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/admin/registrations/status", admin, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = s.do(t, http.MethodGet, "/api/v1/events/registrations", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var regs struct {
		Registrations []model.EventRegistration `json:"registrations"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &regs))
	require.Len(t, regs.Registrations, 1)
	assert.Equal(t, model.RegistrationStatusParticipated, regs.Registrations[0].Status)
}

func TestPaymentEndpoints(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice", "")

	rec, env := s.do(t, http.MethodPost, "/api/v1/payments/initiate", alice, map[string]any{"amount": 500, "method": "cash"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodeValidation, env.Kind)

	rec, env = s.do(t, http.MethodPost, "/api/v1/payments/initiate", alice, map[string]any{"amount": 500, "upiId": "alice@upi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var started struct {
		GatewayOrderID       string `json:"gateway_order_id"`
		GatewayTransactionID string `json:"gateway_transaction_id"`
		Method               string `json:"method"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.Equal(t, "upi", started.Method)

	verify := map[string]any{
		"gatewayOrderId":       started.GatewayOrderID,
		"gatewayTransactionId": started.GatewayTransactionID,
		"details":              map[string]any{"amount": 500, "method": "upi", "upiId": "alice@upi"},
	}
	rec, env = s.do(t, http.MethodPost, "/api/v1/payments/verify", alice, verify)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result service.PaymentResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, int64(2500), result.Balance)
	assert.False(t, result.AlreadyProcessed)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/payments/"+started.GatewayTransactionID+"/status", alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, env = s.do(t, http.MethodGet, "/api/v1/payments/"+started.GatewayTransactionID+"/status", token(t, "bob", ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperr.CodeForbidden, env.Kind)

	rec, env = s.do(t, http.MethodGet, "/api/v1/payments/history", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Payments []model.PaymentTransaction `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history.Payments, 1)

	refundPath := "/api/v1/admin/payments/" + started.GatewayTransactionID + "/refund"
	rec, _ = s.do(t, http.MethodPost, refundPath, alice, map[string]any{"reason": "test"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, env = s.do(t, http.MethodPost, refundPath, token(t, "root", "admin"), map[string]any{"reason": "test"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var refund service.RefundResult
	require.NoError(t, json.Unmarshal(env.Data, &refund))
	assert.Equal(t, model.PaymentStatusRefunded, refund.Payment.Status)
}

func TestVerifyWithWrongAmountFails(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice", "")

	_, env := s.do(t, http.MethodPost, "/api/v1/payments/initiate", alice, map[string]any{"amount": 500, "method": "card"})
	var started struct {
		GatewayOrderID       string `json:"gateway_order_id"`
		GatewayTransactionID string `json:"gateway_transaction_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &started))

	rec, env := s.do(t, http.MethodPost, "/api/v1/payments/verify", alice, map[string]any{
		"gatewayOrderId":       started.GatewayOrderID,
		"gatewayTransactionId": started.GatewayTransactionID,
		"details":              map[string]any{"amount": 5000, "method": "card"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodeGatewayVerificationFailed, env.Kind)
	assert.Equal(t, gateway.FailureMessage, env.Message)
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware(zerolog.Nop()), RecoveryMiddleware())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}
