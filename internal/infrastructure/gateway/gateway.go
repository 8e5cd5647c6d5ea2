package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FailureMessage is returned for every rejected verification; the gateway
// does not say which detail was wrong.
const FailureMessage = "Invalid payment details"

var (
	paisePerRupee = decimal.NewFromInt(100)
	maxMinorUnits = decimal.NewFromInt(math.MaxInt64)
	minMinorUnits = decimal.NewFromInt(math.MinInt64)
)

type InitiateRequest struct {
	UserID   string
	Amount   int64
	Method   string
	Currency string
}

type Initiation struct {
	GatewayOrderID       string
	GatewayTransactionID string
	Amount               int64
	AmountMinor          int64
	Currency             string
	Method               string
	CreatedAt            time.Time
}

// VerifyRequest carries what the client reports back after paying.
type VerifyRequest struct {
	GatewayOrderID       string
	GatewayTransactionID string
	Amount               int64
	Method               string
	UpiID                string
	Signature            string

	// ExpectedAmount and ExpectedMethod come from the persisted payment.
	ExpectedAmount int64
	ExpectedMethod string
}

type Verification struct {
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	VerifiedAt time.Time         `json:"verified_at"`
	Details    map[string]string `json:"details,omitempty"`
}

// Gateway is the external payment provider. It never touches wallets.
type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error)
	Verify(ctx context.Context, req VerifyRequest) (*Verification, error)
}

// Simulator accepts any payment whose reported details match the initiated
// one. With a secret configured and RequireSignature set, it also checks an
// HMAC-SHA256 of "orderId|transactionId".
type Simulator struct {
	secret           []byte
	requireSignature bool
	supported        map[string]bool
	now              func() time.Time
}

func NewSimulator(secret string, requireSignature bool, methods ...string) *Simulator {
	supported := make(map[string]bool, len(methods))
	for _, m := range methods {
		supported[m] = true
	}
	return &Simulator{
		secret:           []byte(secret),
		requireSignature: requireSignature,
		supported:        supported,
		now:              time.Now,
	}
}

// ToMinorUnits converts whole rupees to paise. Amounts whose paise value does
// not fit in an int64 are rejected.
func ToMinorUnits(amount int64) (int64, error) {
	minor := decimal.NewFromInt(amount).Mul(paisePerRupee)
	if minor.GreaterThan(maxMinorUnits) || minor.LessThan(minMinorUnits) {
		return 0, fmt.Errorf("gateway: amount %d is out of range", amount)
	}
	return minor.IntPart(), nil
}

func (s *Simulator) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("gateway: amount must be positive, got %d", req.Amount)
	}
	if !s.supported[req.Method] {
		return nil, fmt.Errorf("gateway: unsupported method %q", req.Method)
	}
	minor, err := ToMinorUnits(req.Amount)
	if err != nil {
		return nil, err
	}

	now := s.now()
	return &Initiation{
		GatewayOrderID:       fmt.Sprintf("order_%d_%s", now.Unix(), uuid.NewString()[:8]),
		GatewayTransactionID: "txn_" + uuid.NewString(),
		Amount:               req.Amount,
		AmountMinor:          minor,
		Currency:             req.Currency,
		Method:               req.Method,
		CreatedAt:            now,
	}, nil
}

func (s *Simulator) Verify(ctx context.Context, req VerifyRequest) (*Verification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := &Verification{VerifiedAt: s.now()}
	minor, err := ToMinorUnits(req.Amount)
	if err != nil || !s.valid(req) {
		result.Error = FailureMessage
		return result, nil
	}

	result.Success = true
	result.Details = map[string]string{
		"gateway_order_id":       req.GatewayOrderID,
		"gateway_transaction_id": req.GatewayTransactionID,
		"amount_minor":           fmt.Sprint(minor),
		"method":                 req.Method,
	}
	return result, nil
}

func (s *Simulator) valid(req VerifyRequest) bool {
	if req.GatewayOrderID == "" || req.GatewayTransactionID == "" {
		return false
	}
	if req.Amount <= 0 || !s.supported[req.Method] {
		return false
	}
	if req.ExpectedAmount != 0 && req.Amount != req.ExpectedAmount {
		return false
	}
	if req.ExpectedMethod != "" && req.Method != req.ExpectedMethod {
		return false
	}
	if s.requireSignature {
		return hmac.Equal([]byte(strings.ToLower(req.Signature)), []byte(s.Sign(req.GatewayOrderID, req.GatewayTransactionID)))
	}
	return true
}

// Sign returns the hex HMAC-SHA256 a client presents for a payment.
func (s *Simulator) Sign(gatewayOrderID, gatewayTransactionID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayTransactionID))
	return hex.EncodeToString(mac.Sum(nil))
}
