package gateway

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimulator(requireSignature bool) *Simulator {
	return NewSimulator("test_secret", requireSignature, "upi", "card", "netbanking")
}

func TestInitiateIDs(t *testing.T) {
	sim := newSimulator(false)

	started, err := sim.Initiate(context.Background(), InitiateRequest{UserID: "alice", Amount: 500, Method: "upi", Currency: "INR"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(started.GatewayOrderID, "order_"))
	assert.True(t, strings.HasPrefix(started.GatewayTransactionID, "txn_"))
	assert.Equal(t, int64(50000), started.AmountMinor)

	_, err = sim.Initiate(context.Background(), InitiateRequest{Amount: 0, Method: "upi"})
	assert.Error(t, err)
	_, err = sim.Initiate(context.Background(), InitiateRequest{Amount: 10, Method: "cash"})
	assert.Error(t, err)
}

func TestToMinorUnitsRejectsOverflow(t *testing.T) {
	minor, err := ToMinorUnits(math.MaxInt64 / 100)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64/100*100), minor)

	_, err = ToMinorUnits(math.MaxInt64/100 + 1)
	assert.Error(t, err)

	sim := newSimulator(false)
	_, err = sim.Initiate(context.Background(), InitiateRequest{UserID: "alice", Amount: math.MaxInt64, Method: "upi"})
	assert.Error(t, err)

	verification, err := sim.Verify(context.Background(), VerifyRequest{
		GatewayOrderID: "order_1", GatewayTransactionID: "txn_1", Amount: math.MaxInt64, Method: "upi",
	})
	require.NoError(t, err)
	assert.False(t, verification.Success)
	assert.Equal(t, FailureMessage, verification.Error)
}

func TestVerify(t *testing.T) {
	sim := newSimulator(false)
	base := VerifyRequest{
		GatewayOrderID:       "order_1_abcdefgh",
		GatewayTransactionID: "txn_1",
		Amount:               500,
		Method:               "upi",
		ExpectedAmount:       500,
		ExpectedMethod:       "upi",
	}

	tests := []struct {
		name   string
		mutate func(r *VerifyRequest)
		ok     bool
	}{
		{"valid", func(r *VerifyRequest) {}, true},
		{"missing order id", func(r *VerifyRequest) { r.GatewayOrderID = "" }, false},
		{"missing transaction id", func(r *VerifyRequest) { r.GatewayTransactionID = "" }, false},
		{"zero amount", func(r *VerifyRequest) { r.Amount = 0 }, false},
		{"amount mismatch", func(r *VerifyRequest) { r.Amount = 499 }, false},
		{"method mismatch", func(r *VerifyRequest) { r.Method = "card" }, false},
		{"unsupported method", func(r *VerifyRequest) { r.Method = "cash"; r.ExpectedMethod = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			res, err := sim.Verify(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, res.Success)
			if !tt.ok {
				assert.Equal(t, FailureMessage, res.Error)
			}
		})
	}
}

func TestVerifySignature(t *testing.T) {
	sim := newSimulator(true)
	req := VerifyRequest{GatewayOrderID: "order_1", GatewayTransactionID: "txn_1", Amount: 10, Method: "card"}

	res, err := sim.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Success)

	req.Signature = sim.Sign(req.GatewayOrderID, req.GatewayTransactionID)
	res, err = sim.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "1000", res.Details["amount_minor"])
}

func TestVerifyHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newSimulator(false).Verify(ctx, VerifyRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}
