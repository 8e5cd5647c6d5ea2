package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"ignitia/internal/model"
	"ignitia/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDebitForPurchase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	txn, err := env.svc.Wallet.DebitForPurchase(ctx, "alice", 500, "ticket")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionTypeDebit, txn.Type)
	assert.Equal(t, int64(1500), txn.BalanceAfter)
	assert.Equal(t, int64(1500), env.balance(t, "alice"))
	assert.Equal(t, int64(1), env.countTransactions(t, "alice", model.TransactionTypeDebit))

	_, err = env.svc.Wallet.DebitForPurchase(ctx, "alice", 2000, "expensive item")
	assertCode(t, err, apperr.CodeInsufficientBalance)
	assert.Equal(t, int64(1500), env.balance(t, "alice"))
	assert.Equal(t, int64(1), env.countTransactions(t, "alice", model.TransactionTypeDebit))

	require.NoError(t, env.svc.Wallet.VerifyBalance(ctx, "alice"))
}

func TestAddFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, amount := range []int64{0, -5} {
		_, err := env.svc.Wallet.AddFunds(ctx, "bob", amount)
		assertCode(t, err, apperr.CodeInvalidAmount)
	}

	txn, err := env.svc.Wallet.AddFunds(ctx, "bob", 300)
	require.NoError(t, err)
	assert.Equal(t, AddFundsDescription, txn.Description)

	view, err := env.svc.Wallet.GetWallet(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2300), view.Balance)
	require.Len(t, view.Transactions, 2)
	assert.Equal(t, AddFundsDescription, view.Transactions[0].Description)
	assert.Equal(t, model.WelcomeBonusDescription, view.Transactions[1].Description)
}

func TestAddFundsRejectsAmountsAboveMaximum(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, amount := range []int64{testMaxAmount + 1, math.MaxInt64} {
		_, err := env.svc.Wallet.AddFunds(ctx, "bob", amount)
		assertCode(t, err, apperr.CodeInvalidAmount)
	}
	assert.Equal(t, int64(testWelcomeBonus), env.balance(t, "bob"))

	_, err := env.svc.Wallet.AddFunds(ctx, "bob", testMaxAmount)
	require.NoError(t, err)
	assert.Equal(t, int64(testWelcomeBonus+testMaxAmount), env.balance(t, "bob"))
}

func TestCreditThatWouldOverflowIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const nearMax = math.MaxInt64 - 100
	_, err := env.svc.Wallet.GetWallet(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&model.Wallet{}).Where("user_id = ?", "bob").
		UpdateColumn("balance", int64(nearMax)).Error)

	txn, err := env.svc.Wallet.AddFunds(ctx, "bob", 101)
	assert.Nil(t, txn)
	assertCode(t, err, apperr.CodeInvalidAmount)
	assert.Equal(t, int64(nearMax), env.balance(t, "bob"))
	assert.Equal(t, int64(1), env.countTransactions(t, "bob", model.TransactionTypeCredit))
}

func TestListTransactionsCreatesWallet(t *testing.T) {
	env := newTestEnv(t)

	txns, err := env.svc.Wallet.ListTransactions(context.Background(), "new-user", 0)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, int64(testWelcomeBonus), txns[0].Amount)
}

func TestVerifyBalanceDetectsDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Wallet.AddFunds(ctx, "carol", 100)
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&model.Wallet{}).Where("user_id = ?", "carol").Update("balance", 9999).Error)

	err = env.svc.Wallet.VerifyBalance(ctx, "carol")
	assertCode(t, err, apperr.CodeInternal)
	assert.Equal(t, int64(2100), apperr.As(err).Details()["ledger_sum"])
}

func TestVerifyBalanceReadsBalanceAndSumTogether(t *testing.T) {
	ledger := &mockLedger{}
	ledger.On("Reconcile", mock.Anything, "alice").Return(int64(2500), int64(2500), nil).Once()
	ledger.On("Reconcile", mock.Anything, "bob").Return(int64(2500), int64(2400), nil).Once()
	ledger.On("Reconcile", mock.Anything, "dave").Return(int64(0), int64(0), errors.New("connection refused")).Once()

	env := newTestEnvWith(t, ledger, nil)
	ctx := context.Background()

	require.NoError(t, env.svc.Wallet.VerifyBalance(ctx, "alice"))

	err := env.svc.Wallet.VerifyBalance(ctx, "bob")
	assertCode(t, err, apperr.CodeInternal)
	assert.Equal(t, int64(2400), apperr.As(err).Details()["ledger_sum"])

	err = env.svc.Wallet.VerifyBalance(ctx, "dave")
	assertCode(t, err, apperr.CodeStorageUnavailable)

	ledger.AssertExpectations(t)
	ledger.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything)
}

func TestStorageOutageIsNeverReportedAsSuccess(t *testing.T) {
	outage := errors.New("connection refused")
	ledger := &mockLedger{}
	ledger.On("GetWallet", mock.Anything, "dave").Return(nil, outage)
	ledger.On("GetBalance", mock.Anything, "dave").Return(int64(0), outage)
	ledger.On("AppendTransaction", mock.Anything, mock.Anything, mock.Anything).Return(nil, outage)

	env := newTestEnvWith(t, ledger, nil)
	ctx := context.Background()

	view, err := env.svc.Wallet.GetWallet(ctx, "dave")
	assert.Nil(t, view)
	assertCode(t, err, apperr.CodeStorageUnavailable)
	assert.ErrorIs(t, err, outage)

	_, err = env.svc.Wallet.GetBalance(ctx, "dave")
	assertCode(t, err, apperr.CodeStorageUnavailable)

	txn, err := env.svc.Wallet.DebitForPurchase(ctx, "dave", 10, "ticket")
	assert.Nil(t, txn)
	assertCode(t, err, apperr.CodeStorageUnavailable)

	txn, err = env.svc.Wallet.AddFunds(ctx, "dave", 10)
	assert.Nil(t, txn)
	assertCode(t, err, apperr.CodeStorageUnavailable)

	ledger.AssertExpectations(t)
}

func TestInvalidAmountNeverReachesLedger(t *testing.T) {
	ledger := &mockLedger{}
	env := newTestEnvWith(t, ledger, nil)

	_, err := env.svc.Wallet.DebitForPurchase(context.Background(), "erin", 0, "nothing")
	assertCode(t, err, apperr.CodeInvalidAmount)
	ledger.AssertNotCalled(t, "AppendTransaction", mock.Anything, mock.Anything, mock.Anything)
}
