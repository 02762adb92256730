package businessflow

import (
	"context"
	"testing"

	apptesting "github.com/blastline/blastline-backend/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedgerEnv(t *testing.T) (*apptesting.Env, CreditLedger) {
	t.Helper()
	env := apptesting.NewEnv()
	return env, NewCreditLedger(env.Wallets, env.Reservations, env.Tx)
}

func TestCreditLedgerReserve(t *testing.T) {
	env, ledger := newLedgerEnv(t)
	ctx := context.Background()
	wallet := env.SeedWallet(1, 5)

	reservation, err := ledger.Reserve(ctx, 1, 10, 2)
	require.NoError(t, err)
	require.NotNil(t, reservation)
	assert.Equal(t, uint(2), reservation.Amount)
	assert.Equal(t, uint(0), reservation.Consumed)
	assert.Equal(t, uint(0), reservation.Released)

	got, err := env.Wallets.ByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(3), got.FreeCredits)
	assert.Equal(t, uint(2), got.ReservedCredits)
	assert.Equal(t, uint(0), got.UsedCredits)
}

func TestCreditLedgerReserveInsufficient(t *testing.T) {
	env, ledger := newLedgerEnv(t)
	ctx := context.Background()
	wallet := env.SeedWallet(1, 5)

	// A 6-recipient batch against 5 credits is rejected whole, never partially
	_, err := ledger.Reserve(ctx, 1, 10, 6)
	require.Error(t, err)
	assert.True(t, IsInsufficientCredits(err))

	got, err := env.Wallets.ByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(5), got.FreeCredits)
	assert.Equal(t, uint(0), got.ReservedCredits)
}

func TestCreditLedgerReserveWalletMissing(t *testing.T) {
	_, ledger := newLedgerEnv(t)

	_, err := ledger.Reserve(context.Background(), 42, 10, 1)
	require.Error(t, err)
	assert.True(t, IsWalletNotFound(err))
}

func TestCreditLedgerConsumeAndRelease(t *testing.T) {
	env, ledger := newLedgerEnv(t)
	ctx := context.Background()
	wallet := env.SeedWallet(1, 5)

	reservation, err := ledger.Reserve(ctx, 1, 10, 3)
	require.NoError(t, err)

	require.NoError(t, ledger.ConsumeUnit(ctx, reservation.ID))
	require.NoError(t, ledger.ConsumeUnit(ctx, reservation.ID))
	require.NoError(t, ledger.ReleaseUnit(ctx, reservation.ID))

	got, err := env.Reservations.ByID(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(2), got.Consumed)
	assert.Equal(t, uint(1), got.Released)
	assert.Equal(t, uint(0), got.Outstanding())

	w, err := env.Wallets.ByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(3), w.FreeCredits)
	assert.Equal(t, uint(0), w.ReservedCredits)
	assert.Equal(t, uint(2), w.UsedCredits)

	// Every unit is accounted for exactly once
	assert.Equal(t, got.Amount, got.Consumed+got.Released)
}

func TestCreditLedgerExhaustionGuard(t *testing.T) {
	env, ledger := newLedgerEnv(t)
	ctx := context.Background()
	env.SeedWallet(1, 5)

	reservation, err := ledger.Reserve(ctx, 1, 10, 1)
	require.NoError(t, err)

	require.NoError(t, ledger.ConsumeUnit(ctx, reservation.ID))

	// The single unit is spent; further movement must be rejected
	err = ledger.ConsumeUnit(ctx, reservation.ID)
	require.Error(t, err)
	err = ledger.ReleaseUnit(ctx, reservation.ID)
	require.Error(t, err)
}

func TestCreditLedgerSettleRemainder(t *testing.T) {
	env, ledger := newLedgerEnv(t)
	ctx := context.Background()
	wallet := env.SeedWallet(1, 10)

	reservation, err := ledger.Reserve(ctx, 1, 10, 4)
	require.NoError(t, err)
	require.NoError(t, ledger.ConsumeUnit(ctx, reservation.ID))

	require.NoError(t, ledger.SettleRemainder(ctx, reservation.ID))

	got, err := env.Reservations.ByID(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), got.Consumed)
	assert.Equal(t, uint(3), got.Released)
	assert.Equal(t, got.Amount, got.Consumed+got.Released)

	w, err := env.Wallets.ByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(9), w.FreeCredits)
	assert.Equal(t, uint(0), w.ReservedCredits)
	assert.Equal(t, uint(1), w.UsedCredits)
}
