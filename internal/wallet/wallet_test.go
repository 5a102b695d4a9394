package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyprcat/gateway/internal/store"
)

const testDID = "did:key:alice"

func TestProvisionGrantsInitialBalance(t *testing.T) {
	ws := NewStore(nil)
	ctx := context.Background()

	s, err := ws.Provision(ctx, testDID)
	require.NoError(t, err)
	assert.Equal(t, InitialBalance, s.Balances[DefaultCurrency])

	// Provisioning twice keeps the existing state.
	_, err = ws.Debit(ctx, testDID, DefaultCurrency, 100)
	require.NoError(t, err)
	again, err := ws.Provision(ctx, testDID)
	require.NoError(t, err)
	assert.Equal(t, InitialBalance-100, again.Balances[DefaultCurrency])
}

func TestDebitInsufficientFunds(t *testing.T) {
	ws := NewStore(nil)
	ctx := context.Background()
	_, err := ws.Provision(ctx, testDID)
	require.NoError(t, err)

	_, err = ws.Debit(ctx, testDID, DefaultCurrency, InitialBalance+1)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// The failed debit left the balance untouched.
	s, err := ws.Get(ctx, testDID)
	require.NoError(t, err)
	assert.Equal(t, InitialBalance, s.Balances[DefaultCurrency])
}

func TestDebitUnknownWallet(t *testing.T) {
	ws := NewStore(nil)
	_, err := ws.Debit(context.Background(), "did:key:nobody", DefaultCurrency, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ws := NewStore(nil)
	ctx := context.Background()
	_, err := ws.Provision(ctx, testDID)
	require.NoError(t, err)

	const workers = 50
	const amount = 300 // 50 * 300 = 15000 > 10000, so some must fail

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ws.Debit(ctx, testDID, DefaultCurrency, amount); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s, err := ws.Get(ctx, testDID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s.Balances[DefaultCurrency], int64(0))
	assert.Equal(t, InitialBalance-int64(succeeded)*amount, s.Balances[DefaultCurrency])
}

func TestTokenCreditAndBurn(t *testing.T) {
	ws := NewStore(nil)
	ctx := context.Background()
	_, err := ws.Provision(ctx, testDID)
	require.NoError(t, err)

	s, err := ws.CreditToken(ctx, testDID, "hyprcat:access", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, s.Tokens["hyprcat:access"])

	_, err = ws.BurnToken(ctx, testDID, "hyprcat:access", 5)
	assert.ErrorIs(t, err, ErrInsufficientToken)

	s, err = ws.BurnToken(ctx, testDID, "hyprcat:access", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, s.Tokens["hyprcat:access"])
}

func TestCanAfford(t *testing.T) {
	ws := NewStore(nil)
	ctx := context.Background()
	_, err := ws.Provision(ctx, testDID)
	require.NoError(t, err)

	assert.True(t, ws.CanAfford(ctx, testDID, DefaultCurrency, InitialBalance))
	assert.False(t, ws.CanAfford(ctx, testDID, DefaultCurrency, InitialBalance+1))
	assert.False(t, ws.CanAfford(ctx, "did:key:nobody", DefaultCurrency, 1))
}

func TestDurableWriteThrough(t *testing.T) {
	durable := store.NewFileStore(t.TempDir())
	ctx := context.Background()

	ws := NewStore(durable)
	_, err := ws.Provision(ctx, testDID)
	require.NoError(t, err)
	_, err = ws.Debit(ctx, testDID, DefaultCurrency, 2500)
	require.NoError(t, err)

	// A fresh store over the same backend sees the persisted state.
	reopened := NewStore(durable)
	s, err := reopened.Get(ctx, testDID)
	require.NoError(t, err)
	assert.Equal(t, InitialBalance-2500, s.Balances[DefaultCurrency])
}
