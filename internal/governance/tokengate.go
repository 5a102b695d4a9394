package governance

import (
	"context"

	"github.com/hyprcat/gateway/internal/wallet"
)

// TokenVerifier answers the single yes/no question a token gate asks.
// The simulated model reads the wallet; a real deployment plugs a chain
// reader in behind the same interface.
type TokenVerifier interface {
	Holds(ctx context.Context, did, tokenID string, minBalance int64) (bool, error)
}

// WalletTokenVerifier verifies holdings against the wallet store.
type WalletTokenVerifier struct {
	Wallets *wallet.Store
}

func (v *WalletTokenVerifier) Holds(ctx context.Context, did, tokenID string, minBalance int64) (bool, error) {
	state, err := v.Wallets.Get(ctx, did)
	if err != nil {
		return false, nil // no wallet means no holdings, not an error
	}
	return state.Tokens[tokenID] >= minBalance, nil
}

// CheckTokenGate evaluates a gate for did. A failed check mutates nothing.
func CheckTokenGate(ctx context.Context, v TokenVerifier, did string, c TokenGateConstraint) (bool, error) {
	min := c.MinBalance
	if min < 1 {
		min = 1
	}
	return v.Holds(ctx, did, c.RequiredToken, min)
}
