package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testDomain = "https://mesh.test"

func TestChallengeVerifyAndReplay(t *testing.T) {
	svc := NewService("secret", true, zap.NewNop(), nil)
	ctx := context.Background()

	c, err := svc.IssueChallenge(testDomain)
	require.NoError(t, err)
	assert.Len(t, c.Nonce, 64)
	assert.Equal(t, 1, svc.PendingChallenges())

	require.NoError(t, svc.VerifyChallenge(ctx, "did:key:alice", "simulated-sig", c.Nonce))

	// The nonce is consumed on success; replaying it must fail.
	err = svc.VerifyChallenge(ctx, "did:key:alice", "simulated-sig", c.Nonce)
	assert.ErrorIs(t, err, ErrUnknownChallenge)
	assert.Equal(t, 0, svc.PendingChallenges())
}

func TestConcurrentVerifiesConsumeNonceOnce(t *testing.T) {
	svc := NewService("secret", false, zap.NewNop(), nil)
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	const did = "did:key:racer"
	svc.RegisterKey(did, pub)

	for i := 0; i < 50; i++ {
		c, err := svc.IssueChallenge(testDomain)
		require.NoError(t, err)
		message := []byte(did + ":" + c.Nonce + ":" + c.Domain)
		sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, message))

		const racers = 4
		var wg sync.WaitGroup
		var won atomic.Int32
		for g := 0; g < racers; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if svc.VerifyChallenge(context.Background(), did, sig, c.Nonce) == nil {
					won.Add(1)
				}
			}()
		}
		wg.Wait()
		require.EqualValues(t, 1, won.Load(), "iteration %d", i)
	}
}

func TestSimulatedSignatureRequiresDevMode(t *testing.T) {
	svc := NewService("secret", false, zap.NewNop(), nil)
	c, err := svc.IssueChallenge(testDomain)
	require.NoError(t, err)

	err = svc.VerifyChallenge(context.Background(), "did:key:alice", "simulated-sig", c.Nonce)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestEd25519Signature(t *testing.T) {
	svc := NewService("secret", false, zap.NewNop(), nil)
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	const did = "did:key:bob"
	svc.RegisterKey(did, pub)

	c, err := svc.IssueChallenge(testDomain)
	require.NoError(t, err)

	message := []byte(did + ":" + c.Nonce + ":" + c.Domain)
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, message))
	require.NoError(t, svc.VerifyChallenge(context.Background(), did, sig, c.Nonce))

	// Wrong message content fails verification.
	c2, err := svc.IssueChallenge(testDomain)
	require.NoError(t, err)
	badSig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte("other")))
	assert.ErrorIs(t, svc.VerifyChallenge(context.Background(), did, badSig, c2.Nonce), ErrBadSignature)
}

func TestExpiredChallenge(t *testing.T) {
	svc := NewService("secret", true, zap.NewNop(), nil)
	c, err := svc.IssueChallenge(testDomain)
	require.NoError(t, err)

	svc.mu.Lock()
	svc.challenges[c.Nonce].ExpiresAt = time.Now().Add(-time.Second)
	svc.mu.Unlock()

	err = svc.VerifyChallenge(context.Background(), "did:key:alice", "simulated-sig", c.Nonce)
	assert.ErrorIs(t, err, ErrExpiredChallenge)
}

func TestProvisionCallbackFiresOnce(t *testing.T) {
	var calls []string
	svc := NewService("secret", true, zap.NewNop(), func(_ context.Context, did string) {
		calls = append(calls, did)
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		c, err := svc.IssueChallenge(testDomain)
		require.NoError(t, err)
		require.NoError(t, svc.VerifyChallenge(ctx, "did:key:carol", "simulated-sig", c.Nonce))
	}
	assert.Equal(t, []string{"did:key:carol"}, calls)
}

func TestTokenRoundTripAndTampering(t *testing.T) {
	svc := NewService("secret", false, zap.NewNop(), nil)

	token, expires, err := svc.IssueToken("did:key:alice", "agent")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(TokenTTL), expires, time.Minute)

	p, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "did:key:alice", p.DID)
	assert.Equal(t, "agent", p.Scope)

	// A token signed with another secret is rejected.
	other := NewService("different", false, zap.NewNop(), nil)
	stolen, _, err := other.IssueToken("did:key:mallory", "admin")
	require.NoError(t, err)
	_, err = svc.VerifyToken(stolen)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.VerifyToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
