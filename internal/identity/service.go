// Package identity implements nonce-challenge authentication and the
// short-lived session tokens exchanged for a verified challenge.
//
// The flow is challenge-pending -> (verified | expired). Only the first
// path issues a token: a nonce is deleted on successful verification, so
// replaying the same (did, signature, nonce) triple fails.
package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Lifetimes.
const (
	ChallengeTTL = 5 * time.Minute
	TokenTTL     = time.Hour
)

// SimulatedSignaturePrefix marks the placeholder signature accepted only
// when the service runs in dev mode.
const SimulatedSignaturePrefix = "simulated"

// Sentinel errors.
var (
	ErrUnknownChallenge = errors.New("identity: unknown or consumed challenge")
	ErrExpiredChallenge = errors.New("identity: challenge expired")
	ErrBadSignature     = errors.New("identity: signature verification failed")
	ErrInvalidToken     = errors.New("identity: invalid session token")
)

// Challenge is a pending authentication nonce.
type Challenge struct {
	Nonce     string    `json:"nonce"`
	Domain    string    `json:"domain"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Principal is a verified identity with its granted scope.
type Principal struct {
	DID   string
	Scope string
}

// Service issues challenges and session tokens. The signing secret and
// dev-mode flag are fixed at construction; tests inject alternates
// through the constructor surface.
type Service struct {
	secret  []byte
	devMode bool
	log     *zap.Logger

	mu         sync.Mutex
	challenges map[string]*Challenge
	keys       map[string]ed25519.PublicKey

	// onProvision runs outside the lock after a DID's first successful
	// verification; the server wires wallet creation here.
	onProvision func(ctx context.Context, did string)
	seen        map[string]bool
}

// NewService creates the identity service. onProvision may be nil.
func NewService(secret string, devMode bool, log *zap.Logger, onProvision func(ctx context.Context, did string)) *Service {
	return &Service{
		secret:      []byte(secret),
		devMode:     devMode,
		log:         log,
		challenges:  make(map[string]*Challenge),
		keys:        make(map[string]ed25519.PublicKey),
		onProvision: onProvision,
		seen:        make(map[string]bool),
	}
}

// RegisterKey declares the ed25519 public key for a DID. Required for
// real-signature verification; dev-mode simulated signatures bypass it.
func (s *Service) RegisterKey(did string, pub ed25519.PublicKey) {
	s.mu.Lock()
	s.keys[did] = pub
	s.mu.Unlock()
}

// IssueChallenge generates a 256-bit random nonce valid for five minutes.
func (s *Service) IssueChallenge(domain string) (*Challenge, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("identity: nonce generation: %w", err)
	}
	now := time.Now().UTC()
	c := &Challenge{
		Nonce:     hex.EncodeToString(buf),
		Domain:    domain,
		IssuedAt:  now,
		ExpiresAt: now.Add(ChallengeTTL),
	}
	s.mu.Lock()
	s.challenges[c.Nonce] = c
	s.mu.Unlock()
	return c, nil
}

// VerifyChallenge checks the signature over "did:nonce:domain" and
// consumes the nonce. Consumption is a compare-and-delete under the lock,
// so a concurrent replay of the same nonce loses.
func (s *Service) VerifyChallenge(ctx context.Context, did, signature, nonce string) error {
	s.mu.Lock()
	c, ok := s.challenges[nonce]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownChallenge
	}
	if time.Now().After(c.ExpiresAt) {
		delete(s.challenges, nonce)
		s.mu.Unlock()
		return ErrExpiredChallenge
	}
	key := s.keys[did]
	s.mu.Unlock()

	if err := s.checkSignature(did, signature, c, key); err != nil {
		return err
	}

	// Single use: only the caller that still finds the entry consumes
	// it. Concurrent verifies of one nonce race here and all but the
	// winner fail.
	s.mu.Lock()
	if cur, ok := s.challenges[nonce]; !ok || cur != c {
		s.mu.Unlock()
		return ErrUnknownChallenge
	}
	delete(s.challenges, nonce)
	first := !s.seen[did]
	s.seen[did] = true
	s.mu.Unlock()

	if first && s.onProvision != nil {
		s.onProvision(ctx, did)
	}
	s.log.Info("challenge verified", zap.String("did", did))
	return nil
}

func (s *Service) checkSignature(did, signature string, c *Challenge, key ed25519.PublicKey) error {
	if strings.HasPrefix(signature, SimulatedSignaturePrefix) {
		if !s.devMode {
			return fmt.Errorf("%w: simulated signatures require dev mode", ErrBadSignature)
		}
		return nil
	}
	if key == nil {
		return fmt.Errorf("%w: no public key registered for %s", ErrBadSignature, did)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", ErrBadSignature)
	}
	message := []byte(did + ":" + c.Nonce + ":" + c.Domain)
	if !ed25519.Verify(key, message, sig) {
		return ErrBadSignature
	}
	return nil
}

type sessionClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken returns a self-verifying HS256 session token for did.
func (s *Service) IssueToken(did, scope string) (string, time.Time, error) {
	now := time.Now().UTC()
	expires := now.Add(TokenTTL)
	claims := sessionClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   did,
			Issuer:    "hyprcat-gateway",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// VerifyToken recomputes the HMAC tag (constant-time inside the library)
// and enforces expiry. Returns the principal encoded in the token.
func (s *Service) VerifyToken(token string) (*Principal, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Principal{DID: claims.Subject, Scope: claims.Scope}, nil
}

// StartSweeper launches the asynchronous cleanup that deletes expired
// challenges. It stops when ctx is cancelled. Lookups also prune lazily,
// so correctness never depends on the sweeper alone.
func (s *Service) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Service) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for nonce, c := range s.challenges {
		if now.After(c.ExpiresAt) {
			delete(s.challenges, nonce)
		}
	}
}

// PendingChallenges reports the live challenge count, for /stats.
func (s *Service) PendingChallenges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}
