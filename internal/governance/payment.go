package governance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyprcat/gateway/internal/events"
	"github.com/hyprcat/gateway/internal/wallet"
)

// Payment flow bounds.
const (
	InvoiceTTL     = 10 * time.Minute
	MinProofLength = 32
)

// Headers clients use to carry payment material.
const (
	ProofHeader   = "X-Payment-Proof"
	InvoiceHeader = "X-Payment-Invoice"
)

// DirectInvoiceID marks a settlement without a prior invoice.
const DirectInvoiceID = "direct"

// Receipt statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Sentinel errors.
var (
	ErrUnknownInvoice = errors.New("governance: unknown or expired invoice")
	ErrAmountMismatch = errors.New("governance: amount does not match invoice")
	ErrInvalidProof   = errors.New("governance: payment proof rejected")
)

// Invoice is the time-bounded token issued alongside a 402 response.
type Invoice struct {
	ID        string    `json:"invoiceId"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Recipient string    `json:"recipient"`
	Bolt11    string    `json:"bolt11"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Receipt is the sole authoritative confirmation of a settled payment.
// Once confirmed it is immutable.
type Receipt struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoiceId"`
	PayerDID  string    `json:"payerDid"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Proof     string    `json:"proof"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// PaymentService issues invoices and settles proofs against wallets. The
// payment network itself is simulated: a proof is any opaque string of
// sufficient length, and settlement is a wallet debit.
type PaymentService struct {
	secret  []byte
	wallets *wallet.Store
	bus     events.Emitter
	log     *zap.Logger

	mu       sync.Mutex
	invoices map[string]*Invoice
	receipts map[string][]*Receipt // payer DID -> receipts
}

// NewPaymentService creates the payment service. bus may be nil.
func NewPaymentService(secret string, wallets *wallet.Store, bus events.Emitter, log *zap.Logger) *PaymentService {
	return &PaymentService{
		secret:   []byte(secret),
		wallets:  wallets,
		bus:      bus,
		log:      log,
		invoices: make(map[string]*Invoice),
		receipts: make(map[string][]*Receipt),
	}
}

// CreateInvoice issues a pending invoice for the 402 response.
func (p *PaymentService) CreateInvoice(amount int64, currency, recipient string) (*Invoice, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("governance: invoice amount must be positive, got %d", amount)
	}
	if currency == "" {
		currency = wallet.DefaultCurrency
	}
	now := time.Now().UTC()
	inv := &Invoice{
		ID:        uuid.NewString(),
		Amount:    amount,
		Currency:  currency,
		Recipient: recipient,
		IssuedAt:  now,
		ExpiresAt: now.Add(InvoiceTTL),
	}
	inv.Bolt11 = p.bolt11(inv)
	p.mu.Lock()
	p.invoices[inv.ID] = inv
	p.mu.Unlock()
	if p.bus != nil {
		p.bus.Emit(events.TypePaymentInvoiced, "/operations", inv.ID, map[string]any{
			"amount": amount, "currency": currency,
		})
	}
	return inv, nil
}

// bolt11 derives a deterministic simulated payment request string. Real
// deployments swap in a node-issued invoice behind the same field.
func (p *PaymentService) bolt11(inv *Invoice) string {
	mac := hmac.New(sha256.New, p.secret)
	fmt.Fprintf(mac, "%s:%d:%s", inv.ID, inv.Amount, inv.Currency)
	return "lnsimhyprcat1" + hex.EncodeToString(mac.Sum(nil))
}

// SettleInput carries one settlement attempt.
type SettleInput struct {
	Proof     string
	InvoiceID string // empty or "direct" for invoice-less settlement
	PayerDID  string
	Amount    int64
	Currency  string
}

// VerifyAndSettle validates the proof, debits the payer's wallet, and
// emits a confirmed receipt. A failed attempt is final for its invoice:
// the invoice is consumed up front, so the caller must re-issue after any
// failure. Token verification and the wallet debit are short and
// non-cancellable once begun.
func (p *PaymentService) VerifyAndSettle(ctx context.Context, in SettleInput) (*Receipt, error) {
	amount, currency := in.Amount, in.Currency
	invoiceID := in.InvoiceID
	if invoiceID == "" {
		invoiceID = DirectInvoiceID
	}

	if invoiceID != DirectInvoiceID {
		inv, ok := p.consumeInvoice(invoiceID)
		if !ok {
			return nil, ErrUnknownInvoice
		}
		if in.Amount != 0 && in.Amount != inv.Amount {
			return nil, fmt.Errorf("%w: invoice wants %d, proof claims %d", ErrAmountMismatch, inv.Amount, in.Amount)
		}
		amount, currency = inv.Amount, inv.Currency
	}
	if currency == "" {
		currency = wallet.DefaultCurrency
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: settlement amount must be positive", ErrAmountMismatch)
	}
	if len(in.Proof) < MinProofLength {
		return nil, fmt.Errorf("%w: proof shorter than %d characters", ErrInvalidProof, MinProofLength)
	}

	if _, err := p.wallets.Debit(ctx, in.PayerDID, currency, amount); err != nil {
		return nil, err
	}

	receipt := &Receipt{
		ID:        "urn:uuid:" + uuid.NewString(),
		InvoiceID: invoiceID,
		PayerDID:  in.PayerDID,
		Amount:    amount,
		Currency:  currency,
		Proof:     in.Proof,
		Status:    StatusConfirmed,
		CreatedAt: time.Now().UTC(),
	}
	p.mu.Lock()
	p.receipts[in.PayerDID] = append(p.receipts[in.PayerDID], receipt)
	p.mu.Unlock()

	p.log.Info("payment settled",
		zap.String("payer", in.PayerDID),
		zap.Int64("amount", amount),
		zap.String("currency", currency))
	if p.bus != nil {
		p.bus.Emit(events.TypePaymentSettled, "/operations", receipt.ID, map[string]any{
			"payer": in.PayerDID, "amount": amount, "currency": currency,
		})
	}
	return receipt, nil
}

// consumeInvoice atomically removes and returns a live invoice. Expired
// entries count as unknown.
func (p *PaymentService) consumeInvoice(id string) (*Invoice, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inv, ok := p.invoices[id]
	if !ok {
		return nil, false
	}
	delete(p.invoices, id)
	if time.Now().After(inv.ExpiresAt) {
		return nil, false
	}
	return inv, true
}

// Receipts returns the settlement history for a payer, oldest first.
func (p *PaymentService) Receipts(did string) []*Receipt {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Receipt, len(p.receipts[did]))
	copy(out, p.receipts[did])
	return out
}

// PendingInvoices reports the live invoice count, for /stats.
func (p *PaymentService) PendingInvoices() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.invoices)
}

// StartSweeper launches the scheduled sweep that prunes expired pending
// invoices. Consumers also prune on lookup, so the sweep only bounds
// memory.
func (p *PaymentService) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				p.mu.Lock()
				for id, inv := range p.invoices {
					if now.After(inv.ExpiresAt) {
						delete(p.invoices, id)
					}
				}
				p.mu.Unlock()
			}
		}
	}()
}
