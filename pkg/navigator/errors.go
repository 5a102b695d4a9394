// Package navigator is the hypermedia client runtime: it dereferences
// JSON-LD resources, follows affordances, and surfaces governance
// outcomes (payment demands, token gates, auth challenges) as typed
// errors an agent loop can branch on.
package navigator

import (
	"fmt"
	"time"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// PaymentRequiredError carries the 402 invoice the server issued.
type PaymentRequiredError struct {
	URL     string
	Invoice linkeddata.Node
}

func (e *PaymentRequiredError) Error() string {
	amount := e.Invoice.GetString("x402:amount")
	currency := e.Invoice.GetString("x402:currency")
	return fmt.Sprintf("navigator: %s requires payment of %s %s", e.URL, amount, currency)
}

// InvoiceID returns the invoice identifier to echo back on the retry.
func (e *PaymentRequiredError) InvoiceID() string {
	return e.Invoice.GetString("invoiceId")
}

// Amount returns the demanded amount, or 0 when the body is malformed.
func (e *PaymentRequiredError) Amount() int64 {
	n, _ := e.Invoice.GetInt("x402:amount")
	return n
}

// AuthRequiredError reports a 401 along with the challenge endpoint
// advertised in the error body.
type AuthRequiredError struct {
	URL               string
	ChallengeEndpoint string
}

func (e *AuthRequiredError) Error() string {
	return "navigator: " + e.URL + " requires authentication"
}

// TokenGateError reports a 403 from an unmet token gate or policy.
type TokenGateError struct {
	URL    string
	Detail string
}

func (e *TokenGateError) Error() string {
	return "navigator: access to " + e.URL + " denied: " + e.Detail
}

// NotFoundError reports a dereference of a dangling IRI.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return "navigator: no resource at " + e.URL
}

// RateLimitedError reports a 429 that survived the retry budget.
type RateLimitedError struct {
	URL        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("navigator: rate limited at %s, retry after %s", e.URL, e.RetryAfter)
}

// ValidationError reports a 422 with the offending property paths.
type ValidationError struct {
	URL   string
	Paths []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("navigator: input rejected by %s: %v", e.URL, e.Paths)
}
