package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/hyprcat/gateway/internal/events"
	"github.com/hyprcat/gateway/internal/federation"
	"github.com/hyprcat/gateway/internal/governance"
	"github.com/hyprcat/gateway/internal/linkeddata"
	"github.com/hyprcat/gateway/internal/provenance"
	"github.com/hyprcat/gateway/internal/wallet"
)

// tokenUnitPrice is the simulated mint price per access-token unit.
const tokenUnitPrice int64 = 250

// handleCheckout executes a purchase affordance. Without a payment proof
// the response is 402 carrying a fresh invoice; with one, the proof is
// settled against the caller's wallet and an order is created.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}
	var in map[string]any
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.problem(w, r, KindInvalidRequest, "body must be a JSON object", nil)
		return
	}
	productID, _ := in["hyprcat:product"].(string)
	if productID == "" {
		productID, _ = in["productId"].(string)
	}
	if productID == "" {
		s.checkoutByPrice(w, r, id.DID, in)
		return
	}

	product, err := s.findNode(r, productID)
	if err != nil {
		s.problem(w, r, KindNotFound, "no product at "+productID, nil)
		return
	}
	op, ok := buyOperation(product)
	if !ok {
		s.problem(w, r, KindInvalidRequest, "resource carries no purchase affordance", nil)
		return
	}
	if res := linkeddata.ValidateInput(in, op.Expects); !res.Valid() {
		s.problem(w, r, KindValidationError, "input failed shape validation", map[string]any{
			"hyprcat:violations": res.Errors,
			"hyprcat:paths":      res.Paths(),
		})
		return
	}
	if stock, ok := product.GetInt("stock"); ok && stock < 1 {
		s.problem(w, r, KindConflict, "product is out of stock", nil)
		return
	}

	constraint, hasConstraint := governance.ConstraintOf(op)
	if !hasConstraint {
		s.problem(w, r, KindInvalidRequest, "purchase affordance carries no payment terms", nil)
		return
	}
	pay, ok := paymentOf(constraint)
	if !ok {
		s.problem(w, r, KindInvalidRequest, "purchase affordance carries no payment terms", nil)
		return
	}
	if !s.checkSideConstraints(w, r, id.DID, constraint) {
		return
	}

	proof := r.Header.Get(governance.ProofHeader)
	if proof == "" {
		s.respondPaymentRequired(w, r, pay)
		return
	}

	if _, err := s.wallets.Provision(r.Context(), id.DID); err != nil {
		s.problem(w, r, KindInternalError, "wallet provisioning failed", nil)
		return
	}
	receipt, err := s.payments.VerifyAndSettle(r.Context(), governance.SettleInput{
		Proof:     proof,
		InvoiceID: r.Header.Get(governance.InvoiceHeader),
		PayerDID:  id.DID,
		Amount:    pay.Amount,
		Currency:  pay.Currency,
	})
	if err != nil {
		s.respondSettlementFailure(w, r, err)
		return
	}
	s.metrics.PaymentsSettled.Inc()
	s.decrementStock(r, productID)

	order := map[string]any{
		"@context":             linkeddata.ContextURL,
		"@id":                  "urn:uuid:" + uuid.NewString(),
		"@type":                "schema:Order",
		"schema:orderedItem":   map[string]any{"@id": productID},
		"schema:price":         pay.Amount,
		"schema:priceCurrency": pay.Currency,
		"schema:customer":      map[string]any{"@id": id.DID},
		"schema:seller":        map[string]any{"@id": pay.Recipient},
		"schema:orderDate":     time.Now().UTC().Format(time.RFC3339),
		"x402:paymentReceipt":  receipt,
	}

	chainID := s.attest(id.DID, product, provenance.Activity{
		Label:      "purchase " + product.GetString("schema:name"),
		ActionType: "schema:BuyAction",
		Method:     http.MethodPost,
		TargetURL:  s.cfg.BaseURL + "/operations/checkout",
		StatusCode: http.StatusCreated,
		Payload:    map[string]any{"product": productID, "amount": pay.Amount},
	})
	if chainID != "" {
		s.linkProvenance(w, chainID)
		w.Header().Set(HeaderProvenanceID, chainID)
	}
	s.writeLD(w, http.StatusCreated, order)
}

// checkoutByPrice settles a purchase described only by its price. The
// invoice amount comes from the body and the order names no item.
func (s *Server) checkoutByPrice(w http.ResponseWriter, r *http.Request, did string, in map[string]any) {
	price, ok := priceFrom(in)
	if !ok || price <= 0 {
		s.problem(w, r, KindInvalidRequest, "hyprcat:product or a positive schema:price is required", nil)
		return
	}
	pay := &governance.PaymentConstraint{
		Amount:    price,
		Currency:  wallet.DefaultCurrency,
		Recipient: s.cfg.BaseURL,
	}
	proof := r.Header.Get(governance.ProofHeader)
	if proof == "" {
		s.respondPaymentRequired(w, r, pay)
		return
	}
	if _, err := s.wallets.Provision(r.Context(), did); err != nil {
		s.problem(w, r, KindInternalError, "wallet provisioning failed", nil)
		return
	}
	receipt, err := s.payments.VerifyAndSettle(r.Context(), governance.SettleInput{
		Proof:     proof,
		InvoiceID: r.Header.Get(governance.InvoiceHeader),
		PayerDID:  did,
		Amount:    price,
		Currency:  pay.Currency,
	})
	if err != nil {
		s.respondSettlementFailure(w, r, err)
		return
	}
	s.metrics.PaymentsSettled.Inc()
	s.writeLD(w, http.StatusCreated, map[string]any{
		"@context":             linkeddata.ContextURL,
		"@id":                  "urn:uuid:" + uuid.NewString(),
		"@type":                "schema:Order",
		"schema:price":         price,
		"schema:priceCurrency": pay.Currency,
		"schema:customer":      map[string]any{"@id": did},
		"schema:orderDate":     time.Now().UTC().Format(time.RFC3339),
		"x402:paymentReceipt":  receipt,
	})
}

// priceFrom reads schema:price as a JSON number or numeric string.
func priceFrom(in map[string]any) (int64, bool) {
	switch v := in["schema:price"].(type) {
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// handleQuery runs a federated query and returns the merged result set.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var in map[string]any
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.problem(w, r, KindInvalidRequest, "body must be a JSON object", nil)
		return
	}
	text, _ := in["schema:query"].(string)
	if text == "" {
		text, _ = in["query"].(string)
	}
	if text == "" {
		s.problem(w, r, KindValidationError, "schema:query is required", map[string]any{
			"hyprcat:paths": []string{"schema:query"},
		})
		return
	}

	rs, err := s.fed.Execute(r.Context(), text)
	if err != nil {
		var srcErr *federation.SourceError
		switch {
		case errors.Is(err, federation.ErrParse):
			s.metrics.QueriesExecuted.WithLabelValues("parse_error").Inc()
			s.problem(w, r, KindValidationError, err.Error(), map[string]any{
				"hyprcat:paths": []string{"schema:query"},
			})
		case errors.As(err, &srcErr):
			s.metrics.QueriesExecuted.WithLabelValues("source_error").Inc()
			s.problem(w, r, KindFederationError, srcErr.Error(), map[string]any{
				"hyprcat:failedSource": srcErr.Endpoint,
			})
		case errors.Is(err, r.Context().Err()):
			s.problem(w, r, KindServiceUnavailable, "query deadline exceeded", nil)
		default:
			s.problem(w, r, KindInternalError, "query execution failed", nil)
		}
		return
	}
	s.metrics.QueriesExecuted.WithLabelValues("ok").Inc()

	body := map[string]any{
		"@context":       linkeddata.ContextURL,
		"@id":            rs.WasGeneratedBy,
		"@type":          "czero:ResultSet",
		"items":          rs.Items,
		"totalResults":   rs.TotalResults,
		"queryLanguage":  rs.QueryLanguage,
		"executionTime":  rs.ExecutionTime,
		"sources":        rs.Sources,
		"wasGeneratedBy": rs.WasGeneratedBy,
	}

	if id, ok := identityFrom(r.Context()); ok {
		chainID := s.attest(id.DID, linkeddata.Node{
			"@id":   rs.WasGeneratedBy,
			"@type": "czero:ResultSet",
		}, provenance.Activity{
			Label:      "federated query",
			ActionType: "czero:QueryAction",
			Method:     http.MethodPost,
			TargetURL:  s.cfg.BaseURL + "/operations/query",
			StatusCode: http.StatusOK,
			Payload:    map[string]any{"query": text, "rows": rs.TotalResults},
		})
		if chainID != "" {
			s.linkProvenance(w, chainID)
			w.Header().Set(HeaderProvenanceID, chainID)
		}
	}
	s.writeLD(w, http.StatusOK, body)
}

// handleLRSExport renders the caller's recorded activity as xAPI-style
// statements. Requires some identity; anonymous export has no subject.
func (s *Server) handleLRSExport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}
	var statements []any
	for _, chain := range s.prov.HistoryOf(id.DID) {
		for _, item := range chain.Items {
			if item.Activity == nil {
				continue
			}
			a := item.Activity
			statements = append(statements, map[string]any{
				"@type":     "xapi:Statement",
				"actor":     map[string]any{"@id": a.AgentDID},
				"verb":      a.ActionType,
				"object":    map[string]any{"@id": a.TargetURL},
				"timestamp": a.Timestamp.Format(time.RFC3339),
				"result": map[string]any{
					"statusCode": a.StatusCode,
					"strategy":   a.Strategy,
				},
			})
		}
	}
	if statements == nil {
		statements = []any{}
	}
	s.writeLD(w, http.StatusOK, map[string]any{
		"@context":   linkeddata.ContextURL,
		"@id":        s.cfg.BaseURL + "/operations/lrs/export",
		"@type":      "hydra:Collection",
		"member":     statements,
		"totalItems": len(statements),
	})
}

// handleTokenMint sells access tokens through the same 402 flow as
// checkout: the first request yields an invoice, the paid retry credits
// the wallet.
func (s *Server) handleTokenMint(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}
	var in struct {
		TokenID string `json:"tokenId"`
		Count   int64  `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.TokenID == "" {
		s.problem(w, r, KindInvalidRequest, "tokenId is required", nil)
		return
	}
	if in.Count < 1 {
		in.Count = 1
	}
	price := in.Count * tokenUnitPrice

	proof := r.Header.Get(governance.ProofHeader)
	if proof == "" {
		s.respondPaymentRequired(w, r, &governance.PaymentConstraint{
			Amount:    price,
			Currency:  wallet.DefaultCurrency,
			Recipient: s.cfg.BaseURL,
		})
		return
	}

	if _, err := s.wallets.Provision(r.Context(), id.DID); err != nil {
		s.problem(w, r, KindInternalError, "wallet provisioning failed", nil)
		return
	}
	receipt, err := s.payments.VerifyAndSettle(r.Context(), governance.SettleInput{
		Proof:     proof,
		InvoiceID: r.Header.Get(governance.InvoiceHeader),
		PayerDID:  id.DID,
		Amount:    price,
		Currency:  wallet.DefaultCurrency,
	})
	if err != nil {
		s.respondSettlementFailure(w, r, err)
		return
	}
	s.metrics.PaymentsSettled.Inc()

	state, err := s.wallets.CreditToken(r.Context(), id.DID, in.TokenID, in.Count)
	if err != nil {
		s.problem(w, r, KindInternalError, "token credit failed", nil)
		return
	}
	s.bus.Emit(events.TypeTokenMinted, "/operations/token/mint", id.DID, map[string]any{
		"token": in.TokenID, "count": in.Count,
	})
	s.writeLD(w, http.StatusCreated, map[string]any{
		"@context":            linkeddata.ContextURL,
		"@type":               "hyprcat:TokenGrant",
		"tokenId":             in.TokenID,
		"count":               in.Count,
		"balance":             state.Tokens[in.TokenID],
		"x402:paymentReceipt": receipt,
	})
}

// handleTokenBurn destroys held tokens and refunds half the mint price.
func (s *Server) handleTokenBurn(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r, false)
	if !ok {
		return
	}
	tokenID := mux.Vars(r)["tokenId"]
	if tokenID == "" {
		tokenID = r.URL.Query().Get("token")
	}
	if tokenID == "" && r.Body != nil {
		var in struct {
			TokenID string `json:"tokenId"`
		}
		if json.NewDecoder(r.Body).Decode(&in) == nil {
			tokenID = in.TokenID
		}
	}
	if tokenID == "" {
		s.problem(w, r, KindInvalidRequest, "token identifier is required", nil)
		return
	}
	count := int64(1)
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			s.problem(w, r, KindInvalidRequest, "count must be a positive integer", nil)
			return
		}
		count = parsed
	}
	state, err := s.wallets.BurnToken(r.Context(), id.DID, tokenID, count)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrInsufficientToken):
			s.problem(w, r, KindInvalidRequest, err.Error(), nil)
		case errors.Is(err, wallet.ErrNotFound):
			s.problem(w, r, KindNotFound, "no wallet provisioned for "+id.DID, nil)
		default:
			s.problem(w, r, KindInternalError, "token burn failed", nil)
		}
		return
	}
	refund := count * tokenUnitPrice / 2
	if refund > 0 {
		if refunded, err := s.wallets.Credit(r.Context(), id.DID, wallet.DefaultCurrency, refund); err == nil {
			state = refunded
		}
	}
	s.bus.Emit(events.TypeTokenBurned, "/operations/token/burn", id.DID, map[string]any{
		"token": tokenID, "count": count, "refund": refund,
	})
	s.writeLD(w, http.StatusOK, map[string]any{
		"@context": linkeddata.ContextURL,
		"@type":    "hyprcat:TokenBurn",
		"tokenId":  tokenID,
		"count":    count,
		"refund":   refund,
		"balance":  state.Tokens[tokenID],
		"balances": state.Balances,
	})
}

// respondPaymentRequired issues an invoice and writes the 402 envelope
// the client needs to retry with proof.
func (s *Server) respondPaymentRequired(w http.ResponseWriter, r *http.Request, pay *governance.PaymentConstraint) {
	inv, err := s.payments.CreateInvoice(pay.Amount, pay.Currency, pay.Recipient)
	if err != nil {
		s.problem(w, r, KindInternalError, "invoice issuance failed", nil)
		return
	}
	s.metrics.InvoicesIssued.Inc()
	w.Header().Set(governance.InvoiceHeader, inv.ID)
	s.problem(w, r, KindPaymentRequired, "payment required before this operation executes", map[string]any{
		"x402:amount":    inv.Amount,
		"x402:currency":  inv.Currency,
		"x402:recipient": inv.Recipient,
		"x402:bolt11":    inv.Bolt11,
		"invoiceId":      inv.ID,
		"expiresAt":      inv.ExpiresAt.Format(time.RFC3339),
		"paymentHeader":  governance.ProofHeader,
		"invoiceHeader":  governance.InvoiceHeader,
	})
}

func (s *Server) respondSettlementFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, governance.ErrUnknownInvoice),
		errors.Is(err, governance.ErrAmountMismatch),
		errors.Is(err, governance.ErrInvalidProof),
		errors.Is(err, wallet.ErrInsufficientFunds):
		s.problem(w, r, KindPaymentRequired, err.Error(), nil)
	case errors.Is(err, wallet.ErrNotFound):
		s.problem(w, r, KindPaymentRequired, "no wallet provisioned for payer", nil)
	default:
		s.problem(w, r, KindInternalError, "settlement failed", nil)
	}
}

// checkSideConstraints enforces the non-payment legs of a constraint
// (token gates and policies). Payment legs are handled by the 402 flow.
// Returns false after writing the response when access is denied.
func (s *Server) checkSideConstraints(w http.ResponseWriter, r *http.Request, did string, c *governance.Constraint) bool {
	switch c.Kind {
	case governance.KindTokenGate:
		verifier := &governance.WalletTokenVerifier{Wallets: s.wallets}
		held, err := governance.CheckTokenGate(r.Context(), verifier, did, *c.TokenGate)
		if err != nil || !held {
			s.problem(w, r, KindAccessDenied, "token gate not satisfied", map[string]any{
				"hyprcat:requiredToken": c.TokenGate.RequiredToken,
				"hyprcat:minBalance":    c.TokenGate.MinBalance,
			})
			return false
		}
	case governance.KindPolicy:
		req := governance.RequestContext{
			Target: r.URL.Path,
			Action: r.Method,
			Attributes: map[string]any{
				"did": did,
			},
		}
		if err := c.Policy.Evaluate(req); err != nil {
			s.problem(w, r, KindAccessDenied, err.Error(), nil)
			return false
		}
	case governance.KindComposite:
		satisfied := 0
		for i := range c.Children {
			child := c.Children[i]
			if child.Kind == governance.KindPayment {
				satisfied++ // payment leg is enforced by the 402 flow
				continue
			}
			if s.sideConstraintHolds(r, did, &child) {
				satisfied++
			} else if c.Op == governance.OpAnd {
				s.problem(w, r, KindAccessDenied, "composite constraint not satisfied", nil)
				return false
			}
		}
		if c.Op == governance.OpOr && satisfied == 0 {
			s.problem(w, r, KindAccessDenied, "composite constraint not satisfied", nil)
			return false
		}
	}
	return true
}

func (s *Server) sideConstraintHolds(r *http.Request, did string, c *governance.Constraint) bool {
	switch c.Kind {
	case governance.KindTokenGate:
		verifier := &governance.WalletTokenVerifier{Wallets: s.wallets}
		held, err := governance.CheckTokenGate(r.Context(), verifier, did, *c.TokenGate)
		return err == nil && held
	case governance.KindPolicy:
		req := governance.RequestContext{
			Target:     r.URL.Path,
			Action:     r.Method,
			Attributes: map[string]any{"did": did},
		}
		return c.Policy.Evaluate(req) == nil
	default:
		return true
	}
}

// attest records the observe/act pair on the agent's chain and returns
// the chain id, or "" when recording failed.
func (s *Server) attest(did string, observed linkeddata.Node, act provenance.Activity) string {
	if _, err := s.prov.RecordEntity(did, observed.GetString("schema:name"), map[string]any(observed)); err != nil {
		return ""
	}
	if _, err := s.prov.RecordActivity(did, act); err != nil {
		return ""
	}
	chains := s.prov.HistoryOf(did)
	if len(chains) == 0 {
		return ""
	}
	return chains[len(chains)-1].ID
}

// decrementStock lowers the product's stock counter after a sale. The
// product may be a top-level document or nested in a store's member
// list; a lookup miss is ignored since the sale already settled.
func (s *Server) decrementStock(r *http.Request, productID string) {
	ctx := r.Context()
	adjust := func(n linkeddata.Node) bool {
		stock, ok := n.GetInt("stock")
		if !ok || stock < 1 {
			return false
		}
		n.Set("stock", stock-1)
		if inv, ok := n.GetNode("schema:inventoryLevel"); ok {
			inv.Set("schema:value", stock-1)
		}
		return true
	}

	if n, err := s.store.Get(ctx, productID); err == nil {
		if adjust(n) {
			s.store.Put(ctx, productID, n)
		}
		return
	}
	ids, err := s.store.List(ctx)
	if err != nil {
		return
	}
	for _, topID := range ids {
		top, err := s.store.Get(ctx, topID)
		if err != nil {
			continue
		}
		for _, member := range top.Members() {
			if member.ID() == productID && adjust(member) {
				s.store.Put(ctx, topID, top)
				return
			}
		}
	}
}

// buyOperation finds the purchase affordance on a product node.
func buyOperation(product linkeddata.Node) (linkeddata.Operation, bool) {
	for _, op := range linkeddata.OperationsOf(product) {
		if op.ActionType == "schema:BuyAction" {
			return op, true
		}
	}
	return linkeddata.Operation{}, false
}

// paymentOf extracts the payment leg of a constraint, descending one
// level into composites.
func paymentOf(c *governance.Constraint) (*governance.PaymentConstraint, bool) {
	if c.Kind == governance.KindPayment {
		return c.Payment, true
	}
	if c.Kind == governance.KindComposite {
		for i := range c.Children {
			if c.Children[i].Kind == governance.KindPayment {
				return c.Children[i].Payment, true
			}
		}
	}
	return nil, false
}
