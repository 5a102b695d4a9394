package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyprcat/gateway/internal/catalog"
	"github.com/hyprcat/gateway/internal/config"
	"github.com/hyprcat/gateway/internal/events"
	"github.com/hyprcat/gateway/internal/federation"
	"github.com/hyprcat/gateway/internal/governance"
	"github.com/hyprcat/gateway/internal/identity"
	"github.com/hyprcat/gateway/internal/provenance"
	"github.com/hyprcat/gateway/internal/store"
	"github.com/hyprcat/gateway/internal/wallet"
)

const (
	buyerDID   = "did:key:z6MkBuyerForTests"
	validProof = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
)

type gateway struct {
	srv     *Server
	ts      *httptest.Server
	base    string
	wallets *wallet.Store
}

// newGateway stands up a full server over an httptest listener. The base
// URL has to match the listener address so seeded IRIs dereference, so
// the handler is swapped in after the listener is up.
func newGateway(t *testing.T, mutate func(*config.Config)) *gateway {
	t.Helper()
	log := zap.NewNop()

	var handler http.Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	cfg := &config.Config{
		Host:                  "127.0.0.1",
		Port:                  "0",
		BaseURL:               ts.URL,
		CORSOrigins:           []string{"*"},
		RateLimitWindow:       time.Minute,
		RateLimitMax:          1000,
		RequestTimeout:        10 * time.Second,
		EnableSecurityHeaders: true,
		StorageBackend:        config.BackendMemory,
		JWTSecret:             "test-jwt-secret",
		PaymentSecret:         "test-payment-secret",
		DevMode:               true,
	}
	if mutate != nil {
		mutate(cfg)
	}

	st := store.NewMemoryStore()
	bus := events.NewBus()
	wallets := wallet.NewStore(nil)
	ident := identity.NewService(cfg.JWTSecret, cfg.DevMode, log, func(ctx context.Context, did string) {
		_, _ = wallets.Provision(ctx, did)
	})
	payments := governance.NewPaymentService(cfg.PaymentSecret, wallets, bus, log)
	cat := catalog.NewService(st, cfg.BaseURL, log)
	require.NoError(t, cat.Seed(context.Background()))

	srv := New(Deps{
		Config:   cfg,
		Log:      log,
		Store:    st,
		Catalog:  cat,
		Identity: ident,
		Wallets:  wallets,
		Payments: payments,
		Fed:      federation.NewEngine(log, bus),
		Prov:     provenance.NewService(bus),
		Bus:      bus,
	})
	handler = srv.Handler()
	return &gateway{srv: srv, ts: ts, base: ts.URL, wallets: wallets}
}

func (g *gateway) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, g.base+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := g.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var doc map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &doc), "body: %s", raw)
	}
	return resp, doc
}

func asBuyer(extra map[string]string) map[string]string {
	h := map[string]string{HeaderAgentDID: buyerDID}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func TestDiscoveryHeadersAndServiceDescription(t *testing.T) {
	g := newGateway(t, nil)

	resp, doc := g.do(t, http.MethodGet, "/.well-known/hyprcat", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/ld+json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "1.0.0", resp.Header.Get(HeaderVersion))
	assert.NotEmpty(t, resp.Header.Get(HeaderTraceID))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	links := strings.Join(resp.Header.Values("Link"), "\n")
	assert.Contains(t, links, `rel="service-desc"`)
	assert.Contains(t, links, "core#catalog")

	assert.Equal(t, "hyprcat:ServiceDescription", doc["@type"])
	assert.Equal(t, g.base+"/catalog", doc["hydra:entrypoint"])
}

func TestCatalogDocumentAndSearch(t *testing.T) {
	g := newGateway(t, nil)

	resp, doc := g.do(t, http.MethodGet, "/catalog", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 4, doc["totalItems"])

	resp, doc = g.do(t, http.MethodGet, "/catalog?domain=retail", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hydra:Collection", doc["@type"])
	members := doc["member"].([]any)
	require.Len(t, members, 1)
	assert.Equal(t, g.base+"/nodes/store/quantum-goods", members[0].(map[string]any)["@id"])

	_, doc = g.do(t, http.MethodGet, "/catalog?q=federated", nil, nil)
	members = doc["member"].([]any)
	require.Len(t, members, 1)
	assert.Equal(t, g.base+"/nodes/graph/market-insights", members[0].(map[string]any)["@id"])
}

func TestNodeDereferencingIncludingNestedProducts(t *testing.T) {
	g := newGateway(t, nil)

	resp, doc := g.do(t, http.MethodGet, "/nodes/store/quantum-goods", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Quantum Goods", doc["schema:name"])

	// Products only exist inside the store's member list.
	resp, doc = g.do(t, http.MethodGet, "/nodes/product/ion-cell", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ion storage cell", doc["schema:name"])

	resp, doc = g.do(t, http.MethodGet, "/nodes/product/phantom", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, KindNotFound, doc["type"])
}

func TestContentNegotiationRejectsNonJSON(t *testing.T) {
	g := newGateway(t, nil)
	resp, doc := g.do(t, http.MethodGet, "/catalog", nil, map[string]string{"Accept": "text/html"})
	assert.Equal(t, http.StatusNotAcceptable, resp.StatusCode)
	assert.Equal(t, KindNotAcceptable, doc["type"])

	resp, _ = g.do(t, http.MethodGet, "/catalog", nil, map[string]string{"Accept": "application/ld+json"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterResource(t *testing.T) {
	g := newGateway(t, nil)

	resp, doc := g.do(t, http.MethodPost, "/nodes", map[string]any{"schema:name": "typeless"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, KindValidationError, doc["type"])
	paths := doc["hyprcat:paths"].([]any)
	assert.Contains(t, paths, "@id")
	assert.Contains(t, paths, "@type")

	node := map[string]any{
		"@id":         g.base + "/nodes/dataset/tides",
		"@type":       "dcat:Dataset",
		"schema:name": "Tidal observations",
	}
	resp, _ = g.do(t, http.MethodPost, "/nodes", node, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// The catalog now lists the new resource.
	_, doc = g.do(t, http.MethodGet, "/catalog", nil, nil)
	assert.EqualValues(t, 5, doc["totalItems"])

	resp, doc = g.do(t, http.MethodGet, "/nodes/dataset/tides", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Tidal observations", doc["schema:name"])
}

func TestAuthFlow(t *testing.T) {
	g := newGateway(t, nil)
	did := "did:key:z6MkAuthFlowAgent"

	resp, doc := g.do(t, http.MethodPost, "/auth/challenge", map[string]any{"did": did}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "hyprcat:AuthChallenge", doc["@type"])
	nonce := doc["nonce"].(string)
	require.NotEmpty(t, nonce)
	assert.Equal(t, g.base+"/auth/verify", doc["hyprcat:verifyEndpoint"])

	verify := map[string]any{
		"did":       did,
		"nonce":     nonce,
		"signature": identity.SimulatedSignaturePrefix + "-" + nonce,
	}
	resp, doc = g.do(t, http.MethodPost, "/auth/verify", verify, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := doc["token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, "Bearer", doc["tokenType"])
	assert.Equal(t, "agent", doc["scope"])

	// The nonce is consumed; replaying the exchange fails.
	resp, doc = g.do(t, http.MethodPost, "/auth/verify", verify, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, KindAuthFailed, doc["type"])

	// The profile route needs a verified identity, not just attribution.
	resp, doc = g.do(t, http.MethodGet, "/auth/profile", nil, map[string]string{HeaderAgentDID: did})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, g.base+"/auth/challenge", doc["hyprcat:challengeEndpoint"])

	resp, doc = g.do(t, http.MethodGet, "/auth/profile", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, did, doc["did"])
	assert.Equal(t, "bearer", doc["hyprcat:authMethod"])

	// Verification provisioned a funded wallet.
	resp, doc = g.do(t, http.MethodGet, "/wallet", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	balances := doc["balances"].(map[string]any)
	assert.EqualValues(t, wallet.InitialBalance, balances[wallet.DefaultCurrency])
}

func TestWalletRequiresProvisioning(t *testing.T) {
	g := newGateway(t, nil)
	resp, doc := g.do(t, http.MethodGet, "/wallet", nil, asBuyer(nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, KindNotFound, doc["type"])
}

func TestCheckoutPaymentFlow(t *testing.T) {
	g := newGateway(t, nil)
	productID := g.base + "/nodes/product/murmur-sensor"
	order := map[string]any{"hyprcat:product": productID, "schema:price": 100}

	// First attempt: no proof, so the gateway issues an invoice.
	resp, doc := g.do(t, http.MethodPost, "/operations/checkout", order, asBuyer(nil))
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, KindPaymentRequired, doc["type"])
	assert.EqualValues(t, 100, doc["x402:amount"])
	assert.Contains(t, doc["x402:bolt11"], "lnsimhyprcat1")
	invoiceID := doc["invoiceId"].(string)
	assert.Equal(t, invoiceID, resp.Header.Get(governance.InvoiceHeader))

	// Paid retry settles and creates the order.
	resp, doc = g.do(t, http.MethodPost, "/operations/checkout", order, asBuyer(map[string]string{
		governance.ProofHeader:   validProof,
		governance.InvoiceHeader: invoiceID,
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "schema:Order", doc["@type"])
	assert.EqualValues(t, 100, doc["schema:price"])
	assert.Equal(t, map[string]any{"@id": buyerDID}, doc["schema:customer"])
	assert.NotNil(t, doc["x402:paymentReceipt"])

	chainID := resp.Header.Get(HeaderProvenanceID)
	assert.NotEmpty(t, chainID)
	assert.Contains(t, strings.Join(resp.Header.Values("Link"), "\n"), "prov#has_provenance")

	// The sale debited the wallet and decremented stock.
	s, err := g.wallets.Get(context.Background(), buyerDID)
	require.NoError(t, err)
	assert.EqualValues(t, wallet.InitialBalance-100, s.Balances[wallet.DefaultCurrency])

	_, doc = g.do(t, http.MethodGet, "/nodes/product/murmur-sensor", nil, nil)
	assert.EqualValues(t, 39, doc["stock"])

	// The chain is exported as a prov bundle with the purchase on it.
	resp, doc = g.do(t, http.MethodGet, "/provenance/chains/"+chainID, nil, asBuyer(nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "prov:Bundle", doc["@type"])
	members := doc["member"].([]any)
	require.Len(t, members, 2)
	assert.Equal(t, "prov:Entity", members[0].(map[string]any)["@type"])
	activity := members[1].(map[string]any)
	assert.Equal(t, "schema:BuyAction", activity["hyprcat:actionType"])
	assert.EqualValues(t, http.StatusCreated, activity["hyprcat:statusCode"])
}

func TestCheckoutByPriceAlone(t *testing.T) {
	g := newGateway(t, nil)
	body := map[string]any{"schema:price": "100"}

	resp, doc := g.do(t, http.MethodPost, "/operations/checkout", body, asBuyer(nil))
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.EqualValues(t, 100, doc["x402:amount"])
	assert.Contains(t, doc["x402:bolt11"], "lnsimhyprcat1")
	invoiceID := doc["invoiceId"].(string)

	resp, doc = g.do(t, http.MethodPost, "/operations/checkout", body, asBuyer(map[string]string{
		governance.ProofHeader:   validProof,
		governance.InvoiceHeader: invoiceID,
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "schema:Order", doc["@type"])
	assert.EqualValues(t, 100, doc["schema:price"])
	assert.NotNil(t, doc["x402:paymentReceipt"])

	s, err := g.wallets.Get(context.Background(), buyerDID)
	require.NoError(t, err)
	assert.EqualValues(t, wallet.InitialBalance-100, s.Balances[wallet.DefaultCurrency])

	// Neither a product nor a price in the body is a 400.
	resp, doc = g.do(t, http.MethodPost, "/operations/checkout", map[string]any{}, asBuyer(nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, KindInvalidRequest, doc["type"])
}

func TestCheckoutValidationAndFailureModes(t *testing.T) {
	g := newGateway(t, nil)
	productID := g.base + "/nodes/product/ion-cell"

	// Anonymous callers are told how to authenticate.
	resp, doc := g.do(t, http.MethodPost, "/operations/checkout",
		map[string]any{"hyprcat:product": productID, "schema:price": 3500}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, KindAuthRequired, doc["type"])

	// The buy affordance requires schema:price.
	resp, doc = g.do(t, http.MethodPost, "/operations/checkout",
		map[string]any{"hyprcat:product": productID}, asBuyer(nil))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, doc["hyprcat:paths"].([]any), "schema:price")

	resp, doc = g.do(t, http.MethodPost, "/operations/checkout",
		map[string]any{"hyprcat:product": g.base + "/nodes/product/phantom", "schema:price": 1}, asBuyer(nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// A malformed proof fails settlement and consumes the invoice.
	order := map[string]any{"hyprcat:product": productID, "schema:price": 3500}
	resp, doc = g.do(t, http.MethodPost, "/operations/checkout", order, asBuyer(nil))
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	invoiceID := doc["invoiceId"].(string)

	resp, doc = g.do(t, http.MethodPost, "/operations/checkout", order, asBuyer(map[string]string{
		governance.ProofHeader:   "short",
		governance.InvoiceHeader: invoiceID,
	}))
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, KindPaymentRequired, doc["type"])
}

func TestFederatedQuery(t *testing.T) {
	g := newGateway(t, nil)

	resp, doc := g.do(t, http.MethodPost, "/operations/query", map[string]any{
		"schema:query": "SELECT user_id, total_spend FROM analytics WHERE total_spend > 500 ORDER BY total_spend DESC LIMIT 3",
	}, asBuyer(nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "czero:ResultSet", doc["@type"])
	assert.EqualValues(t, 3, doc["totalResults"])
	items := doc["items"].([]any)
	assert.Equal(t, "u-1004", items[0].(map[string]any)["user_id"])
	assert.NotEmpty(t, resp.Header.Get(HeaderProvenanceID))

	// Missing and malformed queries both map to 422.
	resp, doc = g.do(t, http.MethodPost, "/operations/query", map[string]any{}, asBuyer(nil))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, []any{"schema:query"}, doc["hyprcat:paths"])

	resp, doc = g.do(t, http.MethodPost, "/operations/query", map[string]any{
		"schema:query": "DROP TABLE analytics",
	}, asBuyer(nil))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, KindValidationError, doc["type"])
}

func TestLRSExport(t *testing.T) {
	g := newGateway(t, nil)

	_, _ = g.do(t, http.MethodPost, "/operations/query", map[string]any{
		"schema:query": "SELECT * FROM inventory",
	}, asBuyer(nil))

	resp, doc := g.do(t, http.MethodGet, "/operations/lrs/export", nil, asBuyer(nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hydra:Collection", doc["@type"])
	members := doc["member"].([]any)
	require.Len(t, members, 1)
	stmt := members[0].(map[string]any)
	assert.Equal(t, "xapi:Statement", stmt["@type"])
	assert.Equal(t, "czero:QueryAction", stmt["verb"])
	assert.Equal(t, map[string]any{"@id": buyerDID}, stmt["actor"])
}

func TestTokenMintAndBurn(t *testing.T) {
	g := newGateway(t, nil)
	mint := map[string]any{"tokenId": "hyprcat:premium", "count": 2}

	resp, doc := g.do(t, http.MethodPost, "/operations/token/mint", mint, asBuyer(nil))
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.EqualValues(t, 500, doc["x402:amount"])
	invoiceID := doc["invoiceId"].(string)

	resp, doc = g.do(t, http.MethodPost, "/operations/token/mint", mint, asBuyer(map[string]string{
		governance.ProofHeader:   validProof,
		governance.InvoiceHeader: invoiceID,
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "hyprcat:TokenGrant", doc["@type"])
	assert.EqualValues(t, 2, doc["balance"])

	resp, doc = g.do(t, http.MethodDelete, "/operations/token/burn?token=hyprcat:premium&count=1", nil, asBuyer(nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hyprcat:TokenBurn", doc["@type"])
	assert.EqualValues(t, 125, doc["refund"])
	assert.EqualValues(t, 1, doc["balance"])

	// The collection-style alias resolves the same handler.
	resp, doc = g.do(t, http.MethodDelete, "/operations/tokens/hyprcat:premium?count=9", nil, asBuyer(nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, KindInvalidRequest, doc["type"])

	resp, doc = g.do(t, http.MethodDelete, "/operations/token/burn", nil, asBuyer(nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, KindInvalidRequest, doc["type"])
}

func TestRateLimiting(t *testing.T) {
	g := newGateway(t, func(cfg *config.Config) { cfg.RateLimitMax = 2 })

	for i := 0; i < 2; i++ {
		resp, _ := g.do(t, http.MethodGet, "/catalog", nil, asBuyer(nil))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, doc := g.do(t, http.MethodGet, "/catalog", nil, asBuyer(nil))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, KindRateLimited, doc["type"])
	assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Infra endpoints are exempt.
	resp, _ = g.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProvenanceHistory(t *testing.T) {
	g := newGateway(t, nil)
	for i := 0; i < 2; i++ {
		_, _ = g.do(t, http.MethodPost, "/operations/query", map[string]any{
			"schema:query": "SELECT * FROM telemetry",
		}, asBuyer(nil))
	}

	resp, doc := g.do(t, http.MethodGet, "/provenance/history", nil, asBuyer(nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	members := doc["member"].([]any)
	require.Len(t, members, 1) // both queries land on the same open chain
	chain := members[0].(map[string]any)
	assert.EqualValues(t, 4, chain["hyprcat:items"])
	assert.Equal(t, false, chain["hyprcat:sealed"])

	resp, doc = g.do(t, http.MethodGet, "/provenance/chains/urn:uuid:missing", nil, asBuyer(nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInfraEndpoints(t *testing.T) {
	g := newGateway(t, nil)

	resp, doc := g.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", doc["status"])
	assert.Equal(t, Version, doc["version"])

	resp, doc = g.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", doc["status"])

	resp, doc = g.do(t, http.MethodGet, "/stats", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 7, doc["resources"])
	assert.Len(t, doc["federatedSources"], 4)

	metricsResp, err := g.ts.Client().Get(g.base + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	raw, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	g := newGateway(t, nil)

	resp, doc := g.do(t, http.MethodGet, "/no/such/route", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, KindNotFound, doc["type"])

	resp, doc = g.do(t, http.MethodDelete, "/catalog", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, KindMethodNotAllowed, doc["type"])
}
