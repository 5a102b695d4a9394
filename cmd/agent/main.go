package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyprcat/gateway/internal/identity"
	"github.com/hyprcat/gateway/internal/linkeddata"
	"github.com/hyprcat/gateway/internal/provenance"
	"github.com/hyprcat/gateway/pkg/agent"
	"github.com/hyprcat/gateway/pkg/agent/strategy"
	"github.com/hyprcat/gateway/pkg/navigator"
)

func main() {
	var (
		gateway    = flag.String("gateway", "http://localhost:8402", "gateway base URL")
		did        = flag.String("did", "did:key:z6MkDemoAgent", "agent DID")
		iterations = flag.Int("iterations", 6, "maximum loop iterations")
		delay      = flag.Duration("delay", 200*time.Millisecond, "pause between iterations")
		budget     = flag.Int64("budget", 10_000, "local spend budget in sats")
		maxPrice   = flag.Int64("max-price", 5_000, "per-item price cap in sats")
		autopay    = flag.Bool("autopay", true, "settle 402 demands automatically")
		mode       = flag.String("strategy", "all", "strategy set: retail, analytics, or all")
		query      = flag.String("query", "", "override the analytics query text")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	log := zap.NewNop()
	if *verbose {
		log, _ = zap.NewDevelopment()
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	nav := navigator.New(navigator.WithLogger(log))
	nav.SetHeader("X-Agent-DID", *did)
	if err := authenticate(ctx, nav, *gateway, *did); err != nil {
		fmt.Fprintln(os.Stderr, "authentication failed:", err)
		os.Exit(1)
	}

	reg := strategy.NewRegistry()
	switch *mode {
	case "retail":
		reg.Register(strategy.Retail{})
	case "analytics":
		reg.Register(strategy.Analytics{Query: *query})
	default:
		reg.Register(strategy.Retail{})
		reg.Register(strategy.Analytics{Query: *query})
	}

	attestor := provenance.NewService(nil)
	rt := agent.New(agent.Config{
		AgentDID:         *did,
		StartURL:         *gateway + "/catalog",
		MaxIterations:    *iterations,
		IterationDelay:   *delay,
		AutoPayEnabled:   *autopay,
		AutoPayMaxAmount: *maxPrice,
		Budget:           *budget,
		MaxPrice:         *maxPrice,
	}, nav, reg, attestor, log)

	runErr := rt.Run(ctx)

	fmt.Printf("state: %s after %d iterations\n", rt.State(), rt.Iterations())
	if reason := rt.LastReason(); reason != "" {
		fmt.Println("last decision:", reason)
	}
	printProvenance(attestor, *did)

	if runErr != nil {
		fmt.Fprintln(os.Stderr, "run ended with error:", runErr)
		os.Exit(1)
	}
}

// authenticate walks the challenge flow with a simulated signature and
// pins the resulting session token onto every subsequent request. The
// gateway accepts simulated signatures only in dev mode.
func authenticate(ctx context.Context, nav *navigator.Client, gateway, did string) error {
	challengeOp := linkeddata.Operation{Method: http.MethodPost, Target: gateway + "/auth/challenge"}
	challenge, _, err := nav.ExecuteOperation(ctx, challengeOp, "", map[string]any{"did": did}, nil)
	if err != nil {
		return err
	}
	nonce := challenge.GetString("nonce")

	verifyOp := linkeddata.Operation{Method: http.MethodPost, Target: gateway + "/auth/verify"}
	session, _, err := nav.ExecuteOperation(ctx, verifyOp, "", map[string]any{
		"did":       did,
		"nonce":     nonce,
		"signature": identity.SimulatedSignaturePrefix + "-" + nonce,
	}, nil)
	if err != nil {
		return err
	}
	token := session.GetString("token")
	if token == "" {
		return fmt.Errorf("verify response carried no token")
	}
	nav.SetHeader("Authorization", "Bearer "+token)
	return nil
}

// printProvenance dumps the agent's last chain as linked data.
func printProvenance(attestor *provenance.Service, did string) {
	chains := attestor.HistoryOf(did)
	if len(chains) == 0 {
		return
	}
	doc, err := attestor.Export(chains[len(chains)-1].ID, provenance.EncodingLinkedData)
	if err != nil {
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(doc)
}
