// Package agent is the autonomous client runtime. Each iteration runs
// the observe/negotiate/attest loop: dereference the current resource,
// let the registered strategies propose an action, execute or navigate,
// and append the outcome to the agent's provenance chain.
package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyprcat/gateway/internal/governance"
	"github.com/hyprcat/gateway/internal/linkeddata"
	"github.com/hyprcat/gateway/internal/provenance"
	"github.com/hyprcat/gateway/pkg/agent/strategy"
	"github.com/hyprcat/gateway/pkg/navigator"
)

// Runtime states.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateErrored   State = "errored"
)

// Attestor records the agent's provenance. *provenance.Service satisfies
// it; remote implementations can stand in behind the same surface.
type Attestor interface {
	RecordEntity(did, label string, snapshot map[string]any) (*provenance.Entity, error)
	RecordActivity(did string, a provenance.Activity) (*provenance.Activity, error)
	Seal(did string) error
}

// Config tunes one agent run.
type Config struct {
	AgentDID       string
	StartURL       string
	MaxIterations  int
	IterationDelay time.Duration

	// AutoPayEnabled lets the runtime settle 402 demands without asking.
	AutoPayEnabled bool
	// AutoPayMaxAmount caps a single automatic payment; zero means no cap.
	AutoPayMaxAmount int64
	// Budget is the local spend estimate the strategies consult.
	Budget int64
	// MaxPrice caps what the retail strategy pays per item.
	MaxPrice int64
}

// Runtime drives one agent.
type Runtime struct {
	cfg        Config
	nav        *navigator.Client
	strategies *strategy.Registry
	attestor   Attestor
	log        *zap.Logger

	mu         sync.Mutex
	state      State
	paused     bool
	stopped    bool
	balance    int64
	iterations int
	lastReason string
}

// New creates a runtime. attestor may be nil, in which case provenance
// recording is skipped.
func New(cfg Config, nav *navigator.Client, reg *strategy.Registry, attestor Attestor, log *zap.Logger) *Runtime {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		cfg:        cfg,
		nav:        nav,
		strategies: reg,
		attestor:   attestor,
		log:        log,
		state:      StateIdle,
		balance:    cfg.Budget,
	}
}

// State returns the runtime state.
func (rt *Runtime) State() State {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// Iterations returns how many loop turns have completed.
func (rt *Runtime) Iterations() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.iterations
}

// LastReason returns the most recent strategy reasoning, for logs and
// CLIs.
func (rt *Runtime) LastReason() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.lastReason
}

// Pause suspends the loop before its next iteration.
func (rt *Runtime) Pause() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.state == StateRunning {
		rt.paused = true
		rt.state = StatePaused
	}
}

// Resume releases a paused loop.
func (rt *Runtime) Resume() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.state == StatePaused {
		rt.paused = false
		rt.state = StateRunning
	}
}

// Stop ends the run after the current iteration.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.stopped = true
}

// Run executes the loop until completion, the iteration cap, an error,
// or cancellation. The agent's chain is sealed on the way out.
func (rt *Runtime) Run(ctx context.Context) error {
	rt.setState(StateRunning)
	defer func() {
		if rt.attestor != nil {
			rt.attestor.Seal(rt.cfg.AgentDID)
		}
	}()

	current := rt.cfg.StartURL
	for i := 0; i < rt.cfg.MaxIterations; i++ {
		if err := rt.waitIfPaused(ctx); err != nil {
			return err
		}
		if rt.isStopped() {
			rt.setState(StateCompleted)
			return nil
		}

		next, done, err := rt.iterate(ctx, current)
		rt.mu.Lock()
		rt.iterations++
		rt.mu.Unlock()
		if err != nil {
			rt.setState(StateErrored)
			return err
		}
		if done {
			rt.setState(StateCompleted)
			return nil
		}
		current = next

		if rt.cfg.IterationDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rt.cfg.IterationDelay):
			}
		}
	}
	rt.setState(StateCompleted)
	return nil
}

// iterate runs one observe/negotiate/attest turn. It returns the next
// URL to visit and whether the run is finished.
func (rt *Runtime) iterate(ctx context.Context, url string) (string, bool, error) {
	// Observe.
	node, err := rt.nav.Fetch(ctx, url)
	if err != nil {
		return "", false, fmt.Errorf("agent: observe %s: %w", url, err)
	}
	rt.recordEntity(node)

	// Negotiate.
	sit := strategy.Situation{
		Resource: node,
		Balance:  rt.currentBalance(),
		MaxPrice: rt.cfg.MaxPrice,
		Visited:  rt.nav.HasVisited,
	}
	decision, ok := rt.strategies.Decide(ctx, sit)
	if ok {
		rt.noteReason(decision.Reason)
		if decision.ShouldExecute {
			return url, false, rt.execute(ctx, url, node, decision)
		}
		if decision.NavigateTo != "" {
			return decision.NavigateTo, false, nil
		}
	}

	// No strategy fired: follow the first unvisited member link, or stop.
	for _, m := range node.Members() {
		if id := m.ID(); id != "" && !rt.nav.HasVisited(id) {
			return id, false, nil
		}
	}
	return "", true, nil
}

// execute runs the chosen affordance, settling a payment demand once
// when auto-pay allows, then attests the outcome.
func (rt *Runtime) execute(ctx context.Context, url string, node linkeddata.Node, d strategy.Decision) error {
	started := time.Now()
	result, status, err := rt.nav.ExecuteOperation(ctx, d.Operation, url, d.Input, nil)

	var payErr *navigator.PaymentRequiredError
	if errors.As(err, &payErr) {
		amount := payErr.Amount()
		if !rt.canAutoPay(amount) {
			rt.attestActivity(d, status, time.Since(started))
			return fmt.Errorf("agent: payment of %d demanded at %s, auto-pay declined", amount, url)
		}
		proof, proofErr := paymentProof()
		if proofErr != nil {
			return proofErr
		}
		result, status, err = rt.nav.ExecuteOperation(ctx, d.Operation, url, d.Input, map[string]string{
			governance.ProofHeader:   proof,
			governance.InvoiceHeader: payErr.InvoiceID(),
		})
		if err == nil {
			rt.debit(amount)
			rt.log.Info("payment settled",
				zap.Int64("amount", amount),
				zap.String("target", d.Operation.Target))
		}
	}
	if err != nil {
		rt.attestActivity(d, status, time.Since(started))
		return fmt.Errorf("agent: execute %s: %w", d.Operation.Target, err)
	}

	// Attest: the activity, then its result as the new current entity.
	rt.attestActivity(d, statusOrOK(status), time.Since(started))
	if result != nil {
		rt.recordEntity(result)
	}
	return nil
}

func (rt *Runtime) recordEntity(n linkeddata.Node) {
	if rt.attestor == nil {
		return
	}
	label := n.GetString("schema:name")
	if label == "" {
		label = n.GetString("hydra:title")
	}
	if label == "" {
		label = n.ID()
	}
	if _, err := rt.attestor.RecordEntity(rt.cfg.AgentDID, label, map[string]any(n.Clone())); err != nil {
		rt.log.Warn("entity record failed", zap.Error(err))
	}
}

func (rt *Runtime) attestActivity(d strategy.Decision, status int, elapsed time.Duration) {
	if rt.attestor == nil {
		return
	}
	_, err := rt.attestor.RecordActivity(rt.cfg.AgentDID, provenance.Activity{
		Label:      d.Reason,
		ActionType: d.Operation.ActionType,
		Payload:    d.Input,
		Strategy:   d.Strategy,
		Method:     d.Operation.Method,
		TargetURL:  d.Operation.Target,
		StatusCode: status,
		Duration:   elapsed,
	})
	if err != nil {
		rt.log.Warn("activity record failed", zap.Error(err))
	}
}

func (rt *Runtime) canAutoPay(amount int64) bool {
	if !rt.cfg.AutoPayEnabled || amount <= 0 {
		return false
	}
	if rt.cfg.AutoPayMaxAmount > 0 && amount > rt.cfg.AutoPayMaxAmount {
		return false
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.cfg.Budget == 0 || rt.balance >= amount
}

func (rt *Runtime) debit(amount int64) {
	rt.mu.Lock()
	rt.balance -= amount
	rt.mu.Unlock()
}

func (rt *Runtime) currentBalance() int64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.balance
}

func (rt *Runtime) noteReason(reason string) {
	rt.mu.Lock()
	rt.lastReason = reason
	rt.mu.Unlock()
}

func (rt *Runtime) setState(s State) {
	rt.mu.Lock()
	rt.state = s
	rt.mu.Unlock()
}

func (rt *Runtime) isStopped() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.stopped
}

func (rt *Runtime) waitIfPaused(ctx context.Context) error {
	for {
		rt.mu.Lock()
		paused := rt.paused
		rt.mu.Unlock()
		if !paused {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// paymentProof generates the opaque 64-hex proof the simulated payment
// network accepts.
func paymentProof() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("agent: proof generation: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func statusOrOK(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}
