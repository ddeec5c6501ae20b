package execution

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"signal-bridge/internal/broker"
	"signal-bridge/internal/risk"
	"signal-bridge/internal/signal"
)

const simulatedRejection = "Simulated rejection for testing"

// SimulationConfig tunes the synthetic executor.
type SimulationConfig struct {
	ConnectDelay time.Duration
	OrderDelay   time.Duration // per target
	SuccessRate  float64       // probability each target fills, 0..1
	Balance      float64
	Seed         int64 // 0 seeds from the clock
}

// DefaultSimulationConfig returns the stock simulation settings.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		ConnectDelay: time.Second,
		OrderDelay:   500 * time.Millisecond,
		SuccessRate:  0.95,
		Balance:      10000,
	}
}

// SimulatedStrategy fakes fills so callers can exercise both the success
// and failure branches without a broker.
type SimulatedStrategy struct {
	cfg  SimulationConfig
	risk risk.Config

	mu        sync.Mutex
	rng       *rand.Rand
	connected bool
	ticket    int64
}

func NewSimulatedStrategy(cfg SimulationConfig, riskCfg risk.Config) *SimulatedStrategy {
	if cfg.SuccessRate < 0 {
		cfg.SuccessRate = 0
	}
	if cfg.SuccessRate > 1 {
		cfg.SuccessRate = 1
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedStrategy{
		cfg:    cfg,
		risk:   riskCfg,
		rng:    rand.New(rand.NewSource(seed)),
		ticket: 2000,
	}
}

func (s *SimulatedStrategy) Name() string { return string(ModeSimulation) }

func (s *SimulatedStrategy) Initialize(ctx context.Context) error {
	if err := sleepCtx(ctx, s.cfg.ConnectDelay); err != nil {
		return &ConnectivityError{Backend: "simulation", Err: err}
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	log.Printf("🧪 Simulated executor connected (balance %.2f, fill rate %.0f%%)", s.cfg.Balance, s.cfg.SuccessRate*100)
	return nil
}

func (s *SimulatedStrategy) ExecuteTradeSignal(ctx context.Context, sig signal.TradeSignal) Result {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return failure("Simulated executor not connected")
	}
	if err := signal.Check(sig); err != nil {
		log.Printf("❌ Simulation refused signal: %v", err)
		return failure("Invalid trade signal")
	}

	volume := risk.SizeForAccount(sig, s.risk, s.cfg.Balance)
	perTarget, count := risk.SplitVolume(volume, len(sig.Targets), s.risk)
	details := newDetails(sig, volume, perTarget)

	for i, tp := range sig.Targets[:count] {
		if err := sleepCtx(ctx, s.cfg.OrderDelay); err != nil {
			details.Failures = append(details.Failures, TargetFailure{Target: i + 1, TakeProfit: tp, Reason: "cancelled"})
			continue
		}
		ticket, ok := s.fill()
		if !ok {
			details.Failures = append(details.Failures, TargetFailure{
				Target: i + 1, TakeProfit: tp, Reason: simulatedRejection, Retcode: broker.RetcodeReject,
			})
			continue
		}
		details.OrderIDs = append(details.OrderIDs, strconv.FormatInt(ticket, 10))
		details.SuccessfulTrades++
		log.Printf("🧪 Simulated %s %s %.2f TP%d=%v ticket=%d", sig.Action, sig.Symbol, perTarget, i+1, tp, ticket)
	}
	details.skipTargets(sig, count)

	if details.SuccessfulTrades == 0 {
		return Result{
			Success: false,
			Error:   aggregate("All test trades failed (simulated)", details.Failures),
			Details: details,
		}
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("%d/%d test trades executed successfully", details.SuccessfulTrades, details.TotalTrades),
		Details: details,
	}
}

func (s *SimulatedStrategy) fill() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng.Float64() >= s.cfg.SuccessRate {
		return 0, false
	}
	s.ticket++
	return s.ticket, true
}

func (s *SimulatedStrategy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}
