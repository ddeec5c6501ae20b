package execution

import (
	"context"
	"strings"
	"testing"
	"time"

	"signal-bridge/internal/risk"
)

func newSimulated(t *testing.T, rate float64) *SimulatedStrategy {
	t.Helper()
	s := NewSimulatedStrategy(SimulationConfig{SuccessRate: rate, Balance: 10000, Seed: 7}, risk.DefaultConfig())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s
}

func TestSimulatedAllFilled(t *testing.T) {
	s := newSimulated(t, 1)
	res := s.ExecuteTradeSignal(context.Background(), xauSell())
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	d := res.Details
	if d.SuccessfulTrades != 2 || d.TotalTrades != 2 {
		t.Fatalf("details = %+v", d)
	}
	if d.Volume != 0.1 || d.VolumePerTarget != 0.05 {
		t.Fatalf("volume=%v per target=%v", d.Volume, d.VolumePerTarget)
	}
	if len(d.OrderIDs) != 2 || d.OrderIDs[0] != "2001" || d.OrderIDs[1] != "2002" {
		t.Fatalf("order ids = %v", d.OrderIDs)
	}
	if res.Message != "2/2 test trades executed successfully" {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestSimulatedAllRejected(t *testing.T) {
	s := newSimulated(t, 0)
	res := s.ExecuteTradeSignal(context.Background(), xauSell())
	if res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
	if !strings.Contains(res.Error, "Simulated rejection for testing") {
		t.Fatalf("error does not name the simulated rejection: %q", res.Error)
	}
	if !strings.Contains(res.Error, "TP1") || !strings.Contains(res.Error, "TP2") {
		t.Fatalf("error does not list every target: %q", res.Error)
	}
	if len(res.Details.Failures) != 2 || res.Details.Failures[0].Retcode != 10006 {
		t.Fatalf("failures = %+v", res.Details.Failures)
	}
}

func TestSimulatedRequiresInitialize(t *testing.T) {
	s := NewSimulatedStrategy(SimulationConfig{SuccessRate: 1}, risk.DefaultConfig())
	if res := s.ExecuteTradeSignal(context.Background(), xauSell()); res.Success {
		t.Fatal("expected failure before Initialize")
	}
	s = newSimulated(t, 1)
	s.Close()
	s.Close()
	if res := s.ExecuteTradeSignal(context.Background(), xauSell()); res.Success {
		t.Fatal("expected failure after Close")
	}
}

func TestSimulatedHonoursContext(t *testing.T) {
	s := NewSimulatedStrategy(SimulationConfig{ConnectDelay: time.Hour, SuccessRate: 1}, risk.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Initialize(ctx); err == nil {
		t.Fatal("expected Initialize to fail on a cancelled context")
	}
}
