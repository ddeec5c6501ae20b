package signal

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestValidateStopLossSide(t *testing.T) {
	base := func(action Action, stop float64) TradeSignal {
		return TradeSignal{
			Symbol:    "XAUUSD",
			Action:    action,
			EntryZone: EntryZone{Min: 100, Max: 110},
			StopLoss:  stop,
			Targets:   []float64{120},
		}
	}

	tests := []struct {
		name string
		sig  TradeSignal
		want bool
	}{
		{"buy stop below zone", base(ActionBuy, 99.99), true},
		{"buy stop at zone min", base(ActionBuy, 100), false},
		{"buy stop inside zone", base(ActionBuy, 105), false},
		{"buy stop above zone", base(ActionBuy, 111), false},
		{"sell stop above zone", base(ActionSell, 110.01), true},
		{"sell stop at zone max", base(ActionSell, 110), false},
		{"sell stop inside zone", base(ActionSell, 105), false},
		{"sell stop below zone", base(ActionSell, 90), false},
		{"nan stop", base(ActionBuy, math.NaN()), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.sig); got != tt.want {
				t.Fatalf("Validate=%v, want %v (%v)", got, tt.want, Check(tt.sig))
			}
		})
	}
}

func TestCheckRuleOrder(t *testing.T) {
	valid := TradeSignal{
		Symbol:    "XAUUSD",
		Action:    ActionSell,
		EntryZone: EntryZone{Min: 3345, Max: 3351},
		StopLoss:  3367,
		Targets:   []float64{3312.43},
	}
	if err := Check(valid); err != nil {
		t.Fatalf("Check(valid) = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*TradeSignal)
		substr string
	}{
		{"missing symbol", func(s *TradeSignal) { s.Symbol = "" }, "symbol"},
		{"unknown action", func(s *TradeSignal) { s.Action = "HOLD" }, "action"},
		{"inverted zone", func(s *TradeSignal) { s.EntryZone = EntryZone{Min: 3351, Max: 3345} }, "entry zone"},
		{"flat zone", func(s *TradeSignal) { s.EntryZone = EntryZone{Min: 3351, Max: 3351} }, "entry zone"},
		{"no targets", func(s *TradeSignal) { s.Targets = nil }, "targets"},
		{"stop wrong side", func(s *TradeSignal) { s.StopLoss = 3340 }, "stop loss"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := valid
			sig.Targets = append([]float64(nil), valid.Targets...)
			tt.mutate(&sig)
			err := Check(sig)
			if !errors.Is(err, ErrInvalidSignal) {
				t.Fatalf("expected ErrInvalidSignal, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Fatalf("error %q does not mention %q", err, tt.substr)
			}
		})
	}
}

func TestEntryPrice(t *testing.T) {
	zone := EntryZone{Min: 3345, Max: 3351}
	if got := (TradeSignal{Action: ActionBuy, EntryZone: zone}).EntryPrice(); got != 3351 {
		t.Fatalf("BUY entry = %v", got)
	}
	if got := (TradeSignal{Action: ActionSell, EntryZone: zone}).EntryPrice(); got != 3345 {
		t.Fatalf("SELL entry = %v", got)
	}
}

func TestSummary(t *testing.T) {
	sig, err := Parse(xauSell)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out := sig.Summary()
	for _, want := range []string{"XAUUSD", "SELL", "3345 - 3351", "Stop Loss: 3367", "Target 2: 3295.385"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
