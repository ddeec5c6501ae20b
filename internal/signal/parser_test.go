package signal

import (
	"errors"
	"reflect"
	"testing"
)

const xauSell = "#XAUUSD Sell Setup Selling Zone: 3345 - 3351 Stop Loss: 3367 Target 1: 3312.430 Target 2: 3295.385"

func TestParseSellSetup(t *testing.T) {
	sig, err := Parse(xauSell)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := TradeSignal{
		Symbol:    "XAUUSD",
		Action:    ActionSell,
		EntryZone: EntryZone{Min: 3345, Max: 3351},
		StopLoss:  3367,
		Targets:   []float64{3312.43, 3295.385},
	}
	if !reflect.DeepEqual(*sig, want) {
		t.Fatalf("got %+v, want %+v", *sig, want)
	}
	if !Validate(*sig) {
		t.Fatalf("expected signal to validate: %v", Check(*sig))
	}
}

func TestParseStopInsideZoneIsInvalid(t *testing.T) {
	text := "#XAUUSD Sell Setup Selling Zone: 3345 - 3351 Stop Loss: 3340 Target 1: 3312.430 Target 2: 3295.385"
	sig, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if Validate(*sig) {
		t.Fatalf("SELL with stop 3340 below zone max must not validate")
	}
}

func TestParseMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		field string
	}{
		{"no targets", "#XAUUSD Sell Setup Selling Zone: 3345 - 3351 Stop Loss: 3367", "targets"},
		{"no zone", "#XAUUSD Sell Setup Stop Loss: 3367 Target 1: 3312", "entry zone"},
		{"no stop", "#XAUUSD Sell Setup Selling Zone: 3345 - 3351 Target 1: 3312", "stop loss"},
		{"no symbol", "Selling Zone: 3345 - 3351 Stop Loss: 3367 Target 1: 3312", "symbol"},
		{"empty", "", "symbol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := Parse(tt.text)
			if sig != nil {
				t.Fatalf("expected no signal, got %+v", sig)
			}
			if !errors.Is(err, ErrNoSignal) {
				t.Fatalf("expected ErrNoSignal, got %v", err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) || pe.Field != tt.field {
				t.Fatalf("expected missing %q, got %v", tt.field, err)
			}
		})
	}
}

func TestParseFallbackPatterns(t *testing.T) {
	text := "GOLD (spot) Buy now\nEntry: 2300 – 2310\nSL 2290\nTP 2330 TP 2350.5 TP 99"
	sig, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sig.Symbol != "GOLD" || sig.Action != ActionBuy {
		t.Fatalf("symbol/action = %s/%s", sig.Symbol, sig.Action)
	}
	if sig.EntryZone != (EntryZone{Min: 2300, Max: 2310}) {
		t.Fatalf("zone = %+v", sig.EntryZone)
	}
	if sig.StopLoss != 2290 {
		t.Fatalf("stop = %v", sig.StopLoss)
	}
	if !reflect.DeepEqual(sig.Targets, []float64{2330, 2350.5}) {
		t.Fatalf("targets = %v", sig.Targets)
	}
	if !Validate(*sig) {
		t.Fatalf("expected valid BUY: %v", Check(*sig))
	}
}

func TestParseNamedTargetsKeepFixedOrder(t *testing.T) {
	text := "#EURUSD Buy Setup Buying Zone: 1.0800 — 1.0820 Stop Loss: 1.0750 " +
		"Final Target: 1.0990 Target 2: 1.0900 Target 1: 1.0850 TP 1234"
	sig, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []float64{1.085, 1.09, 1.099}
	if !reflect.DeepEqual(sig.Targets, want) {
		t.Fatalf("targets = %v, want %v", sig.Targets, want)
	}
}

func TestParseReasonAndPlan(t *testing.T) {
	text := `#XAUUSD Sell Setup
Selling Zone: 3345 - 3351
Stop Loss: 3367
Target 1: 3312.430
Target 2: 3295.385
Final Target: 3255.439
Reason: ® Price rejected   the 3350 supply ◄ zone &
Plan: 🔷 Sell on retest © 9:24 AM 1.5K NN vi 3 ) 2 v :`

	sig, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(sig.Targets) != 3 || sig.Targets[2] != 3255.439 {
		t.Fatalf("targets = %v", sig.Targets)
	}
	if sig.Reason != "Price rejected the 3350 supply zone" {
		t.Fatalf("reason = %q", sig.Reason)
	}
	if sig.Plan != "Sell on retest" {
		t.Fatalf("plan = %q", sig.Plan)
	}
	if again := StripNoise(sig.Reason); again != sig.Reason {
		t.Fatalf("reason changed on second pass: %q", again)
	}
	if again := StripNoise(sig.Plan); again != sig.Plan {
		t.Fatalf("plan changed on second pass: %q", again)
	}
}

func TestStripNoiseIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain text",
		"  ®®  spaced   ◄ out  ",
		"10:1:30 PM5 AM",
		"2.31.5KK views",
		"NN vi 1 ) 2 v :NN vi 3 ) 4 v : tail",
		"#tag & more © 11:05am",
	}
	for _, in := range inputs {
		once := StripNoise(in)
		if twice := StripNoise(once); twice != once {
			t.Errorf("StripNoise not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}
