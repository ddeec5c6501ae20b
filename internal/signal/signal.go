package signal

import (
	"errors"
	"fmt"
	"strings"
)

// Action is the trade direction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// EntryZone is the price interval in which an entry is valid.
type EntryZone struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// TradeSignal is a structured trade instruction recovered from text.
// Treat it as a value; nothing mutates a signal after Parse returns it.
type TradeSignal struct {
	Symbol    string    `json:"symbol"`
	Action    Action    `json:"action"`
	EntryZone EntryZone `json:"entryZone"`
	StopLoss  float64   `json:"stopLoss"`
	Targets   []float64 `json:"targets"` // priority order, first is the primary take-profit
	Reason    string    `json:"reason,omitempty"`
	Plan      string    `json:"plan,omitempty"`
}

// EntryPrice is the zone edge used for sizing: max for BUY, min for SELL.
func (s TradeSignal) EntryPrice() float64 {
	if s.Action == ActionBuy {
		return s.EntryZone.Max
	}
	return s.EntryZone.Min
}

// PrimaryTarget returns the first target, or 0 when there is none.
func (s TradeSignal) PrimaryTarget() float64 {
	if len(s.Targets) == 0 {
		return 0
	}
	return s.Targets[0]
}

// Summary renders the signal as a short card for chat replies.
func (s TradeSignal) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Trade Signal Detected\n")
	fmt.Fprintf(&b, "Symbol: %s\n", s.Symbol)
	fmt.Fprintf(&b, "Action: %s\n", s.Action)
	fmt.Fprintf(&b, "Entry Zone: %s - %s\n", formatPrice(s.EntryZone.Min), formatPrice(s.EntryZone.Max))
	fmt.Fprintf(&b, "Stop Loss: %s\n", formatPrice(s.StopLoss))
	for i, tp := range s.Targets {
		fmt.Fprintf(&b, "Target %d: %s\n", i+1, formatPrice(tp))
	}
	if s.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", s.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPrice(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.5f", v), "0"), ".")
}

var ErrInvalidSignal = errors.New("invalid trade signal")

// Check returns the first rule the signal breaks, wrapped in ErrInvalidSignal.
// Rules run in order: symbol and action, zone ordering, targets, stop-loss side.
func Check(s TradeSignal) error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidSignal)
	}
	if s.Action != ActionBuy && s.Action != ActionSell {
		return fmt.Errorf("%w: missing action", ErrInvalidSignal)
	}
	if !(s.EntryZone.Min < s.EntryZone.Max) {
		return fmt.Errorf("%w: entry zone min %v must be below max %v", ErrInvalidSignal, s.EntryZone.Min, s.EntryZone.Max)
	}
	if len(s.Targets) == 0 {
		return fmt.Errorf("%w: no targets", ErrInvalidSignal)
	}
	switch s.Action {
	case ActionBuy:
		if !(s.StopLoss < s.EntryZone.Min) {
			return fmt.Errorf("%w: BUY stop loss %v must be below zone min %v", ErrInvalidSignal, s.StopLoss, s.EntryZone.Min)
		}
	case ActionSell:
		if !(s.StopLoss > s.EntryZone.Max) {
			return fmt.Errorf("%w: SELL stop loss %v must be above zone max %v", ErrInvalidSignal, s.StopLoss, s.EntryZone.Max)
		}
	}
	return nil
}

// Validate reports whether the signal is geometrically consistent.
func Validate(s TradeSignal) bool {
	return Check(s) == nil
}
