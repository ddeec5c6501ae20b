package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"signal-bridge/internal/bridge"
	"signal-bridge/internal/risk"
	"signal-bridge/internal/signal"
)

// Terminal order comments are capped at 31 characters.
const maxCommentLen = 31

// BridgeStrategy drives a local trading terminal over the bridge socket:
// one market order carrying the first target, then a modify_position for
// each further target.
type BridgeStrategy struct {
	client *bridge.Client
	risk   risk.Config

	mu    sync.Mutex
	ready bool
}

func NewBridgeStrategy(client *bridge.Client, riskCfg risk.Config) *BridgeStrategy {
	return &BridgeStrategy{client: client, risk: riskCfg}
}

func (b *BridgeStrategy) Name() string { return string(ModeBridge) }

func (b *BridgeStrategy) Initialize(ctx context.Context) error {
	if b.client == nil {
		return &ConnectivityError{Backend: "bridge", Err: errors.New("no bridge client configured")}
	}
	if err := b.client.Ping(ctx); err != nil {
		return &ConnectivityError{Backend: "bridge", Err: err}
	}
	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()
	log.Println("✅ Terminal bridge answered ping")
	return nil
}

func (b *BridgeStrategy) ExecuteTradeSignal(ctx context.Context, sig signal.TradeSignal) Result {
	b.mu.Lock()
	ready := b.ready
	b.mu.Unlock()
	if !ready {
		return failure("Terminal bridge not connected")
	}
	if err := signal.Check(sig); err != nil {
		log.Printf("❌ Bridge strategy refused signal: %v", err)
		return failure("Invalid trade signal")
	}

	volume := risk.Size(sig, b.risk)
	details := newDetails(sig, volume, 0)

	resp, err := b.client.Trade(ctx, bridge.TradeRequest{
		Symbol:  sig.Symbol,
		Action:  string(sig.Action),
		Volume:  volume,
		Price:   sig.EntryPrice(),
		SL:      sig.StopLoss,
		TP:      sig.PrimaryTarget(),
		Comment: tradeComment(sig),
	})
	if err != nil {
		log.Printf("❌ Bridge trade request failed: %v", err)
		return failure("Terminal bridge did not answer the trade request")
	}
	if !resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = fmt.Sprintf("retcode %d", resp.Retcode)
		}
		details.Failures = append(details.Failures, TargetFailure{Target: 1, TakeProfit: sig.PrimaryTarget(), Reason: reason, Retcode: resp.Retcode})
		return Result{Success: false, Error: aggregate("Trade rejected by terminal", details.Failures), Details: details}
	}

	details.OrderIDs = append(details.OrderIDs, strconv.FormatInt(resp.Ticket, 10))
	details.SuccessfulTrades = 1
	if len(sig.Targets) > 1 {
		part, count := risk.SplitVolume(volume, len(sig.Targets), b.risk)
		details.VolumePerTarget = part
		for i, tp := range sig.Targets[1:count] {
			target := i + 2
			mod, err := b.client.ModifyPosition(ctx, resp.Ticket, part, tp)
			if err == nil && mod.Success {
				details.SuccessfulTrades++
				continue
			}
			reason := "bridge unreachable"
			if err == nil {
				reason = mod.Error
			}
			log.Printf("⚠️ Could not attach TP%d to ticket %d: %s", target, resp.Ticket, reason)
			details.Failures = append(details.Failures, TargetFailure{Target: target, TakeProfit: tp, Reason: reason})
		}
		details.skipTargets(sig, count)
	}

	return Result{
		Success: true,
		Message: fmt.Sprintf("Order %d placed, %d/%d targets attached", resp.Ticket, details.SuccessfulTrades, details.TotalTrades),
		Details: details,
	}
}

func tradeComment(sig signal.TradeSignal) string {
	c := "Auto trade"
	if sig.Reason != "" {
		c = "Bot Trade - " + sig.Reason
	}
	if r := []rune(c); len(r) > maxCommentLen {
		c = string(r[:maxCommentLen])
	}
	return c
}

func (b *BridgeStrategy) Close() error {
	b.mu.Lock()
	b.ready = false
	b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}
