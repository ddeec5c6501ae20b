package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"signal-bridge/internal/broker"
	"signal-bridge/internal/risk"
	"signal-bridge/internal/signal"
)

// RemoteConfig controls account readiness polling and order tagging.
type RemoteConfig struct {
	PollInterval time.Duration
	ReadyTimeout time.Duration
	Magic        int64
}

// DefaultRemoteConfig returns the stock remote settings.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		PollInterval: time.Second,
		ReadyTimeout: 2 * time.Minute,
		Magic:        123456,
	}
}

// RemoteStrategy places one market order per target through a broker gateway.
type RemoteStrategy struct {
	client broker.Client
	cfg    RemoteConfig
	risk   risk.Config
	now    func() time.Time

	mu     sync.Mutex
	ready  bool
	closed bool
}

func NewRemoteStrategy(client broker.Client, cfg RemoteConfig, riskCfg risk.Config) *RemoteStrategy {
	def := DefaultRemoteConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = def.ReadyTimeout
	}
	if cfg.Magic == 0 {
		cfg.Magic = def.Magic
	}
	return &RemoteStrategy{client: client, cfg: cfg, risk: riskCfg, now: time.Now}
}

func (r *RemoteStrategy) Name() string { return string(ModeMetaAPI) }

// Initialize deploys the account if needed and waits until it is connected.
func (r *RemoteStrategy) Initialize(ctx context.Context) error {
	if r.client == nil {
		return &ConnectivityError{Backend: "broker", Err: errors.New("no broker client configured")}
	}
	acct, err := r.client.GetAccount(ctx)
	if err != nil {
		return &ConnectivityError{Backend: "broker", Err: err}
	}
	if acct.State == broker.StateUndeployed {
		log.Printf("🚀 Deploying broker account %s", acct.ID)
		if err := r.client.Deploy(ctx); err != nil {
			return &ConnectivityError{Backend: "broker", Err: err}
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.ReadyTimeout)
	defer cancel()
	for !acct.Ready() {
		if err := sleepCtx(waitCtx, r.cfg.PollInterval); err != nil {
			return &ConnectivityError{Backend: "broker", Err: fmt.Errorf("account %s not ready (%s/%s): %w", acct.ID, acct.State, acct.ConnectionStatus, err)}
		}
		if acct, err = r.client.GetAccount(waitCtx); err != nil {
			return &ConnectivityError{Backend: "broker", Err: err}
		}
	}

	r.mu.Lock()
	r.ready = true
	r.mu.Unlock()
	log.Printf("✅ Broker account %s connected", acct.ID)
	return nil
}

func (r *RemoteStrategy) ExecuteTradeSignal(ctx context.Context, sig signal.TradeSignal) Result {
	r.mu.Lock()
	ready := r.ready
	r.mu.Unlock()
	if !ready {
		return failure("Broker connection not initialized")
	}
	if err := signal.Check(sig); err != nil {
		log.Printf("❌ Remote strategy refused signal: %v", err)
		return failure("Invalid trade signal")
	}

	info, err := r.client.AccountInformation(ctx)
	if err != nil {
		log.Printf("❌ Account information failed: %v", err)
		return failure("Could not read account information: " + broker.Reason(err))
	}

	volume := risk.SizeForAccount(sig, r.risk, info.Balance)
	perTarget, count := risk.SplitVolume(volume, len(sig.Targets), r.risk)
	details := newDetails(sig, volume, perTarget)
	stamp := r.now().UnixMilli()

	for i, tp := range sig.Targets[:count] {
		req := broker.OrderRequest{
			Symbol:     sig.Symbol,
			Action:     string(sig.Action),
			Volume:     perTarget,
			StopLoss:   sig.StopLoss,
			TakeProfit: tp,
			Comment:    fmt.Sprintf("Bot-%d-TP%d", stamp, i+1),
			Magic:      r.cfg.Magic,
		}
		res, err := r.client.CreateMarketOrder(ctx, req)
		switch {
		case err != nil:
			log.Printf("❌ %s TP%d order failed: %v", sig.Symbol, i+1, err)
			details.Failures = append(details.Failures, TargetFailure{Target: i + 1, TakeProfit: tp, Reason: broker.Reason(err)})
		case !res.OK():
			reason := res.Message
			if reason == "" {
				reason = fmt.Sprintf("retcode %d", res.Retcode)
			}
			log.Printf("❌ %s TP%d order rejected: %s", sig.Symbol, i+1, reason)
			details.Failures = append(details.Failures, TargetFailure{Target: i + 1, TakeProfit: tp, Reason: reason, Retcode: res.Retcode})
		default:
			log.Printf("✅ %s %s %.2f TP%d=%v order=%s", sig.Action, sig.Symbol, perTarget, i+1, tp, res.OrderID)
			details.OrderIDs = append(details.OrderIDs, res.OrderID)
			details.SuccessfulTrades++
		}
	}
	details.skipTargets(sig, count)

	if details.SuccessfulTrades == 0 {
		return Result{Success: false, Error: aggregate("All trades failed", details.Failures), Details: details}
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("%d/%d trades executed successfully", details.SuccessfulTrades, details.TotalTrades),
		Details: details,
	}
}

func (r *RemoteStrategy) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.ready = false
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
