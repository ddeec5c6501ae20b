package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"signal-bridge/internal/signal"
)

var (
	// ErrConnectivity matches every *ConnectivityError.
	ErrConnectivity = errors.New("execution backend unreachable")
	ErrNotConnected = errors.New("execution backend not initialized")
)

// ConnectivityError reports that a backend could not be reached during Initialize.
type ConnectivityError struct {
	Backend string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Backend, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

// Strategy turns a validated signal into a queued record or live orders.
type Strategy interface {
	Name() string
	// Initialize connects to the backend; it returns a *ConnectivityError
	// when the backend is unreachable.
	Initialize(ctx context.Context) error
	// ExecuteTradeSignal never panics and never returns an error: every
	// failure is reported through Result.Success == false.
	ExecuteTradeSignal(ctx context.Context, sig signal.TradeSignal) Result
	// Close releases the backend. Safe to call more than once.
	Close() error
}

// Result is the outcome of one ExecuteTradeSignal call.
type Result struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`
	SignalID string   `json:"signalId,omitempty"` // set by asynchronous strategies
	Details  *Details `json:"details,omitempty"`
}

// Details describes the per-target work of a synchronous strategy.
type Details struct {
	Symbol           string          `json:"symbol"`
	Action           signal.Action   `json:"action"`
	Volume           float64         `json:"volume"`
	VolumePerTarget  float64         `json:"volumePerTarget,omitempty"`
	SuccessfulTrades int             `json:"successfulTrades"`
	TotalTrades      int             `json:"totalTrades"`
	OrderIDs         []string        `json:"orderIds,omitempty"`
	Failures         []TargetFailure `json:"failures,omitempty"`
}

// TargetFailure records why one target's order did not go through.
type TargetFailure struct {
	Target     int     `json:"target"` // 1-based
	TakeProfit float64 `json:"takeProfit"`
	Reason     string  `json:"reason"`
	Retcode    int     `json:"retcode,omitempty"`
}

func failure(msg string) Result {
	return Result{Success: false, Error: msg}
}

func newDetails(sig signal.TradeSignal, volume, perTarget float64) *Details {
	return &Details{
		Symbol:          sig.Symbol,
		Action:          sig.Action,
		Volume:          volume,
		VolumePerTarget: perTarget,
		TotalTrades:     len(sig.Targets),
	}
}

const volumeTooSmall = "volume below one lot for this target"

// skipTargets records the targets from index from onwards as not placed
// because the sized volume ran out.
func (d *Details) skipTargets(sig signal.TradeSignal, from int) {
	for i := from; i < len(sig.Targets); i++ {
		d.Failures = append(d.Failures, TargetFailure{Target: i + 1, TakeProfit: sig.Targets[i], Reason: volumeTooSmall})
	}
}

// aggregate joins every target failure into one line.
func aggregate(prefix string, failures []TargetFailure) string {
	if len(failures) == 0 {
		return prefix
	}
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("TP%d: %s", f.Target, f.Reason))
	}
	return prefix + ". Errors: " + strings.Join(parts, "; ")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
