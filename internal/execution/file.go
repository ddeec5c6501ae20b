package execution

import (
	"context"
	"errors"
	"log"
	"time"

	"signal-bridge/internal/queue"
	"signal-bridge/internal/risk"
	"signal-bridge/internal/signal"
)

const maxIDAttempts = 3

// FileStrategy hands signals to the external terminal agent through the
// file queue. It never talks to a broker.
type FileStrategy struct {
	store *queue.Store
	ids   *queue.IDGenerator
	risk  risk.Config
	now   func() time.Time
}

func NewFileStrategy(store *queue.Store, ids *queue.IDGenerator, cfg risk.Config) *FileStrategy {
	if ids == nil {
		ids = queue.NewIDGenerator()
	}
	return &FileStrategy{store: store, ids: ids, risk: cfg, now: time.Now}
}

func (f *FileStrategy) Name() string { return string(ModeFile) }

func (f *FileStrategy) Initialize(ctx context.Context) error {
	if f.store == nil {
		return &ConnectivityError{Backend: "file queue", Err: errors.New("no store configured")}
	}
	if err := f.store.CheckWritable(); err != nil {
		return &ConnectivityError{Backend: "file queue", Err: err}
	}
	log.Printf("📁 File queue ready: %s", f.store.PendingDir())
	return nil
}

func (f *FileStrategy) ExecuteTradeSignal(ctx context.Context, sig signal.TradeSignal) Result {
	if err := signal.Check(sig); err != nil {
		log.Printf("❌ File strategy refused signal: %v", err)
		return failure("Invalid trade signal")
	}
	if f.store == nil {
		return failure("File queue not available")
	}

	volume := risk.Size(sig, f.risk)
	var lastErr error
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		rec := queue.NewRecord(f.ids.Next(), sig, volume, f.now())
		err := f.store.Enqueue(ctx, rec)
		if err == nil {
			log.Printf("💾 Signal %s queued: %s %s volume=%.2f", rec.ID, sig.Action, sig.Symbol, volume)
			return Result{
				Success:  true,
				Message:  "Trade signal saved for external execution",
				SignalID: rec.ID,
				Details:  newDetails(sig, volume, 0),
			}
		}
		lastErr = err
		if !errors.Is(err, queue.ErrDuplicateID) {
			break
		}
		log.Printf("⚠️ Signal id %s already taken, retrying", rec.ID)
	}

	log.Printf("❌ Failed to queue %s signal: %v", sig.Symbol, lastErr)
	return failure("Failed to save trade signal")
}

func (f *FileStrategy) Close() error { return nil }
