package monitor

import (
	"context"
	"log"
	"time"

	"signal-bridge/internal/events"
)

// Monitor watches events and emits alerts.
type Monitor struct {
	Bus     *events.Bus
	AlertFn func(string)
	// FailureThreshold raises an alert after that many consecutive
	// trade.failed events; 0 uses 3.
	FailureThreshold int
}

func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.AlertFn == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}
	threshold := m.FailureThreshold
	if threshold <= 0 {
		threshold = 3
	}
	rule := &FailureStreak{Threshold: threshold}

	stream, unsub := m.Bus.Subscribe(50, events.EventAlert, events.EventTradeExecuted, events.EventTradeFailed)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-stream:
				if !ok {
					return
				}
				switch env.Event {
				case events.EventAlert:
					m.AlertFn(formatAlert(env))
				case events.EventTradeExecuted, events.EventTradeFailed:
					if fire, msg := rule.Observe(env.Event == events.EventTradeExecuted); fire {
						m.AlertFn(formatAlert(events.Envelope{Payload: events.Alert{Level: "critical", Message: msg}, At: env.At}))
					}
				}
			}
		}
	}()
}

func formatAlert(env events.Envelope) string {
	at := env.At
	if at.IsZero() {
		at = time.Now()
	}
	return "[" + at.Format(time.RFC3339) + "] " + toString(env.Payload)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case events.Alert:
		if t.Level == "critical" {
			return "🚨 " + t.Message
		}
		return "⚠️ " + t.Message
	default:
		return "alert triggered"
	}
}
