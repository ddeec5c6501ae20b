package monitor

import "log"

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(message string) error
}

// SinkFunc adapts a sink to Monitor.AlertFn. Delivery errors are logged.
func SinkFunc(s AlertSink) func(string) {
	return func(msg string) {
		if err := s.Send(msg); err != nil {
			log.Printf("⚠️ alert delivery failed: %v", err)
		}
	}
}
