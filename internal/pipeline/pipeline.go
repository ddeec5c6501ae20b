package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"signal-bridge/internal/events"
	"signal-bridge/internal/execution"
	"signal-bridge/internal/monitor"
	"signal-bridge/internal/ocr"
	"signal-bridge/internal/signal"
	"signal-bridge/pkg/db"
	"signal-bridge/pkg/i18n"
)

// Source is where the signal text came from.
type Source string

const (
	SourceText  Source = "text"
	SourceImage Source = "image"
)

// Stage is the last stage a task reached.
type Stage string

const (
	StageOCR       Stage = "ocr"
	StageParse     Stage = "parse"
	StageValidate  Stage = "validate"
	StageParseOnly Stage = "parse_only"
	StageQueued    Stage = "queued"
	StageExecuted  Stage = "executed"
	StageFailed    Stage = "failed"
)

// Outcome is what a task produced. Message is the chat-ready status text.
type Outcome struct {
	TaskID   string              `json:"taskId"`
	Source   Source              `json:"source"`
	Stage    Stage               `json:"stage"`
	Success  bool                `json:"success"`
	Signal   *signal.TradeSignal `json:"signal,omitempty"`
	Result   *execution.Result   `json:"result,omitempty"`
	Message  string              `json:"message"`
	Duration time.Duration       `json:"-"`
}

// AuditStore records one row per processed task.
type AuditStore interface {
	InsertAudit(ctx context.Context, e db.AuditEntry) (int64, error)
}

// Notifier relays outcome messages to the operators' chat.
type Notifier interface {
	Send(message string) error
}

// Options wires a Pipeline. Every field except Strategy may be nil; a nil
// Strategy means parse-only.
type Options struct {
	OCR      ocr.Extractor
	Strategy execution.Strategy
	Bus      *events.Bus
	Audit    AuditStore
	Metrics  *monitor.SystemMetrics
	Notifier Notifier
}

// Pipeline runs OCR, parsing, validation and execution for one signal.
type Pipeline struct {
	ocr      ocr.Extractor
	strategy execution.Strategy
	bus      *events.Bus
	audit    AuditStore
	metrics  *monitor.SystemMetrics
	notifier Notifier
}

func New(opts Options) *Pipeline {
	if opts.Metrics == nil {
		opts.Metrics = monitor.NewSystemMetrics()
	}
	return &Pipeline{
		ocr:      opts.OCR,
		strategy: opts.Strategy,
		bus:      opts.Bus,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
	}
}

// Mode names the active strategy, or "parse_only".
func (p *Pipeline) Mode() string {
	if p.strategy == nil {
		return string(StageParseOnly)
	}
	return p.strategy.Name()
}

// CanReadImages reports whether an OCR extractor is configured.
func (p *Pipeline) CanReadImages() bool { return p.ocr != nil }

// Process dispatches on t.Source.
func (p *Pipeline) Process(ctx context.Context, t Task) Outcome {
	if t.Source == SourceImage {
		return p.ProcessImage(ctx, t.ID, t.Image)
	}
	return p.ProcessText(ctx, t.ID, t.Text)
}

// ProcessImage extracts text from a screenshot and processes it.
func (p *Pipeline) ProcessImage(ctx context.Context, taskID string, image []byte) Outcome {
	start := time.Now()
	p.received(taskID, SourceImage)

	if p.ocr == nil {
		return p.finish(ctx, start, Outcome{TaskID: taskID, Source: SourceImage, Stage: StageOCR, Message: i18n.M().ReplyImageFailed})
	}
	timer := monitor.NewTimer(p.metrics.OCRLatency)
	text, err := p.ocr.ExtractText(ctx, image)
	timer.Stop()
	if err != nil {
		log.Printf("❌ OCR failed for task %s: %v", taskID, err)
		msg := i18n.M().ReplyImageFailed
		if errors.Is(err, ocr.ErrNoText) {
			msg = i18n.M().ReplyParseFailed
		} else {
			p.metrics.IncrementErrors()
		}
		p.publish(events.EventSignalRejected, taskID, SourceImage, StageOCR, nil, "", msg)
		p.metrics.IncRejected()
		return p.finish(ctx, start, Outcome{TaskID: taskID, Source: SourceImage, Stage: StageOCR, Message: msg})
	}
	return p.handleText(ctx, start, taskID, SourceImage, text)
}

// ProcessText parses text that is already extracted.
func (p *Pipeline) ProcessText(ctx context.Context, taskID, text string) Outcome {
	start := time.Now()
	p.received(taskID, SourceText)
	return p.handleText(ctx, start, taskID, SourceText, text)
}

func (p *Pipeline) received(taskID string, src Source) {
	p.metrics.IncReceived()
	p.bus.Publish(events.EventSignalReceived, events.SignalEvent{TaskID: taskID, Source: string(src), Stage: "received", At: time.Now()})
}

func (p *Pipeline) handleText(ctx context.Context, start time.Time, taskID string, src Source, text string) Outcome {
	out := Outcome{TaskID: taskID, Source: src}

	sig, err := signal.Parse(text)
	if err != nil {
		log.Printf("⚠️ Task %s: %v", taskID, err)
		out.Stage = StageParse
		out.Message = i18n.M().ReplyParseFailed
		if src == SourceText {
			out.Message = i18n.M().ReplyTextUnparsed
		}
		p.metrics.IncRejected()
		p.publish(events.EventSignalRejected, taskID, src, StageParse, nil, "", err.Error())
		return p.finish(ctx, start, out)
	}
	out.Signal = sig

	if err := signal.Check(*sig); err != nil {
		log.Printf("⚠️ Task %s: %v", taskID, err)
		out.Stage = StageValidate
		out.Message = i18n.M().ReplyInvalidSignal
		p.metrics.IncRejected()
		p.publish(events.EventSignalRejected, taskID, src, StageValidate, sig, "", err.Error())
		return p.finish(ctx, start, out)
	}
	p.metrics.IncParsed()
	p.publish(events.EventSignalParsed, taskID, src, StageParse, sig, "", "")
	log.Printf("📊 Task %s parsed %s %s", taskID, sig.Action, sig.Symbol)

	if p.strategy == nil {
		out.Stage = StageParseOnly
		out.Message = sig.Summary() + "\n" + i18n.M().ReplyParseOnly
		return p.finish(ctx, start, out)
	}

	timer := monitor.NewTimer(p.metrics.ExecutionLatency)
	res := p.strategy.ExecuteTradeSignal(ctx, *sig)
	timer.Stop()
	out.Result = &res
	out.Success = res.Success

	var status string
	switch {
	case res.Success && res.SignalID != "":
		out.Stage = StageQueued
		status = fmt.Sprintf(i18n.M().ReplyQueued, res.SignalID)
		p.metrics.IncQueued()
		p.publish(events.EventSignalQueued, taskID, src, StageQueued, sig, res.SignalID, res.Message)
	case res.Success:
		out.Stage = StageExecuted
		status = fmt.Sprintf(i18n.M().ReplyExecuted, res.Message)
		p.metrics.IncExecuted()
		p.publish(events.EventTradeExecuted, taskID, src, StageExecuted, sig, "", res.Message)
	default:
		out.Stage = StageFailed
		status = fmt.Sprintf(i18n.M().ReplyFailed, res.Error)
		p.metrics.IncFailed()
		p.publish(events.EventTradeFailed, taskID, src, StageFailed, sig, "", res.Error)
	}
	out.Message = sig.Summary() + "\n" + status
	return p.finish(ctx, start, out)
}

func (p *Pipeline) publish(e events.Event, taskID string, src Source, stage Stage, sig *signal.TradeSignal, signalID, msg string) {
	ev := events.SignalEvent{
		TaskID:   taskID,
		Source:   string(src),
		Stage:    string(stage),
		SignalID: signalID,
		Message:  msg,
		At:       time.Now(),
	}
	if sig != nil {
		ev.Symbol = sig.Symbol
		ev.Action = string(sig.Action)
	}
	p.bus.Publish(e, ev)
}

// finish stamps the duration, writes the audit row and relays the message.
func (p *Pipeline) finish(ctx context.Context, start time.Time, out Outcome) Outcome {
	out.Duration = time.Since(start)
	p.metrics.PipelineLatency.RecordDuration(out.Duration)

	if p.audit != nil {
		entry := db.AuditEntry{
			TaskID:     out.TaskID,
			Source:     string(out.Source),
			Stage:      string(out.Stage),
			Mode:       p.Mode(),
			Success:    out.Success,
			Message:    out.Message,
			DurationMS: out.Duration.Milliseconds(),
		}
		if out.Signal != nil {
			entry.Symbol = out.Signal.Symbol
			entry.Action = string(out.Signal.Action)
		}
		if out.Result != nil {
			entry.SignalID = out.Result.SignalID
			if out.Result.Details != nil {
				entry.Volume = out.Result.Details.Volume
			}
			if !out.Success {
				entry.Message = out.Result.Error
			}
		}
		timer := monitor.NewTimer(p.metrics.DBLatency)
		// The audit row is written even when the request context is gone.
		if _, err := p.audit.InsertAudit(context.WithoutCancel(ctx), entry); err != nil {
			p.metrics.IncrementErrors()
			log.Printf(i18n.Get("AuditWriteFailed"), err)
		}
		timer.Stop()
	}

	if p.notifier != nil {
		if err := p.notifier.Send(out.Message); err != nil {
			log.Printf(i18n.Get("NotifyFailed"), err)
		}
	}
	return out
}
