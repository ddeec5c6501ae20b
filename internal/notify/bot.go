package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"signal-bridge/internal/monitor"
	"signal-bridge/internal/pipeline"
	"signal-bridge/pkg/i18n"
)

const (
	defaultPollTimeout = 30 * time.Second
	defaultWaitTimeout = 2 * time.Minute
	defaultImageLimit  = 10 << 20
	maxPollBackoff     = 30 * time.Second
)

// Submitter queues intake tasks. *pipeline.Worker satisfies it.
type Submitter interface {
	Submit(t pipeline.Task) (string, error)
}

// BotConfig controls the Telegram intake loop.
type BotConfig struct {
	// AllowedChatID is the only chat whose images are processed.
	AllowedChatID string
	// NotifyChatID already receives every outcome through the pipeline
	// notifier, so the bot does not reply there a second time.
	NotifyChatID  string
	PollTimeout   time.Duration
	WaitTimeout   time.Duration
	MaxImageBytes int64
	Status        func(ctx context.Context) monitor.Status
}

// Bot long-polls getUpdates and feeds images from the allowed chat into
// the signal worker.
type Bot struct {
	tg     *Telegram
	sub    Submitter
	cfg    BotConfig
	offset int64
	wg     sync.WaitGroup
}

func NewBot(tg *Telegram, sub Submitter, cfg BotConfig) (*Bot, error) {
	if tg == nil || sub == nil {
		return nil, errors.New("bot needs a telegram client and a submitter")
	}
	if cfg.AllowedChatID == "" {
		return nil, errors.New("allowed chat id is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultImageLimit
	}
	return &Bot{tg: tg, sub: sub, cfg: cfg}, nil
}

// Run polls until ctx is done, then waits for in-flight replies.
func (b *Bot) Run(ctx context.Context) error {
	log.Printf(i18n.Get("BotStarted"), b.cfg.AllowedChatID)
	defer b.wg.Wait()

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := b.tg.GetUpdates(ctx, b.offset, b.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf(i18n.Get("BotPollFailed"), err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxPollBackoff)
			continue
		}
		backoff = time.Second
		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			b.handle(ctx, u)
		}
	}
}

func (b *Bot) handle(ctx context.Context, u Update) {
	msg, channel := u.Message, false
	if msg == nil {
		msg, channel = u.ChannelPost, true
	}
	if msg == nil {
		return
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	if cmd := command(msg.Text); cmd != "" {
		b.command(ctx, msg, chatID, cmd)
		return
	}

	fileID := imageFileID(msg)
	if fileID == "" {
		if !channel && msg.Text != "" {
			b.reply(ctx, chatID, msg.MessageID, i18n.M().BotUnknown)
		}
		return
	}
	if chatID != b.cfg.AllowedChatID {
		log.Printf(i18n.Get("BotUnauthorized"), chatID)
		return
	}

	img, err := b.download(ctx, fileID)
	if err != nil {
		log.Printf(i18n.Get("BotDownloadFailed"), err)
		b.reply(ctx, chatID, msg.MessageID, i18n.M().ReplyImageFailed)
		return
	}

	replies := make(chan pipeline.Outcome, 1)
	_, err = b.sub.Submit(pipeline.Task{
		Source:    pipeline.SourceImage,
		ChannelID: chatID,
		Image:     img,
		Reply:     replies,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			b.reply(ctx, chatID, msg.MessageID, i18n.M().BotBusy)
		} else {
			log.Printf("⚠️ could not queue image from chat %s: %v", chatID, err)
		}
		return
	}

	// The notifier already posts outcomes to the notify chat.
	if channel || chatID == b.cfg.NotifyChatID {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.awaitOutcome(ctx, replies, chatID, msg.MessageID)
	}()
}

func (b *Bot) awaitOutcome(ctx context.Context, replies <-chan pipeline.Outcome, chatID string, messageID int64) {
	timer := time.NewTimer(b.cfg.WaitTimeout)
	defer timer.Stop()
	select {
	case out := <-replies:
		if out.Message != "" {
			b.reply(context.WithoutCancel(ctx), chatID, messageID, out.Message)
		}
	case <-timer.C:
		log.Printf("⚠️ no outcome for chat %s message %d after %s", chatID, messageID, b.cfg.WaitTimeout)
	case <-ctx.Done():
	}
}

func (b *Bot) command(ctx context.Context, msg *Message, chatID, cmd string) {
	m := i18n.M()
	switch cmd {
	case "/start":
		b.reply(ctx, chatID, msg.MessageID, m.BotWelcome)
	case "/help":
		b.reply(ctx, chatID, msg.MessageID, m.BotHelp)
	case "/status":
		if b.cfg.Status == nil {
			b.reply(ctx, chatID, msg.MessageID, m.BotUnknown)
			return
		}
		b.reply(ctx, chatID, msg.MessageID, FormatStatus(b.cfg.Status(ctx)))
	default:
		b.reply(ctx, chatID, msg.MessageID, m.BotUnknown)
	}
}

// FormatStatus renders the /status reply.
func FormatStatus(s monitor.Status) string {
	mode := s.Mode
	if s.Degraded {
		mode += " (degraded)"
	}
	intake := "disabled"
	if s.ImageIntake {
		intake = "enabled"
	}
	return fmt.Sprintf(i18n.M().BotStatus, mode, s.Version, s.Uptime, s.QueuedTasks, s.PendingSignals, intake)
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	f, err := b.tg.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return b.tg.Download(ctx, f, b.cfg.MaxImageBytes)
}

func (b *Bot) reply(ctx context.Context, chatID string, messageID int64, text string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := b.tg.Reply(ctx, chatID, messageID, text); err != nil {
		log.Printf(i18n.Get("NotifyFailed"), err)
	}
}

// command returns the lowercased bot command in text, without any
// @botname suffix, or "".
func command(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(strings.Fields(text)[0], "@")
	return strings.ToLower(cmd)
}

// imageFileID picks the largest photo size, or an image document.
func imageFileID(msg *Message) string {
	if n := len(msg.Photo); n > 0 {
		return msg.Photo[n-1].FileID
	}
	if d := msg.Document; d != nil && strings.HasPrefix(d.MimeType, "image/") {
		return d.FileID
	}
	return ""
}
