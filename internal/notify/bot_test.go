package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"signal-bridge/internal/monitor"
	"signal-bridge/internal/pipeline"
	"signal-bridge/pkg/i18n"
)

const testToken = "123:abc"

// fakeBotAPI serves the Bot API methods the intake uses.
type fakeBotAPI struct {
	mu      sync.Mutex
	batches [][]Update
	offsets []int64
	fileIDs []string
	sent    []sendMessageRequest
	image   []byte
}

func (f *fakeBotAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		var req getUpdatesRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.offsets = append(f.offsets, req.Offset)
		var batch []Update
		if len(f.batches) > 0 {
			batch, f.batches = f.batches[0], f.batches[1:]
		}
		f.mu.Unlock()
		if batch == nil {
			select {
			case <-r.Context().Done():
			case <-time.After(50 * time.Millisecond):
			}
			batch = []Update{}
		}
		writeResult(t, w, batch)
	})
	mux.HandleFunc("/bot"+testToken+"/getFile", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.fileIDs = append(f.fileIDs, req["file_id"])
		f.mu.Unlock()
		writeResult(t, w, File{FileID: req["file_id"], FileSize: int64(len(f.image)), FilePath: "photos/file_1.jpg"})
	})
	mux.HandleFunc("/file/bot"+testToken+"/photos/file_1.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write(f.image)
	})
	mux.HandleFunc("/bot"+testToken+"/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.sent = append(f.sent, req)
		f.mu.Unlock()
		writeResult(t, w, map[string]int{"message_id": 1})
	})
	return mux
}

func (f *fakeBotAPI) messages() []sendMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendMessageRequest(nil), f.sent...)
}

func writeResult(t *testing.T, w http.ResponseWriter, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		t.Errorf("marshal result: %v", err)
	}
	json.NewEncoder(w).Encode(apiResponse{OK: true, Result: raw})
}

type fakeSubmitter struct {
	mu    sync.Mutex
	tasks []pipeline.Task
	err   error
}

func (s *fakeSubmitter) Submit(t pipeline.Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.tasks = append(s.tasks, t)
	if t.Reply != nil {
		t.Reply <- pipeline.Outcome{TaskID: "task_1", Success: true, Message: "✅ Trade signal saved successfully!"}
	}
	return "task_1", nil
}

func (s *fakeSubmitter) submitted() []pipeline.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pipeline.Task(nil), s.tasks...)
}

func newTestBot(t *testing.T, api *fakeBotAPI, sub Submitter, cfg BotConfig) *Bot {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	tg, err := NewTelegram(srv.URL, testToken, "-100500")
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	if cfg.AllowedChatID == "" {
		cfg.AllowedChatID = "42"
	}
	if cfg.NotifyChatID == "" {
		cfg.NotifyChatID = "-100500"
	}
	cfg.PollTimeout = time.Second
	bot, err := NewBot(tg, sub, cfg)
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	return bot
}

func photoMessage(chatID, messageID int64) *Message {
	return &Message{
		MessageID: messageID,
		Chat:      Chat{ID: chatID, Type: "private"},
		Photo: []PhotoSize{
			{FileID: "small", Width: 90, Height: 60},
			{FileID: "big", Width: 1280, Height: 853},
		},
	}
}

func TestBotRunQueuesImageAndRepliesWithOutcome(t *testing.T) {
	api := &fakeBotAPI{
		image:   []byte("\x89PNG screenshot"),
		batches: [][]Update{{{UpdateID: 100, Message: photoMessage(42, 7)}}},
	}
	sub := &fakeSubmitter{}
	bot := newTestBot(t, api, sub, BotConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for len(api.messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	tasks := sub.submitted()
	if len(tasks) != 1 {
		t.Fatalf("submitted %d tasks", len(tasks))
	}
	task := tasks[0]
	if task.Source != pipeline.SourceImage || task.ChannelID != "42" || !bytes.Equal(task.Image, api.image) {
		t.Fatalf("task = %+v", task)
	}
	if len(api.fileIDs) != 1 || api.fileIDs[0] != "big" {
		t.Fatalf("getFile ids = %v", api.fileIDs)
	}

	sent := api.messages()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages", len(sent))
	}
	if sent[0].ChatID != "42" || sent[0].ReplyToMessageID != 7 || !strings.HasPrefix(sent[0].Text, "✅") {
		t.Fatalf("reply = %+v", sent[0])
	}

	api.mu.Lock()
	offsets := append([]int64(nil), api.offsets...)
	api.mu.Unlock()
	if len(offsets) < 2 || offsets[0] != 0 || offsets[1] != 101 {
		t.Fatalf("offsets = %v", offsets)
	}
}

func TestBotIgnoresImagesFromOtherChats(t *testing.T) {
	api := &fakeBotAPI{image: []byte("img")}
	sub := &fakeSubmitter{}
	bot := newTestBot(t, api, sub, BotConfig{})

	bot.handle(context.Background(), Update{UpdateID: 1, Message: photoMessage(99, 3)})
	bot.wg.Wait()

	if n := len(sub.submitted()); n != 0 {
		t.Fatalf("submitted %d tasks from an unauthorized chat", n)
	}
	if n := len(api.fileIDs); n != 0 {
		t.Fatalf("downloaded %d files from an unauthorized chat", n)
	}
	if n := len(api.messages()); n != 0 {
		t.Fatalf("sent %d replies", n)
	}
}

func TestBotChannelPostIsNotRepliedTwice(t *testing.T) {
	api := &fakeBotAPI{image: []byte("img")}
	sub := &fakeSubmitter{}
	bot := newTestBot(t, api, sub, BotConfig{AllowedChatID: "-100500", NotifyChatID: "-100500"})

	post := photoMessage(-100500, 11)
	post.Chat.Type = "channel"
	bot.handle(context.Background(), Update{UpdateID: 1, ChannelPost: post})
	bot.wg.Wait()

	if n := len(sub.submitted()); n != 1 {
		t.Fatalf("submitted %d tasks", n)
	}
	if n := len(api.messages()); n != 0 {
		t.Fatalf("channel post got %d replies, notifier already covers it", n)
	}
}

func TestBotImageDocument(t *testing.T) {
	api := &fakeBotAPI{image: []byte("img")}
	sub := &fakeSubmitter{}
	bot := newTestBot(t, api, sub, BotConfig{})

	msg := &Message{MessageID: 5, Chat: Chat{ID: 42}, Document: &Document{FileID: "doc", MimeType: "image/png"}}
	bot.handle(context.Background(), Update{UpdateID: 1, Message: msg})
	bot.wg.Wait()
	if n := len(sub.submitted()); n != 1 {
		t.Fatalf("submitted %d tasks", n)
	}

	pdf := &Message{MessageID: 6, Chat: Chat{ID: 42}, Document: &Document{FileID: "pdf", MimeType: "application/pdf"}}
	bot.handle(context.Background(), Update{UpdateID: 2, Message: pdf})
	bot.wg.Wait()
	if n := len(sub.submitted()); n != 1 {
		t.Fatalf("non-image document was queued, %d tasks", n)
	}
}

func TestBotQueueFullRepliesBusy(t *testing.T) {
	api := &fakeBotAPI{image: []byte("img")}
	bot := newTestBot(t, api, &fakeSubmitter{err: pipeline.ErrQueueFull}, BotConfig{})

	bot.handle(context.Background(), Update{UpdateID: 1, Message: photoMessage(42, 9)})
	bot.wg.Wait()

	sent := api.messages()
	if len(sent) != 1 || sent[0].Text != i18n.M().BotBusy || sent[0].ReplyToMessageID != 9 {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestBotCommands(t *testing.T) {
	api := &fakeBotAPI{}
	status := monitor.Status{
		Mode:           "bridge",
		Degraded:       true,
		Version:        "1.2.0",
		Uptime:         "5m0s",
		QueuedTasks:    2,
		PendingSignals: 3,
		ImageIntake:    true,
	}
	bot := newTestBot(t, api, &fakeSubmitter{}, BotConfig{
		Status: func(context.Context) monitor.Status { return status },
	})

	for i, text := range []string{"/start", "/help@signal_bot", "/status", "/nope", "hello"} {
		msg := &Message{MessageID: int64(i + 1), Chat: Chat{ID: 77, Type: "private"}, Text: text}
		bot.handle(context.Background(), Update{UpdateID: int64(i), Message: msg})
	}

	sent := api.messages()
	if len(sent) != 5 {
		t.Fatalf("sent %d replies", len(sent))
	}
	m := i18n.M()
	if sent[0].Text != m.BotWelcome || sent[1].Text != m.BotHelp {
		t.Fatalf("start/help replies = %q, %q", sent[0].Text, sent[1].Text)
	}
	for _, want := range []string{"Mode: bridge (degraded)", "Version: 1.2.0", "Queued tasks: 2", "Pending signals: 3", "Image intake: enabled"} {
		if !strings.Contains(sent[2].Text, want) {
			t.Fatalf("status reply missing %q:\n%s", want, sent[2].Text)
		}
	}
	if sent[3].Text != m.BotUnknown || sent[4].Text != m.BotUnknown {
		t.Fatalf("unknown replies = %q, %q", sent[3].Text, sent[4].Text)
	}
	if sent[2].ChatID != "77" || sent[2].ReplyToMessageID != 3 {
		t.Fatalf("status reply = %+v", sent[2])
	}
}

func TestBotChannelTextIsIgnored(t *testing.T) {
	api := &fakeBotAPI{}
	bot := newTestBot(t, api, &fakeSubmitter{}, BotConfig{})
	post := &Message{MessageID: 1, Chat: Chat{ID: 42, Type: "channel"}, Text: "gm traders"}
	bot.handle(context.Background(), Update{UpdateID: 1, ChannelPost: post})
	if n := len(api.messages()); n != 0 {
		t.Fatalf("sent %d replies to channel chatter", n)
	}
}

func TestNewBotRequiresAllowedChat(t *testing.T) {
	tg, _ := NewTelegram("", "t", "1")
	if _, err := NewBot(tg, &fakeSubmitter{}, BotConfig{}); err == nil {
		t.Fatal("expected error without allowed chat id")
	}
	if _, err := NewBot(nil, &fakeSubmitter{}, BotConfig{AllowedChatID: "1"}); err == nil {
		t.Fatal("expected error without telegram client")
	}
}

func TestTelegramDownloadLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer srv.Close()
	tg, _ := NewTelegram(srv.URL, testToken, "1")

	if _, err := tg.Download(context.Background(), &File{FileID: "a", FileSize: 64, FilePath: "a.jpg"}, 32); err == nil {
		t.Fatal("expected error for declared size over limit")
	}
	// Size unknown up front, enforced while reading.
	if _, err := tg.Download(context.Background(), &File{FileID: "b", FilePath: "b.jpg"}, 32); err == nil {
		t.Fatal("expected error for body over limit")
	}
	data, err := tg.Download(context.Background(), &File{FileID: "c", FilePath: "c.jpg"}, 64)
	if err != nil || len(data) != 64 {
		t.Fatalf("Download = %d bytes, %v", len(data), err)
	}
}

func TestCommandParsing(t *testing.T) {
	cases := map[string]string{
		"/status":            "/status",
		"  /Help extra":      "/help",
		"/start@signal_bot":  "/start",
		"#XAUUSD Sell Setup": "",
		"":                   "",
	}
	for in, want := range cases {
		if got := command(in); got != want {
			t.Errorf("command(%q) = %q, want %q", in, got, want)
		}
	}
}
