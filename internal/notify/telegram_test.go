package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTelegramSend(t *testing.T) {
	var got sendMessageRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	tg, err := NewTelegram(srv.URL, "123:abc", "-100777")
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	if err := tg.Send("✅ Trade signal saved successfully!"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("path = %s", path)
	}
	if got.ChatID != "-100777" || !strings.HasPrefix(got.Text, "✅") {
		t.Fatalf("request = %+v", got)
	}
}

func TestTelegramErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	tg, _ := NewTelegram(srv.URL, "123:abc", "1")
	err := tg.SendTo(context.Background(), "nope", "hi")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("err = %v", err)
	}

	if _, err := NewTelegram("", "", "1"); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := NewTelegram("", "t", ""); err == nil {
		t.Fatal("expected error for empty chat id")
	}
}

func TestTelegramTruncatesLongMessages(t *testing.T) {
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg, _ := NewTelegram(srv.URL, "t", "1")
	if err := tg.Send(strings.Repeat("é", 5000)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := utf8.RuneCountInString(got.Text); n != maxMessageLen {
		t.Fatalf("text has %d runes", n)
	}
}
