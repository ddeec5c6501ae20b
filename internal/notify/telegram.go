package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram's limit for one message.
const maxMessageLen = 4096

// Telegram talks to the Bot API: plain text messages out, updates and
// files in.
type Telegram struct {
	base   string
	token  string
	chatID string
	// No client timeout: getUpdates long-polls, every call carries a
	// context deadline instead.
	client *http.Client
}

// NewTelegram returns a client whose Send goes to chatID. base may be empty.
func NewTelegram(base, token, chatID string) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("bot token is empty")
	}
	if chatID == "" {
		return nil, errors.New("chat id is empty")
	}
	if base == "" {
		base = defaultAPIBase
	}
	return &Telegram{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		chatID: chatID,
		client: &http.Client{},
	}, nil
}

// Update is one entry of getUpdates. Only the kinds the bot asks for are
// decoded.
type Update struct {
	UpdateID    int64    `json:"update_id"`
	Message     *Message `json:"message,omitempty"`
	ChannelPost *Message `json:"channel_post,omitempty"`
}

type Message struct {
	MessageID int64       `json:"message_id"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Document  *Document   `json:"document,omitempty"`
}

type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// PhotoSize is one resolution of a photo; Telegram lists them smallest first.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// File is the getFile result; FilePath is relative to the file endpoint.
type File struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

type sendMessageRequest struct {
	ChatID           string `json:"chat_id"`
	Text             string `json:"text"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Send delivers text to the configured chat.
func (t *Telegram) Send(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return t.SendTo(ctx, t.chatID, text)
}

// SendTo delivers text to chatID.
func (t *Telegram) SendTo(ctx context.Context, chatID, text string) error {
	return t.Reply(ctx, chatID, 0, text)
}

// Reply delivers text to chatID as a reply to messageID (0 for none).
func (t *Telegram) Reply(ctx context.Context, chatID string, messageID int64, text string) error {
	if r := []rune(text); len(r) > maxMessageLen {
		text = string(r[:maxMessageLen-1]) + "…"
	}
	return t.call(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text, ReplyToMessageID: messageID}, nil)
}

// GetUpdates long-polls for up to wait and returns updates from offset on.
func (t *Telegram) GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error) {
	ctx, cancel := context.WithTimeout(ctx, wait+10*time.Second)
	defer cancel()
	var updates []Update
	err := t.call(ctx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(wait / time.Second),
		AllowedUpdates: []string{"message", "channel_post"},
	}, &updates)
	return updates, err
}

// GetFile resolves a file id to a downloadable path.
func (t *Telegram) GetFile(ctx context.Context, fileID string) (*File, error) {
	var f File
	if err := t.call(ctx, "getFile", map[string]string{"file_id": fileID}, &f); err != nil {
		return nil, err
	}
	if f.FilePath == "" {
		return nil, fmt.Errorf("telegram getFile: no path for %s", fileID)
	}
	return &f, nil
}

// Download fetches a file returned by GetFile, refusing more than limit bytes.
func (t *Telegram) Download(ctx context.Context, f *File, limit int64) ([]byte, error) {
	if limit > 0 && f.FileSize > limit {
		return nil, fmt.Errorf("telegram file %s is %d bytes, limit %d", f.FileID, f.FileSize, limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/file/bot"+t.token+"/"+f.FilePath, nil)
	if err != nil {
		return nil, errors.New("telegram download: bad request")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, redact("download", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram download: status %d", resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if limit > 0 {
		body = io.LimitReader(resp.Body, limit+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, redact("download", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("telegram file %s exceeds %d bytes", f.FileID, limit)
	}
	return data, nil
}

// call POSTs payload to method and decodes the result into out when non-nil.
func (t *Telegram) call(ctx context.Context, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.base+"/bot"+t.token+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: bad request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return redact(method, err)
	}
	defer resp.Body.Close()

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return fmt.Errorf("telegram %s: status %d", method, resp.StatusCode)
	}
	if !ar.OK {
		return fmt.Errorf("telegram %s: %s", method, ar.Description)
	}
	if out != nil && len(ar.Result) > 0 {
		if err := json.Unmarshal(ar.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

// redact drops the *url.Error wrapper, whose URL carries the token.
func redact(method string, err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("telegram %s: %w", method, uerr.Err)
	}
	return fmt.Errorf("telegram %s failed", method)
}
