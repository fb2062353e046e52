package channels

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"summa/internal/agent"
)

const (
	telegramAPIBase      = "https://api.telegram.org/bot%s"
	telegramSendMsg      = "/sendMessage"
	telegramChatAction   = "/sendChatAction"
	telegramActionTyping = "typing"
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

	// Telegram rejects messages longer than this.
	telegramMaxMessage = 4096
)

// Telegram answers webhook messages by running the agent on their text.
type Telegram struct {
	runner       agent.Runner
	apiURL       string
	allowedUsers []int64
	secretToken  string
	client       *http.Client
	timeout      time.Duration
}

type TelegramOption func(*Telegram)

// WithTelegramAPI points the channel at a different Bot API base URL.
func WithTelegramAPI(url string) TelegramOption {
	return func(t *Telegram) { t.apiURL = url }
}

// WithTelegramSecret requires the secret token set on the webhook with
// setWebhook. Updates without it are rejected.
func WithTelegramSecret(secret string) TelegramOption {
	return func(t *Telegram) { t.secretToken = secret }
}

func WithTelegramClient(c *http.Client) TelegramOption {
	return func(t *Telegram) { t.client = c }
}

func NewTelegram(botToken string, allowedUsers []int64, runner agent.Runner, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		runner:       runner,
		apiURL:       fmt.Sprintf(telegramAPIBase, botToken),
		allowedUsers: allowedUsers,
		client:       &http.Client{Timeout: 30 * time.Second},
		timeout:      2 * time.Minute,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook/telegram", t.handleWebhook)
}

type telegramUpdate struct {
	Message *telegramMessage `json:"message"`
}

type telegramMessage struct {
	Chat telegramChat  `json:"chat"`
	From *telegramUser `json:"from"`
	Text string        `json:"text"`
}

type telegramChat struct {
	ID int64 `json:"id"`
}

type telegramUser struct {
	ID int64 `json:"id"`
}

type telegramSendRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (t *Telegram) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if t.secretToken != "" &&
		subtle.ConstantTimeCompare([]byte(r.Header.Get(telegramSecretHeader)), []byte(t.secretToken)) != 1 {
		slog.Warn("telegram: rejecting update with bad secret token")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Error("telegram: failed to decode update", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Telegram retries on non-2xx, so everything below acknowledges.
	w.WriteHeader(http.StatusOK)

	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}
	if !t.allowed(msg.From) {
		slog.Warn("telegram: ignoring message from unlisted user", "chat_id", msg.Chat.ID)
		return
	}

	go t.respond(msg.Chat.ID, msg.Text)
}

func (t *Telegram) allowed(from *telegramUser) bool {
	if len(t.allowedUsers) == 0 {
		return true
	}
	return from != nil && slices.Contains(t.allowedUsers, from.ID)
}

func (t *Telegram) respond(chatID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	ctx = agent.ContextWithChannel(ctx, t.Name())

	slog.Info("telegram: received message", "chat_id", chatID, "text_len", len(text))
	t.sendTyping(ctx, chatID)

	var output string
	sessionID := "telegram:" + strconv.FormatInt(chatID, 10)
	err := t.runner.Run(ctx, sessionID, text, func(ev agent.Event) {
		if ev.Type == agent.EventDone {
			output, _ = ev.Data.(string)
		}
	})
	if err != nil {
		slog.Error("telegram: run failed", "chat_id", chatID, "error", err)
		output = "Sorry, something went wrong: " + err.Error()
	}
	if output == "" {
		return
	}

	if err := t.sendMessage(ctx, chatID, output); err != nil {
		slog.Error("telegram: failed to send message", "chat_id", chatID, "error", err)
	}
}

func (t *Telegram) sendTyping(ctx context.Context, chatID int64) {
	body, _ := json.Marshal(map[string]any{
		"chat_id": chatID,
		"action":  telegramActionTyping,
	})
	if err := t.post(ctx, telegramChatAction, body); err != nil {
		slog.Warn("telegram: failed to send typing action", "chat_id", chatID, "error", err)
	}
}

func (t *Telegram) sendMessage(ctx context.Context, chatID int64, text string) error {
	if len(text) > telegramMaxMessage {
		text = strings.ToValidUTF8(text[:telegramMaxMessage], "")
	}
	body, err := json.Marshal(telegramSendRequest{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return err
	}
	return t.post(ctx, telegramSendMsg, body)
}

func (t *Telegram) post(ctx context.Context, method string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned %d", resp.StatusCode)
	}
	return nil
}
