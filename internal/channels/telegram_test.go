package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"summa/internal/agent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, sessionID, message string, emit func(agent.Event)) error

func (f runnerFunc) Run(ctx context.Context, sessionID, message string, emit func(agent.Event)) error {
	return f(ctx, sessionID, message, emit)
}

type botAPI struct {
	srv  *httptest.Server
	sent chan telegramSendRequest
}

func newBotAPI(t *testing.T) *botAPI {
	t.Helper()
	b := &botAPI{sent: make(chan telegramSendRequest, 4)}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.URL.Path == telegramSendMsg {
			var req telegramSendRequest
			if err := json.Unmarshal(body, &req); err == nil {
				b.sent <- req
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func postUpdate(t *testing.T, mux *http.ServeMux, body string, header ...string) int {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", bytes.NewBufferString(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	mux.ServeHTTP(rec, req)
	return rec.Code
}

func TestTelegramRepliesWithAgentOutput(t *testing.T) {
	api := newBotAPI(t)

	var gotSession, gotMessage string
	runner := runnerFunc(func(ctx context.Context, sessionID, message string, emit func(agent.Event)) error {
		gotSession, gotMessage = sessionID, message
		assert.Equal(t, "telegram", agent.ChannelFromContext(ctx))
		emit(agent.Event{Type: agent.EventDone, Data: "Resumen en español"})
		return nil
	})

	tg := NewTelegram("token", nil, runner, WithTelegramAPI(api.srv.URL), WithTelegramClient(api.srv.Client()))
	mux := http.NewServeMux()
	tg.RegisterRoutes(mux)

	code := postUpdate(t, mux, `{"message":{"chat":{"id":42},"from":{"id":7},"text":"Summarize: long text"}}`)
	assert.Equal(t, http.StatusOK, code)

	select {
	case sent := <-api.sent:
		assert.Equal(t, int64(42), sent.ChatID)
		assert.Equal(t, "Resumen en español", sent.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("no message sent")
	}
	assert.Equal(t, "telegram:42", gotSession)
	assert.Equal(t, "Summarize: long text", gotMessage)
}

func TestTelegramIgnoresUnlistedUsers(t *testing.T) {
	api := newBotAPI(t)
	called := make(chan struct{}, 1)
	runner := runnerFunc(func(context.Context, string, string, func(agent.Event)) error {
		called <- struct{}{}
		return nil
	})

	tg := NewTelegram("token", []int64{1}, runner, WithTelegramAPI(api.srv.URL))
	mux := http.NewServeMux()
	tg.RegisterRoutes(mux)

	assert.Equal(t, http.StatusOK, postUpdate(t, mux, `{"message":{"chat":{"id":42},"from":{"id":7},"text":"hi"}}`))
	assert.Equal(t, http.StatusOK, postUpdate(t, mux, `{"message":{"chat":{"id":42},"text":""}}`))
	assert.Equal(t, http.StatusBadRequest, postUpdate(t, mux, `{`))

	select {
	case <-called:
		t.Fatal("runner should not be called")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTelegramRequiresSecretToken(t *testing.T) {
	api := newBotAPI(t)
	called := make(chan string, 2)
	runner := runnerFunc(func(_ context.Context, _ string, message string, emit func(agent.Event)) error {
		called <- message
		emit(agent.Event{Type: agent.EventDone, Data: "ok"})
		return nil
	})

	tg := NewTelegram("token", nil, runner,
		WithTelegramAPI(api.srv.URL),
		WithTelegramClient(api.srv.Client()),
		WithTelegramSecret("s3cret"),
	)
	mux := http.NewServeMux()
	tg.RegisterRoutes(mux)

	update := `{"message":{"chat":{"id":42},"from":{"id":7},"text":"hi"}}`
	assert.Equal(t, http.StatusUnauthorized, postUpdate(t, mux, update))
	assert.Equal(t, http.StatusUnauthorized, postUpdate(t, mux, update, telegramSecretHeader, "wrong"))
	assert.Equal(t, http.StatusOK, postUpdate(t, mux, update, telegramSecretHeader, "s3cret"))

	select {
	case msg := <-called:
		assert.Equal(t, "hi", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("runner not called")
	}
	select {
	case <-called:
		t.Fatal("rejected updates must not reach the runner")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTelegramAllowed(t *testing.T) {
	tg := NewTelegram("token", []int64{7}, nil)
	require.True(t, tg.allowed(&telegramUser{ID: 7}))
	require.False(t, tg.allowed(&telegramUser{ID: 8}))
	require.False(t, tg.allowed(nil))
	require.True(t, NewTelegram("token", nil, nil).allowed(nil))
}
