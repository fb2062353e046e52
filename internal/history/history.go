package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"summa/internal/db"
	"summa/internal/llm"

	"github.com/openai/openai-go/v3/responses"
)

// Turn is one persisted user message and the agent's final reply.
type Turn struct {
	ID         int64     `json:"id"`
	Message    string    `json:"message"`
	Output     string    `json:"output"`
	Model      string    `json:"model,omitempty"`
	Iterations int64     `json:"iterations"`
	CreatedAt  time.Time `json:"created_at"`
}

type Session struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Turns     int64     `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	q *db.Queries
}

func NewStore(database *db.DB) *Store {
	return &Store{q: db.New(database.Conn())}
}

func (s *Store) EnsureSession(ctx context.Context, sessionID, channel string) error {
	return s.q.UpsertSession(ctx, db.UpsertSessionParams{
		ID:      sessionID,
		Channel: channel,
	})
}

func (s *Store) SaveTurn(ctx context.Context, sessionID, userMessage string, resp *responses.Response, iterations int) error {
	return s.q.InsertTurn(ctx, db.InsertTurnParams{
		SessionID:    sessionID,
		UserMessage:  userMessage,
		ResponseJson: resp.RawJSON(),
		OutputText:   llm.OutputText(resp),
		Model:        sql.NullString{String: string(resp.Model), Valid: resp.Model != ""},
		Iterations:   int64(iterations),
	})
}

func (s *Store) LoadInputHistory(ctx context.Context, sessionID string) ([]responses.ResponseInputItemUnionParam, error) {
	turns, err := s.q.GetTurnsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var items []responses.ResponseInputItemUnionParam
	for _, turn := range turns {
		items = append(items, responses.ResponseInputItemParamOfMessage(turn.UserMessage, "user"))

		var resp responses.Response
		if err := json.Unmarshal([]byte(turn.ResponseJson), &resp); err != nil {
			slog.Warn("skipping turn with invalid response JSON", "turn_id", turn.ID, "error", err)
			continue
		}

		// Only the final answer is replayed. Intermediate tool calls live in
		// the same run's input and would need their outputs paired with them.
		items = append(items, OutputToInput(messagesOnly(resp.Output))...)
	}

	return items, nil
}

func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.ListSessions(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, Session{
			ID:        r.ID,
			Channel:   r.Channel,
			Turns:     r.Turns,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return out, nil
}

func (s *Store) Session(ctx context.Context, sessionID string) (*Session, error) {
	r, err := s.q.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        r.ID,
		Channel:   r.Channel,
		Turns:     r.Turns,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func (s *Store) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.q.GetTurnsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]Turn, 0, len(rows))
	for _, r := range rows {
		out = append(out, Turn{
			ID:         r.ID,
			Message:    r.UserMessage,
			Output:     r.OutputText,
			Model:      r.Model.String,
			Iterations: r.Iterations,
			CreatedAt:  r.CreatedAt,
		})
	}
	return out, nil
}

func messagesOnly(output []responses.ResponseOutputItemUnion) []responses.ResponseOutputItemUnion {
	var out []responses.ResponseOutputItemUnion
	for _, item := range output {
		if item.Type == "message" {
			out = append(out, item)
		}
	}
	return out
}

// OutputToInput converts response output items into input item params
// for the next API call.
func OutputToInput(output []responses.ResponseOutputItemUnion) []responses.ResponseInputItemUnionParam {
	var items []responses.ResponseInputItemUnionParam
	for _, item := range output {
		switch item.Type {
		case "message":
			v := item.AsMessage().ToParam()
			items = append(items, responses.ResponseInputItemUnionParam{OfOutputMessage: &v})
		case "function_call":
			v := item.AsFunctionCall().ToParam()
			items = append(items, responses.ResponseInputItemUnionParam{OfFunctionCall: &v})
		case "reasoning":
			v := item.AsReasoning().ToParam()
			items = append(items, responses.ResponseInputItemUnionParam{OfReasoning: &v})
		default:
			slog.Debug("skipping unsupported output item type", "type", item.Type)
		}
	}
	return items
}
