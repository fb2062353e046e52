package db

import (
	"context"
	"database/sql"
	"time"
)

// Queries wraps the statements used by the history store.
type Queries struct {
	db *sql.DB
}

func New(conn *sql.DB) *Queries {
	return &Queries{db: conn}
}

type Session struct {
	ID        string
	Channel   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Turns     int64
}

type Turn struct {
	ID           int64
	SessionID    string
	UserMessage  string
	ResponseJson string
	OutputText   string
	Model        sql.NullString
	Iterations   int64
	CreatedAt    time.Time
}

type UpsertSessionParams struct {
	ID      string
	Channel string
}

const upsertSession = `
INSERT INTO sessions (id, channel) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET updated_at = CURRENT_TIMESTAMP`

func (q *Queries) UpsertSession(ctx context.Context, arg UpsertSessionParams) error {
	_, err := q.db.ExecContext(ctx, upsertSession, arg.ID, arg.Channel)
	return err
}

const getSession = `
SELECT s.id, s.channel, s.created_at, s.updated_at,
       (SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id)
FROM sessions s WHERE s.id = ?`

func (q *Queries) GetSession(ctx context.Context, id string) (Session, error) {
	var s Session
	err := q.db.QueryRowContext(ctx, getSession, id).Scan(&s.ID, &s.Channel, &s.CreatedAt, &s.UpdatedAt, &s.Turns)
	return s, err
}

const listSessions = `
SELECT s.id, s.channel, s.created_at, s.updated_at,
       (SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id)
FROM sessions s ORDER BY s.updated_at DESC, s.id LIMIT ?`

func (q *Queries) ListSessions(ctx context.Context, limit int64) ([]Session, error) {
	rows, err := q.db.QueryContext(ctx, listSessions, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Channel, &s.CreatedAt, &s.UpdatedAt, &s.Turns); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type InsertTurnParams struct {
	SessionID    string
	UserMessage  string
	ResponseJson string
	OutputText   string
	Model        sql.NullString
	Iterations   int64
}

const insertTurn = `
INSERT INTO turns (session_id, user_message, response_json, output_text, model, iterations)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTurn(ctx context.Context, arg InsertTurnParams) error {
	_, err := q.db.ExecContext(ctx, insertTurn,
		arg.SessionID, arg.UserMessage, arg.ResponseJson, arg.OutputText, arg.Model, arg.Iterations)
	return err
}

const getTurnsBySession = `
SELECT id, session_id, user_message, response_json, output_text, model, iterations, created_at
FROM turns WHERE session_id = ? ORDER BY id`

func (q *Queries) GetTurnsBySession(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := q.db.QueryContext(ctx, getTurnsBySession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.UserMessage, &t.ResponseJson,
			&t.OutputText, &t.Model, &t.Iterations, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const countTurnsBySession = `SELECT COUNT(*) FROM turns WHERE session_id = ?`

func (q *Queries) CountTurnsBySession(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countTurnsBySession, sessionID).Scan(&n)
	return n, err
}
