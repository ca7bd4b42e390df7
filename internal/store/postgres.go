package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/thrillee/smppsim/internal/message"
)

// Querier is the subset of *pgxpool.Pool the Postgres store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	upsertMessage = `INSERT INTO messages (id, direction, from_addr, to_addr, reference_id, received_at, record)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	direction = EXCLUDED.direction,
	from_addr = EXCLUDED.from_addr,
	to_addr = EXCLUDED.to_addr,
	reference_id = EXCLUDED.reference_id,
	received_at = EXCLUDED.received_at,
	record = EXCLUDED.record`

	getMessage = `SELECT record FROM messages WHERE id = $1`

	listMessages = `SELECT record FROM messages
WHERE ($1 = '' OR from_addr = $1)
  AND ($2 = '' OR to_addr = $2)
  AND ($3 = '' OR upper(direction) = upper($3))
ORDER BY received_at DESC, id
LIMIT NULLIF($4::int, 0) OFFSET $5`
)

// PostgresStore persists records as JSONB rows.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore wraps a pgx pool (or any Querier).
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) PutOrUpdate(ctx context.Context, id string, rec message.Record) bool {
	body, err := json.Marshal(rec)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal message record", slog.String("id", id), slog.Any("error", err))
		return false
	}
	_, err = s.db.Exec(ctx, upsertMessage, id, rec.Direction, rec.From, rec.To, rec.ReferenceID, rec.ReceivedAt, body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to upsert message record", slog.String("id", id), slog.Any("error", err))
		return false
	}
	return true
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (message.Record, bool) {
	var body []byte
	err := s.db.QueryRow(ctx, getMessage, id).Scan(&body)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			slog.ErrorContext(ctx, "Failed to fetch message record", slog.String("id", id), slog.Any("error", err))
		}
		return message.Record{}, false
	}
	var rec message.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		slog.ErrorContext(ctx, "Corrupt message record", slog.String("id", id), slog.Any("error", err))
		return message.Record{}, false
	}
	return rec, true
}

func (s *PostgresStore) List(ctx context.Context, f message.Filter) ([]message.Record, error) {
	rows, err := s.db.Query(ctx, listMessages, f.From, f.To, f.Direction, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []message.Record{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rec message.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
