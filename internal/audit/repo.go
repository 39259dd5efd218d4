package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS portal_session_events (
	id UUID PRIMARY KEY,
	browser_id TEXT NOT NULL,
	user_id BIGINT NOT NULL,
	role TEXT NOT NULL,
	kind TEXT NOT NULL,
	remote_addr TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS portal_session_events_created_idx ON portal_session_events (created_at DESC)`

// PGRepository stores events in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// EnsureSchema creates the events table when missing.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

// InsertEvent implements Repository.
func (r *PGRepository) InsertEvent(ctx context.Context, ev Event) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO portal_session_events (id, browser_id, user_id, role, kind, remote_addr, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.BrowserID, ev.UserID, ev.Role, string(ev.Kind), ev.RemoteAddr, ev.UserAgent, ev.CreatedAt)
	return err
}

// ListEvents implements Repository.
func (r *PGRepository) ListEvents(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Event, error) {
	query, args := listEventsQuery(filters, offset, limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var ev Event
		var kind string
		err := row.Scan(&ev.ID, &ev.BrowserID, &ev.UserID, &ev.Role, &kind, &ev.RemoteAddr, &ev.UserAgent, &ev.CreatedAt)
		ev.Kind = Kind(kind)
		return ev, err
	})
}

func listEventsQuery(filters TimelineFilters, offset, limit int) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filters.UserID > 0 {
		args = append(args, filters.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filters.Kind != "" {
		args = append(args, string(filters.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	var b strings.Builder
	b.WriteString(`SELECT id, browser_id, user_id, role, kind, remote_addr, user_agent, created_at FROM portal_session_events`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, limit, offset)
	fmt.Fprintf(&b, " ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return b.String(), args
}
