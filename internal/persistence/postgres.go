package persistence

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PGConn is the subset of *pgxpool.Pool the store uses.
type PGConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps records and checkpoints as JSONB rows.
type PostgresStore struct {
	conn PGConn
	pool *pgxpool.Pool
}

// OpenPostgres connects, applies pending migrations and returns the store.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persistence: postgres ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{conn: pool, pool: pool}, nil
}

// NewPostgresStore wraps an existing connection; migrations are the caller's job.
func NewPostgresStore(conn PGConn) *PostgresStore {
	return &PostgresStore{conn: conn}
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("persistence: goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("persistence: migrate: %w", err)
	}
	for _, r := range results {
		if r.Source != nil {
			log.Printf("[persist] migrated %s in %s", r.Source.Path, r.Duration)
		}
	}
	return nil
}

func (p *PostgresStore) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	data, err := json.Marshal(cp.State)
	if err != nil {
		return err
	}
	_, err = p.conn.Exec(ctx, `
		INSERT INTO interview_checkpoints (session_id, saved_at, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET saved_at = EXCLUDED.saved_at, state = EXCLUDED.state`,
		cp.SessionID, cp.SavedAt, string(data))
	if err != nil {
		return fmt.Errorf("persistence: save checkpoint: %w", err)
	}
	return nil
}

func (p *PostgresStore) SaveRecord(ctx context.Context, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = p.conn.Exec(ctx, `
		INSERT INTO interview_records (session_id, user_id, interview_id, status, started_at, completed_at, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO NOTHING`,
		r.SessionID, r.UserID, r.InterviewID, string(r.Status), r.StartedAt, r.CompletedAt, string(data))
	if err != nil {
		return fmt.Errorf("persistence: save record: %w", err)
	}
	if _, err := p.conn.Exec(ctx, `DELETE FROM interview_checkpoints WHERE session_id = $1`, r.SessionID); err != nil {
		log.Printf("[persist] drop checkpoint session=%s err=%v", r.SessionID, err)
	}
	return nil
}

func (p *PostgresStore) GetRecord(ctx context.Context, sessionID string) (Record, error) {
	var raw []byte
	err := p.conn.QueryRow(ctx, `SELECT record FROM interview_records WHERE session_id = $1`, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("persistence: get record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("persistence: decode record: %w", err)
	}
	return r, nil
}

func (p *PostgresStore) ListRecords(ctx context.Context) ([]Record, error) {
	rows, err := p.conn.Query(ctx, `SELECT record FROM interview_records ORDER BY completed_at`)
	if err != nil {
		return nil, fmt.Errorf("persistence: list records: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("persistence: decode record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
