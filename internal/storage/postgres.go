package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chainhook-relay/internal/models"
	"chainhook-relay/internal/retry"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on startup; seq preserves arrival order across restarts
const schema = `
	CREATE TABLE IF NOT EXISTS chain_events (
		seq            BIGSERIAL PRIMARY KEY,
		id             TEXT NOT NULL UNIQUE,
		txid           TEXT NOT NULL,
		contract       TEXT NOT NULL,
		function_name  TEXT NOT NULL,
		args           JSON NOT NULL DEFAULT '[]'::json,
		received_at    TIMESTAMPTZ NOT NULL,
		status         TEXT NOT NULL DEFAULT 'applied',
		rolled_back_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS chain_events_txid_idx ON chain_events (txid);
	CREATE INDEX IF NOT EXISTS chain_events_contract_idx ON chain_events (contract, seq DESC);
	CREATE INDEX IF NOT EXISTS chain_events_function_idx ON chain_events (function_name, seq DESC);
`

const selectColumns = `id, txid, contract, function_name, args, received_at, status, rolled_back_at`

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
// Pool creation and the first ping run under the retry strategy so the relay
// can start alongside a database that is still booting.
func NewPostgresRepository(ctx context.Context, databaseURL string, strategy retry.Strategy) (*PostgresRepository, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	if strategy == nil {
		strategy = retry.NewNoRetryStrategy()
	}

	var pool *pgxpool.Pool
	err := strategy.Execute(ctx, func() error {
		p, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}

		// Test the connection
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return fmt.Errorf("failed to ping database: %w", err)
		}

		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	slog.Info("Postgres event store ready", "retry_strategy", strategy.Name())

	return &PostgresRepository{
		pool: pool,
	}, nil
}

// ApplyDelivery tags rolled-back events and inserts the new ones in a
// single transaction, all or nothing
func (r *PostgresRepository) ApplyDelivery(ctx context.Context, rolledBack []string, events []models.ChainEvent, at time.Time) (int, error) {
	if len(rolledBack) == 0 && len(events) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tagged := 0
	if len(rolledBack) > 0 {
		query := `
			UPDATE chain_events
			SET status = $1, rolled_back_at = $2
			WHERE txid = ANY($3) AND status <> $1
		`
		tag, err := tx.Exec(ctx, query, models.StatusRolledBack, at.UTC(), rolledBack)
		if err != nil {
			return 0, fmt.Errorf("failed to tag rolled back events: %w", err)
		}
		tagged = int(tag.RowsAffected())
	}

	if len(events) > 0 {
		query := `
			INSERT INTO chain_events (
				id, txid, contract, function_name, args, received_at, status, rolled_back_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`

		batch := &pgx.Batch{}
		for _, event := range events {
			batch.Queue(query,
				event.ID,
				event.TxID,
				event.Contract,
				event.Function,
				encodeArgs(event.Args),
				event.Timestamp,
				event.Status,
				event.RolledBackAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range events {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return 0, fmt.Errorf("failed to save event: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return 0, fmt.Errorf("failed to close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return tagged, nil
}

// SaveEvents saves events in a single transaction
func (r *PostgresRepository) SaveEvents(ctx context.Context, events []models.ChainEvent) error {
	_, err := r.ApplyDelivery(ctx, nil, events, time.Time{})
	return err
}

// MarkRolledBack tags applied events of the given transactions
func (r *PostgresRepository) MarkRolledBack(ctx context.Context, txIDs []string, at time.Time) (int, error) {
	return r.ApplyDelivery(ctx, txIDs, nil, at)
}

// ListEvents lists matching events newest first with the pre-limit match count
func (r *PostgresRepository) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.ChainEvent, int, error) {
	where, args := buildWhere(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM chain_events` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	query := `SELECT ` + selectColumns + ` FROM chain_events` + where + ` ORDER BY seq DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []models.ChainEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating events: %w", err)
	}

	return events, total, nil
}

// GetEventByTxID returns the first applied event for txID, falling back to
// the first rolled-back one
func (r *PostgresRepository) GetEventByTxID(ctx context.Context, txID string) (*models.ChainEvent, error) {
	query := `SELECT ` + selectColumns + ` FROM chain_events WHERE txid = $1 ORDER BY (status = $2), seq ASC LIMIT 1`

	event, err := scanEvent(r.pool.QueryRow(ctx, query, txID, models.StatusRolledBack))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return event, nil
}

// CountEvents returns the number of stored events
func (r *PostgresRepository) CountEvents(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chain_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) Name() string { return "postgres" }

// Ping checks if the database connection is alive
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func buildWhere(filter models.EventFilter) (string, []any) {
	var clauses []string
	var args []any

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("contract", filter.Contract)
	add("function_name", filter.Function)
	add("status", filter.Status)

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// encodeArgs joins the raw argument values so the JSON column keeps them byte for byte
func encodeArgs(args []json.RawMessage) []byte {
	out := []byte{'['}
	for i, arg := range args {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, arg...)
	}
	return append(out, ']')
}

func scanEvent(row pgx.Row) (*models.ChainEvent, error) {
	var event models.ChainEvent
	var argsJSON []byte

	err := row.Scan(
		&event.ID,
		&event.TxID,
		&event.Contract,
		&event.Function,
		&argsJSON,
		&event.Timestamp,
		&event.Status,
		&event.RolledBackAt,
	)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	if err := json.Unmarshal(argsJSON, &event.Args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	if event.Args == nil {
		event.Args = []json.RawMessage{}
	}
	event.Timestamp = event.Timestamp.UTC()

	return &event, nil
}
