// Package store persists serialized graph definitions and the adjustment
// audit trail to PostgreSQL. It is a pure collaborator: the evaluation
// engine itself is in-memory and is rebuilt from definitions on load.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/quantfold/fingraph/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL-backed definition and audit repository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New verifies the connection and returns a Store.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

const sqlUpsertDefinition = `
INSERT INTO graph_definitions (name, payload, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET
    payload = EXCLUDED.payload,
    updated_at = EXCLUDED.updated_at`

const sqlSelectDefinition = `
SELECT payload FROM graph_definitions WHERE name = $1`

// SaveDefinition upserts a serialized graph definition under its name.
func (s *Store) SaveDefinition(ctx context.Context, def schemas.GraphDefinition) error {
	if def.Name == "" {
		return errors.New("definition has no name")
	}
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshalling definition %q: %w", def.Name, err)
	}
	if _, err := s.pool.Exec(ctx, sqlUpsertDefinition, def.Name, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("saving definition %q: %w", def.Name, err)
	}
	s.log.Debug("definition saved", zap.String("name", def.Name), zap.Int("bytes", len(payload)))
	return nil
}

// LoadDefinition fetches a serialized definition by name.
func (s *Store) LoadDefinition(ctx context.Context, name string) (schemas.GraphDefinition, error) {
	var def schemas.GraphDefinition
	var payload []byte
	if err := s.pool.QueryRow(ctx, sqlSelectDefinition, name).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return def, fmt.Errorf("definition %q not found", name)
		}
		return def, fmt.Errorf("loading definition %q: %w", name, err)
	}
	if err := json.Unmarshal(payload, &def); err != nil {
		return def, fmt.Errorf("unmarshalling definition %q: %w", name, err)
	}
	return def, nil
}

// AppendAdjustments bulk-inserts the adjustment audit trail for one graph
// using the pgx CopyFrom protocol.
func (s *Store) AppendAdjustments(ctx context.Context, graphName string, adjustments []schemas.AdjustmentDefinition) error {
	if len(adjustments) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("rolling back adjustment append", zap.Error(rollbackErr))
		}
	}()

	rows := make([][]interface{}, len(adjustments))
	for i, a := range adjustments {
		tags, err := json.Marshal(a.Tags)
		if err != nil {
			return fmt.Errorf("marshalling tags for adjustment %s: %w", a.ID, err)
		}
		rows[i] = []interface{}{
			a.ID, graphName, a.Node, a.Period, a.Value, a.Kind,
			a.Reason, a.Scenario, tags, a.Priority, a.CreatedAt,
		}
	}

	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"graph_adjustments"},
		[]string{"id", "graph", "node", "period", "value", "kind", "reason", "scenario", "tags", "priority", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copying adjustments: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing adjustment append: %w", err)
	}
	s.log.Debug("adjustments appended", zap.String("graph", graphName), zap.Int("count", len(adjustments)))
	return nil
}
