package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/balance-tracker/internal/errors"
	"github.com/balance-tracker/internal/types"
)

// SavedSnapshot is a persisted portfolio snapshot row.
type SavedSnapshot struct {
	ID        string                   `json:"id"`
	NetUSD    string                   `json:"net_usd"`
	Snapshot  *types.PortfolioSnapshot `json:"snapshot"`
	CreatedAt time.Time                `json:"created_at"`
}

// SnapshotRepository persists portfolio snapshots in Postgres. It is the
// receiving end of the save_balances_data hand-off; the snapshot itself
// stays opaque JSON.
type SnapshotRepository struct {
	db *PostgresDB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *PostgresDB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save persists a snapshot and returns its generated ID.
func (r *SnapshotRepository) Save(ctx context.Context, snapshot *types.PortfolioSnapshot) (string, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", errors.NewInternalError("failed to encode snapshot", err)
	}

	id := uuid.New().String()
	query := `
		INSERT INTO portfolio_snapshots (id, net_usd, data, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.Pool().Exec(ctx, query, id, snapshot.NetUSD.String(), data, time.Now().UTC()); err != nil {
		return "", errors.NewDatabaseError("snapshot insert", err)
	}

	return id, nil
}

// Latest returns the most recently saved snapshot, or nil when none exists.
func (r *SnapshotRepository) Latest(ctx context.Context) (*SavedSnapshot, error) {
	query := `
		SELECT id, net_usd, data, created_at
		FROM portfolio_snapshots
		ORDER BY created_at DESC
		LIMIT 1
	`

	var (
		saved SavedSnapshot
		data  []byte
	)
	row := r.db.Pool().QueryRow(ctx, query)
	if err := row.Scan(&saved.ID, &saved.NetUSD, &data, &saved.CreatedAt); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.NewDatabaseError("snapshot query", err)
	}

	if err := json.Unmarshal(data, &saved.Snapshot); err != nil {
		return nil, errors.NewInternalError("failed to decode snapshot", err)
	}

	return &saved, nil
}
