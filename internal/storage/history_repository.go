package storage

import (
	"context"
	"time"

	"github.com/balance-tracker/internal/errors"
	"github.com/balance-tracker/internal/types"
)

// NetWorthPoint is one point of the net worth time series.
type NetWorthPoint struct {
	Timestamp time.Time `json:"timestamp"`
	NetUSD    float64   `json:"net_usd"`
}

// HistoryRepository appends timed per-asset balance rows to ClickHouse so
// net worth can be charted over time. Amounts keep full precision as
// strings; usd_value is stored as a float for aggregation.
type HistoryRepository struct {
	db *ClickHouseDB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *ClickHouseDB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// EnsureSchema creates the history table when it does not exist yet.
func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS balance_history (
			timestamp DateTime,
			asset String,
			amount String,
			usd_value Float64
		) ENGINE = MergeTree()
		ORDER BY (timestamp, asset)
	`
	if err := r.db.Exec(ctx, query); err != nil {
		return errors.NewDatabaseError("history schema", err)
	}
	return nil
}

// AppendSnapshot writes one row per combined asset at the given timestamp.
func (r *HistoryRepository) AppendSnapshot(ctx context.Context, at time.Time, snapshot *types.PortfolioSnapshot) error {
	batch, err := r.db.Conn().PrepareBatch(ctx, "INSERT INTO balance_history (timestamp, asset, amount, usd_value)")
	if err != nil {
		return errors.NewDatabaseError("history batch prepare", err)
	}

	for asset, balance := range snapshot.Combined {
		if err := batch.Append(at, string(asset), balance.Amount.String(), balance.USDValue.InexactFloat64()); err != nil {
			return errors.NewDatabaseError("history batch append", err)
		}
	}

	if err := batch.Send(); err != nil {
		return errors.NewDatabaseError("history batch send", err)
	}
	return nil
}

// NetWorthHistory returns total USD value per recorded timestamp in the
// given range.
func (r *HistoryRepository) NetWorthHistory(ctx context.Context, from, to time.Time) ([]NetWorthPoint, error) {
	query := `
		SELECT timestamp, sum(usd_value) AS net_usd
		FROM balance_history
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY timestamp
		ORDER BY timestamp
	`

	rows, err := r.db.Conn().Query(ctx, query, from, to)
	if err != nil {
		return nil, errors.NewDatabaseError("history query", err)
	}
	defer rows.Close()

	var points []NetWorthPoint
	for rows.Next() {
		var point NetWorthPoint
		if err := rows.Scan(&point.Timestamp, &point.NetUSD); err != nil {
			return nil, errors.NewDatabaseError("history scan", err)
		}
		points = append(points, point)
	}

	return points, rows.Err()
}
