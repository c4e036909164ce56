// Package journal persists cycle snapshots, trades and guard-rail rejections
// in a DuckDB database for after-the-fact analysis.
package journal

import (
	"database/sql"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/meanrev-lab/pairtrader/internal/logger"
	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

// Journal records the engine's decision trail. All writes are best-effort
// from the engine's point of view: a journal failure is logged, never traded
// around.
type Journal struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// New opens (or creates) a journal database at path. Use ":memory:" for an
// ephemeral journal.
func New(path string, log *logger.Logger) (*Journal, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeJournalInitFailed, err, "failed to open journal at %s", path)
	}

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, errors.Wrapf(errors.ErrCodeJournalInitFailed, err, "failed to connect to journal at %s", path)
	}

	j := &Journal{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := j.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return j, nil
}

func (j *Journal) initialize() error {
	_, err := j.db.Exec(`CREATE SEQUENCE IF NOT EXISTS trade_id_seq`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalInitFailed, "failed to create trade sequence", err)
	}

	_, err = j.db.Exec(`
		CREATE TABLE IF NOT EXISTS cycles (
			iteration INTEGER,
			timestamp TIMESTAMP,
			spread DOUBLE,
			mean DOUBLE,
			stdev DOUBLE,
			stats_ready BOOLEAN,
			position_state TEXT,
			qty_a DOUBLE,
			qty_b DOUBLE,
			delta DOUBLE,
			cash DOUBLE,
			realized_pnl DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalInitFailed, "failed to create cycles table", err)
	}

	_, err = j.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			trade_id INTEGER PRIMARY KEY DEFAULT nextval('trade_id_seq'),
			timestamp TIMESTAMP,
			signal TEXT,
			reason TEXT,
			status TEXT,
			symbol_a TEXT,
			side_a TEXT,
			price_a DOUBLE,
			volume_a DOUBLE,
			symbol_b TEXT,
			side_b TEXT,
			price_b DOUBLE,
			volume_b DOUBLE,
			execution_spread DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalInitFailed, "failed to create trades table", err)
	}

	_, err = j.db.Exec(`
		CREATE TABLE IF NOT EXISTS rejections (
			timestamp TIMESTAMP,
			signal TEXT,
			tag TEXT,
			message TEXT,
			spread DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalInitFailed, "failed to create rejections table", err)
	}

	return nil
}

// RecordCycle appends one polling-cycle snapshot.
func (j *Journal) RecordCycle(status types.CycleStatus) error {
	insertQuery := j.sq.
		Insert("cycles").
		Columns("iteration", "timestamp", "spread", "mean", "stdev", "stats_ready",
			"position_state", "qty_a", "qty_b", "delta", "cash", "realized_pnl").
		Values(status.Iteration, status.Time, status.Spread, status.Mean, status.Stdev,
			status.StatsReady, string(status.PositionState), status.PositionA, status.PositionB,
			status.Delta, status.Cash, status.RealizedPnL).
		RunWith(j.db)

	if _, err := insertQuery.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to record cycle", err)
	}

	return nil
}

// RecordTrade appends an execution outcome.
func (j *Journal) RecordTrade(outcome types.ExecutionOutcome) error {
	insertQuery := j.sq.
		Insert("trades").
		Columns("timestamp", "signal", "reason", "status",
			"symbol_a", "side_a", "price_a", "volume_a",
			"symbol_b", "side_b", "price_b", "volume_b",
			"execution_spread").
		Values(outcome.ExecutedAt, string(outcome.Intent.Signal), outcome.Intent.Reason,
			string(outcome.Status),
			outcome.LegA.Symbol, string(outcome.LegA.Side), outcome.LegA.FillPrice, outcome.LegA.FillVolume,
			outcome.LegB.Symbol, string(outcome.LegB.Side), outcome.LegB.FillPrice, outcome.LegB.FillVolume,
			outcome.Intent.ExecutionSpread).
		RunWith(j.db)

	if _, err := insertQuery.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to record trade", err)
	}

	return nil
}

// RecordRejection appends a vetoed signal with its reason tag.
func (j *Journal) RecordRejection(signal types.Signal, tag, message string) error {
	insertQuery := j.sq.
		Insert("rejections").
		Columns("timestamp", "signal", "tag", "message", "spread").
		Values(signal.Time, string(signal.Type), tag, message, signal.Spread).
		RunWith(j.db)

	if _, err := insertQuery.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to record rejection", err)
	}

	return nil
}

// TradeRecord is one row of the trades table.
type TradeRecord struct {
	TradeID         int
	Signal          types.SignalType
	Status          types.OutcomeStatus
	Reason          string
	SymbolA         string
	SymbolB         string
	PriceA          float64
	PriceB          float64
	VolumeA         float64
	VolumeB         float64
	ExecutionSpread float64
}

// GetTrades returns all recorded trades in insertion order.
func (j *Journal) GetTrades() ([]TradeRecord, error) {
	selectQuery := j.sq.
		Select("trade_id", "signal", "reason", "status",
			"symbol_a", "price_a", "volume_a",
			"symbol_b", "price_b", "volume_b",
			"execution_spread").
		From("trades").
		OrderBy("trade_id ASC").
		RunWith(j.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeJournalQueryFailed, "failed to query trades", err)
	}
	defer rows.Close()

	var trades []TradeRecord

	for rows.Next() {
		var record TradeRecord

		var signalStr, statusStr string

		err := rows.Scan(
			&record.TradeID,
			&signalStr,
			&record.Reason,
			&statusStr,
			&record.SymbolA,
			&record.PriceA,
			&record.VolumeA,
			&record.SymbolB,
			&record.PriceB,
			&record.VolumeB,
			&record.ExecutionSpread,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeJournalQueryFailed, "failed to scan trade", err)
		}

		record.Signal = types.SignalType(signalStr)
		record.Status = types.OutcomeStatus(statusStr)
		trades = append(trades, record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeJournalQueryFailed, "error iterating trades", err)
	}

	return trades, nil
}

// CountRejections returns the number of rejections per reason tag.
func (j *Journal) CountRejections() (map[string]int, error) {
	selectQuery := j.sq.
		Select("tag", "COUNT(*)").
		From("rejections").
		GroupBy("tag").
		RunWith(j.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeJournalQueryFailed, "failed to query rejections", err)
	}
	defer rows.Close()

	counts := make(map[string]int)

	for rows.Next() {
		var tag string

		var count int

		if err := rows.Scan(&tag, &count); err != nil {
			return nil, errors.Wrap(errors.ErrCodeJournalQueryFailed, "failed to scan rejection count", err)
		}

		counts[tag] = count
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeJournalQueryFailed, "error iterating rejections", err)
	}

	return counts, nil
}

// Export copies the journal tables to Parquet files in the given directory.
func (j *Journal) Export(dir string) error {
	for _, table := range []string{"cycles", "trades", "rejections"} {
		_, err := j.db.Exec("COPY " + table + " TO '" + dir + "/" + table + ".parquet' (FORMAT PARQUET)")
		if err != nil {
			return errors.Wrapf(errors.ErrCodeJournalWriteFailed, err, "failed to export %s", table)
		}
	}

	j.logger.Info("Journal exported", zap.String("dir", dir))

	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}

	return j.db.Close()
}
