package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/greenshelf/ecoscore/internal/db"
	"github.com/greenshelf/ecoscore/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// resultColumns is the shared column order for single inserts and COPY.
var resultColumns = []string{
	"id", "features", "final_co2e_kg", "agreement", "disagreement",
	"tier", "source", "rule_estimate", "learned_estimate", "breakdown",
	"degraded", "created_at",
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_result": `INSERT INTO results (id, features, final_co2e_kg, agreement, disagreement, tier, source, rule_estimate, learned_estimate, breakdown, degraded, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
	"get_result":    `SELECT id, features, final_co2e_kg, agreement, disagreement, tier, source, rule_estimate, learned_estimate, breakdown, degraded, created_at FROM results WHERE id = $1`,
	"insert_report": `INSERT INTO reports (id, model_version, gate_passed, report, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"get_report":    `SELECT report FROM reports WHERE id = $1`,
	"latest_report": `SELECT report FROM reports ORDER BY created_at DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS results (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	features         JSONB NOT NULL,
	final_co2e_kg    DOUBLE PRECISION NOT NULL,
	agreement        BOOLEAN NOT NULL,
	disagreement     DOUBLE PRECISION NOT NULL,
	tier             TEXT NOT NULL,
	source           TEXT NOT NULL,
	rule_estimate    JSONB NOT NULL,
	learned_estimate JSONB,
	breakdown        JSONB NOT NULL,
	degraded         BOOLEAN NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	model_version TEXT NOT NULL,
	gate_passed   BOOLEAN NOT NULL,
	report        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_tier ON results(tier);
CREATE INDEX IF NOT EXISTS idx_results_source ON results(source);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_model_version ON reports(model_version);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, res *model.ReconciledResult) error {
	args, err := resultArgs(res)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO results (id, features, final_co2e_kg, agreement, disagreement, tier, source, rule_estimate, learned_estimate, breakdown, degraded, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		args...,
	)
	return eris.Wrapf(err, "postgres: insert result %s", res.ID)
}

// SaveResults bulk-inserts a scoring batch over the COPY protocol.
func (s *PostgresStore) SaveResults(ctx context.Context, results []model.ReconciledResult) (int, error) {
	rows := make([][]any, 0, len(results))
	for i := range results {
		args, err := resultArgs(&results[i])
		if err != nil {
			return 0, err
		}
		rows = append(rows, args)
	}

	n, err := db.CopyFrom(ctx, s.pool, "results", resultColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: batch insert results")
	}
	return int(n), nil
}

func (s *PostgresStore) GetResult(ctx context.Context, id string) (*model.ReconciledResult, error) {
	var r model.ReconciledResult
	var featuresJSON, ruleJSON, breakdownJSON []byte
	var learnedNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, features, final_co2e_kg, agreement, disagreement, tier, source, rule_estimate, learned_estimate, breakdown, degraded, created_at
		 FROM results WHERE id = $1`,
		id,
	).Scan(&r.ID, &featuresJSON, &r.FinalCO2eKg, &r.Agreement,
		&r.DisagreementMagnitude, &r.ConfidenceTier, &r.Source,
		&ruleJSON, &learnedNull, &breakdownJSON, &r.Degraded, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("result not found: %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get result %s", id)
	}

	return decodeResult(&r, featuresJSON, ruleJSON, breakdownJSON, learnedNull)
}

func (s *PostgresStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.ReconciledResult, error) {
	query := `SELECT id, features, final_co2e_kg, agreement, disagreement, tier, source, rule_estimate, learned_estimate, breakdown, degraded, created_at
	          FROM results WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Tier != "" {
		query += fmt.Sprintf(` AND tier = $%d`, argIdx)
		args = append(args, string(filter.Tier))
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, string(filter.Source))
		argIdx++
	}
	if filter.ModelVersion != "" {
		query += fmt.Sprintf(` AND learned_estimate->>'model_version' = $%d`, argIdx)
		args = append(args, filter.ModelVersion)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var results []model.ReconciledResult
	for rows.Next() {
		var r model.ReconciledResult
		var featuresJSON, ruleJSON, breakdownJSON []byte
		var learnedNull *[]byte

		if err := rows.Scan(&r.ID, &featuresJSON, &r.FinalCO2eKg, &r.Agreement,
			&r.DisagreementMagnitude, &r.ConfidenceTier, &r.Source,
			&ruleJSON, &learnedNull, &breakdownJSON, &r.Degraded, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		decoded, err := decodeResult(&r, featuresJSON, ruleJSON, breakdownJSON, learnedNull)
		if err != nil {
			return nil, err
		}
		results = append(results, *decoded)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

func (s *PostgresStore) SaveReport(ctx context.Context, rep *model.ValidationReport) error {
	reportJSON, err := json.Marshal(rep)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (id, model_version, gate_passed, report, created_at) VALUES ($1, $2, $3, $4, $5)`,
		rep.ID, rep.ModelVersion, rep.GatePassed, reportJSON, rep.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert report %s", rep.ID)
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*model.ValidationReport, error) {
	var reportJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT report FROM reports WHERE id = $1`, id).Scan(&reportJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("report not found: %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get report %s", id)
	}
	return decodeReport(reportJSON)
}

func (s *PostgresStore) LatestReport(ctx context.Context) (*model.ValidationReport, error) {
	var reportJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT report FROM reports ORDER BY created_at DESC LIMIT 1`).Scan(&reportJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest report")
	}
	return decodeReport(reportJSON)
}

func (s *PostgresStore) ListReports(ctx context.Context, limit int) ([]model.ValidationReport, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT report FROM reports ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var reports []model.ValidationReport
	for rows.Next() {
		var reportJSON []byte
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		rep, err := decodeReport(reportJSON)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *rep)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

func decodeResult(r *model.ReconciledResult, featuresJSON, ruleJSON, breakdownJSON []byte, learnedNull *[]byte) (*model.ReconciledResult, error) {
	if err := json.Unmarshal(featuresJSON, &r.Features); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal features")
	}
	if err := json.Unmarshal(ruleJSON, &r.Rule); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal rule estimate")
	}
	if err := json.Unmarshal(breakdownJSON, &r.Breakdown); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal breakdown")
	}
	if learnedNull != nil {
		r.Learned = &model.LearnedEstimate{}
		if err := json.Unmarshal(*learnedNull, r.Learned); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal learned estimate")
		}
	}
	return r, nil
}

func decodeReport(reportJSON []byte) (*model.ValidationReport, error) {
	var rep model.ValidationReport
	if err := json.Unmarshal(reportJSON, &rep); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal report")
	}
	return &rep, nil
}
