package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/greenshelf/ecoscore/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS results (
	id               TEXT PRIMARY KEY,
	features         TEXT NOT NULL,
	final_co2e_kg    REAL NOT NULL,
	agreement        INTEGER NOT NULL,
	disagreement     REAL NOT NULL,
	tier             TEXT NOT NULL,
	source           TEXT NOT NULL,
	rule_estimate    TEXT NOT NULL,
	learned_estimate TEXT,
	breakdown        TEXT NOT NULL,
	degraded         INTEGER NOT NULL,
	created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id            TEXT PRIMARY KEY,
	model_version TEXT NOT NULL,
	gate_passed   INTEGER NOT NULL,
	report        TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at);
CREATE INDEX IF NOT EXISTS idx_results_tier ON results(tier);
CREATE INDEX IF NOT EXISTS idx_results_source ON results(source);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
CREATE INDEX IF NOT EXISTS idx_reports_model_version ON reports(model_version);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteInsertResult = `INSERT INTO results
	(id, features, final_co2e_kg, agreement, disagreement, tier, source, rule_estimate, learned_estimate, breakdown, degraded, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) SaveResult(ctx context.Context, res *model.ReconciledResult) error {
	args, err := resultArgs(res)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqliteInsertResult, args...)
	return eris.Wrapf(err, "sqlite: insert result %s", res.ID)
}

// SaveResults writes a batch in one transaction so a partial failure leaves
// nothing behind.
func (s *SQLiteStore) SaveResults(ctx context.Context, results []model.ReconciledResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin batch")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteInsertResult)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare batch insert")
	}
	defer stmt.Close()

	for i := range results {
		args, err := resultArgs(&results[i])
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert result %s", results[i].ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit batch")
	}
	return len(results), nil
}

func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*model.ReconciledResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, features, final_co2e_kg, agreement, disagreement, tier, source, rule_estimate, learned_estimate, breakdown, degraded, created_at
		 FROM results WHERE id = ?`,
		id,
	)
	return scanResult(row)
}

func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.ReconciledResult, error) {
	query := `SELECT id, features, final_co2e_kg, agreement, disagreement, tier, source, rule_estimate, learned_estimate, breakdown, degraded, created_at
	          FROM results WHERE 1=1`
	var args []any

	if filter.Tier != "" {
		query += ` AND tier = ?`
		args = append(args, string(filter.Tier))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	if filter.ModelVersion != "" {
		query += ` AND json_extract(learned_estimate, '$.model_version') = ?`
		args = append(args, filter.ModelVersion)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close()

	var results []model.ReconciledResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

func (s *SQLiteStore) SaveReport(ctx context.Context, rep *model.ValidationReport) error {
	reportJSON, err := json.Marshal(rep)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, model_version, gate_passed, report, created_at) VALUES (?, ?, ?, ?, ?)`,
		rep.ID, rep.ModelVersion, rep.GatePassed, string(reportJSON), rep.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert report %s", rep.ID)
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*model.ValidationReport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT report FROM reports WHERE id = ?`, id)
	return scanReport(row)
}

func (s *SQLiteStore) LatestReport(ctx context.Context) (*model.ValidationReport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT report FROM reports ORDER BY created_at DESC LIMIT 1`)
	rep, err := scanReport(row)
	if err != nil && eris.Is(err, errReportNotFound) {
		return nil, nil
	}
	return rep, err
}

func (s *SQLiteStore) ListReports(ctx context.Context, limit int) ([]model.ValidationReport, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM reports ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var reports []model.ValidationReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *rep)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

// helpers

var errReportNotFound = eris.New("report not found")

// resultArgs marshals the nested estimate structs to JSON columns in the
// insert column order shared by both backends.
func resultArgs(res *model.ReconciledResult) ([]any, error) {
	featuresJSON, err := json.Marshal(res.Features)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal features")
	}
	ruleJSON, err := json.Marshal(res.Rule)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal rule estimate")
	}
	breakdownJSON, err := json.Marshal(res.Breakdown)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal breakdown")
	}

	var learnedJSON any // NULL when the request degraded to rule-only
	if res.Learned != nil {
		b, err := json.Marshal(res.Learned)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal learned estimate")
		}
		learnedJSON = string(b)
	}

	return []any{
		res.ID, string(featuresJSON), res.FinalCO2eKg, res.Agreement,
		res.DisagreementMagnitude, string(res.ConfidenceTier), string(res.Source),
		string(ruleJSON), learnedJSON, string(breakdownJSON), res.Degraded,
		res.CreatedAt.UTC(),
	}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanResult(row scannable) (*model.ReconciledResult, error) {
	var r model.ReconciledResult
	var featuresJSON, ruleJSON, breakdownJSON string
	var learnedJSON sql.NullString

	err := row.Scan(&r.ID, &featuresJSON, &r.FinalCO2eKg, &r.Agreement,
		&r.DisagreementMagnitude, &r.ConfidenceTier, &r.Source,
		&ruleJSON, &learnedJSON, &breakdownJSON, &r.Degraded, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("result not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan result")
	}

	if err := json.Unmarshal([]byte(featuresJSON), &r.Features); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal features")
	}
	if err := json.Unmarshal([]byte(ruleJSON), &r.Rule); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal rule estimate")
	}
	if err := json.Unmarshal([]byte(breakdownJSON), &r.Breakdown); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal breakdown")
	}
	if learnedJSON.Valid {
		r.Learned = &model.LearnedEstimate{}
		if err := json.Unmarshal([]byte(learnedJSON.String), r.Learned); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal learned estimate")
		}
	}
	return &r, nil
}

func scanReport(row scannable) (*model.ValidationReport, error) {
	var reportJSON string
	err := row.Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, errReportNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan report")
	}

	var rep model.ValidationReport
	if err := json.Unmarshal([]byte(reportJSON), &rep); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal report")
	}
	return &rep, nil
}
