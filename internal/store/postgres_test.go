package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenshelf/ecoscore/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetResult_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM results WHERE id = \$1`).
		WithArgs("nonexistent-result").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetResult(context.Background(), "nonexistent-result")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "result not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetReport_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT report FROM reports WHERE id = \$1`).
		WithArgs("nonexistent-report").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetReport(context.Background(), "nonexistent-report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	res := sampleResult("res-pg-1", time.Now().UTC())
	mock.ExpectExec(`INSERT INTO results`).
		WithArgs("res-pg-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveResult(context.Background(), &res)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResults_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	base := time.Now().UTC()
	batch := []model.ReconciledResult{
		sampleResult("copy-1", base.Add(-time.Minute)),
		sampleResult("copy-2", base),
	}
	mock.ExpectCopyFrom(pgx.Identifier{"results"}, resultColumns).
		WillReturnResult(2)

	n, err := s.SaveResults(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResults_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.SaveResults(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rep := sampleReport("rep-pg-1", "gbt-abc123def456", time.Now().UTC())
	mock.ExpectExec(`INSERT INTO reports`).
		WithArgs("rep-pg-1", "gbt-abc123def456", true, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveReport(context.Background(), &rep)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rep := sampleReport("rep-pg-2", "gbt-abc123def456", time.Now().UTC())
	reportJSON, err := json.Marshal(rep)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT report FROM reports WHERE id = \$1`).
		WithArgs("rep-pg-2").
		WillReturnRows(pgxmock.NewRows([]string{"report"}).AddRow(reportJSON))

	got, err := s.GetReport(context.Background(), "rep-pg-2")
	require.NoError(t, err)
	assert.Equal(t, "rep-pg-2", got.ID)
	assert.Equal(t, "gbt-abc123def456", got.ModelVersion)
	assert.True(t, got.GatePassed)
	assert.InDelta(t, 0.95, got.Accuracy, 0.0001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestReport_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT report FROM reports ORDER BY created_at DESC LIMIT 1`).
		WillReturnError(pgx.ErrNoRows)

	latest, err := s.LatestReport(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListResults_FilterSQL(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM results WHERE 1=1 AND tier = \$1 AND learned_estimate->>'model_version' = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("high", "gbt-abc123def456", 100).
		WillReturnRows(pgxmock.NewRows(resultColumns))

	results, err := s.ListResults(context.Background(), ResultFilter{
		Tier:         model.TierHigh,
		ModelVersion: "gbt-abc123def456",
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS results`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	err := s.Migrate(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	err := s.Ping(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
