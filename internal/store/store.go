// Package store persists reconciled scoring results and validation reports.
// Two backends implement the same interface: SQLite for single-node
// deployments and Postgres for shared ones.
package store

import (
	"context"
	"time"

	"github.com/greenshelf/ecoscore/internal/model"
)

// ResultFilter specifies criteria for listing reconciled results.
type ResultFilter struct {
	Tier         model.ConfidenceTier `json:"tier,omitempty"`
	Source       model.ResultSource   `json:"source,omitempty"`
	ModelVersion string               `json:"model_version,omitempty"`
	Since        time.Time            `json:"since,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
	Offset       int                  `json:"offset,omitempty"`
}

// Store defines the persistence interface for the scoring engine. Results
// and reports are append-only; rows are never updated in place.
type Store interface {
	// Results
	SaveResult(ctx context.Context, res *model.ReconciledResult) error
	SaveResults(ctx context.Context, results []model.ReconciledResult) (int, error)
	GetResult(ctx context.Context, id string) (*model.ReconciledResult, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]model.ReconciledResult, error)

	// Validation reports
	SaveReport(ctx context.Context, rep *model.ValidationReport) error
	GetReport(ctx context.Context, id string) (*model.ValidationReport, error)
	LatestReport(ctx context.Context) (*model.ValidationReport, error)
	ListReports(ctx context.Context, limit int) ([]model.ValidationReport, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
