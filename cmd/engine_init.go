package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/greenshelf/ecoscore/internal/feature"
	"github.com/greenshelf/ecoscore/internal/reconcile"
	"github.com/greenshelf/ecoscore/internal/registry"
	"github.com/greenshelf/ecoscore/internal/rules"
	"github.com/greenshelf/ecoscore/internal/store"
)

// scoringEnv holds the store, shared encoder, coefficient table, model
// registry, and reconciler needed by the score/serve commands.
type scoringEnv struct {
	Store      store.Store
	Encoder    *feature.Encoder
	Table      rules.CoefficientTable
	Registry   *registry.Registry
	Reconciler *reconcile.Reconciler
}

// Close releases resources held by the scoring environment.
func (se *scoringEnv) Close() {
	if se.Store != nil {
		_ = se.Store.Close()
	}
}

// initScoring sets up the store, loads the coefficient table and any
// published model, and builds the reconciler. Callers validate their own
// mode first and should defer env.Close().
func initScoring(ctx context.Context) (*scoringEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	table, err := loadCoefficients()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	enc := feature.NewEncoder()
	calc, err := rules.NewCalculator(table, cfg.Rules.DestinationCountry)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reg := registry.New(cfg.Registry.Dir, enc)
	if err := reg.Load(); err != nil {
		_ = st.Close()
		return nil, err
	}

	return &scoringEnv{
		Store:      st,
		Encoder:    enc,
		Table:      table,
		Registry:   reg,
		Reconciler: reconcile.New(enc, calc, reg, cfg.Reconcile),
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "ecoscore.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// loadCoefficients returns the configured coefficient table, falling back to
// the shipped defaults when no table path is set.
func loadCoefficients() (rules.CoefficientTable, error) {
	if cfg.Rules.TablePath == "" {
		return rules.DefaultTable(), nil
	}
	return rules.LoadTable(cfg.Rules.TablePath)
}
