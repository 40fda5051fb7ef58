package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/greenshelf/ecoscore/internal/config"
	"github.com/greenshelf/ecoscore/internal/model"
	"github.com/greenshelf/ecoscore/internal/monitoring"
	"github.com/greenshelf/ecoscore/internal/reconcile"
	"github.com/greenshelf/ecoscore/internal/registry"
	"github.com/greenshelf/ecoscore/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scoring API server",
	Long: `Serve the scoring API over HTTP.

  POST /v1/score         score a product and persist the result
  GET  /v1/results/{id}  fetch a persisted result
  GET  /v1/model         currently published model version and gate status
  GET  /v1/report        current validation report
  GET  /health           store connectivity check`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initScoring(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		router := buildRouter(env.Reconciler, env.Registry, env.Store, cfg.Server)

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter assembles the scoring API. The rate limiter spans all routes.
func buildRouter(rec *reconcile.Reconciler, reg *registry.Registry, st store.Store, serverCfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: serverCfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(rateLimit(rate.Limit(serverCfg.RatePerSecond), serverCfg.RateBurst))

	r.Post("/v1/score", handleScore(rec, st))
	r.Get("/v1/results/{id}", handleGetResult(st))
	r.Get("/v1/model", handleModel(reg))
	r.Get("/v1/report", handleReport(reg))
	r.Get("/health", handleHealth(st))

	return r
}

// rateLimit applies a shared token bucket across all routes.
func rateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleScore(rec *reconcile.Reconciler, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p model.ProductFeatures
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := rec.Reconcile(r.Context(), p)
		if err != nil {
			// Reconcile fails only on unusable product features.
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if st != nil {
			if err := st.SaveResult(r.Context(), res); err != nil {
				zap.L().Error("score api: save result",
					zap.String("id", res.ID),
					zap.Error(err),
				)
			}
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func handleGetResult(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		res, err := st.GetResult(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusNotFound, "result not found")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleModel(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pub := reg.Current()
		if pub == nil {
			writeError(w, http.StatusNotFound, "no model published")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"model_version":  pub.Artifact.ModelVersion,
			"scheme_version": pub.Artifact.SchemeVersion,
			"trained_at":     pub.Artifact.TrainedAt,
			"gate_passed":    pub.Report.GatePassed,
			"report_id":      pub.Report.ID,
		})
	}
}

func handleReport(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pub := reg.Current()
		if pub == nil {
			writeError(w, http.StatusNotFound, "no validation report published")
			return
		}
		writeJSON(w, http.StatusOK, pub.Report)
	}
}

func handleHealth(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st != nil {
			if err := st.Ping(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "store unreachable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
