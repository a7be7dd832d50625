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
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/milestone-prints/raceday/internal/model"
	"github.com/milestone-prints/raceday/internal/research"
	"github.com/milestone-prints/raceday/internal/store"
)

var servePort int

// researchService is the slice of the orchestrator the API surface needs.
type researchService interface {
	Payload(ctx context.Context, orderNumber string) (*model.ResearchPayload, error)
	Research(ctx context.Context, orderNumber string) (*research.Summary, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the order status API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sweeper, err := startCleanup(ctx, env.Store)
		if err != nil {
			return err
		}
		if sweeper != nil {
			defer sweeper.Stop()
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(ctx, env.Orchestrator),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the status API routes. The parent ctx backs the async
// research trigger so in-flight work stops with the server.
func buildRouter(ctx context.Context, svc researchService) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/orders/{orderNumber}/research", func(w http.ResponseWriter, req *http.Request) {
		orderNumber := chi.URLParam(req, "orderNumber")

		payload, err := svc.Payload(req.Context(), orderNumber)
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
				return
			}
			zap.L().Error("research payload", zap.String("order", orderNumber), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, payload)
	})

	r.Post("/orders/{orderNumber}/research", func(w http.ResponseWriter, req *http.Request) {
		orderNumber := chi.URLParam(req, "orderNumber")
		if orderNumber == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order number is required"})
			return
		}

		// Research runs against provider sites and can take minutes; the
		// trigger returns immediately.
		go func() {
			summary, err := svc.Research(ctx, orderNumber)
			if err != nil {
				zap.L().Error("triggered research failed",
					zap.String("order", orderNumber),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("triggered research complete",
				zap.String("order", summary.OrderNumber),
				zap.String("outcome", string(summary.Outcome)),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"order":  orderNumber,
		})
	})

	return r
}

// startCleanup schedules the stale-pending sweep. Returns nil when the
// schedule is disabled.
func startCleanup(ctx context.Context, st store.Store) (*cron.Cron, error) {
	if cfg.Server.CleanupSchedule == "" {
		return nil, nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser))

	olderThan := time.Duration(cfg.Server.StalePendingDays) * 24 * time.Hour
	_, err := c.AddFunc(cfg.Server.CleanupSchedule, func() {
		deleted, err := st.DeleteStalePending(ctx, olderThan)
		if err != nil {
			zap.L().Error("stale-pending sweep failed", zap.Error(err))
			return
		}
		zap.L().Info("stale-pending sweep complete", zap.Int("deleted", deleted))
	})
	if err != nil {
		return nil, eris.Wrapf(err, "parse cleanup schedule %q", cfg.Server.CleanupSchedule)
	}

	c.Start()
	zap.L().Info("cleanup scheduled",
		zap.String("schedule", cfg.Server.CleanupSchedule),
		zap.Int("stale_pending_days", cfg.Server.StalePendingDays),
	)
	return c, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
