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

	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/scoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for sync jobs and scoring requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/jobs/sync/{portalID}", func(w http.ResponseWriter, req *http.Request) {
			portalID := chi.URLParam(req, "portalID")

			env, err := initEnv(req.Context(), portalID, "sync")
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			defer env.Close()

			// The job's deadline keeps the request bounded, so the caller
			// gets the real summary instead of a fire-and-forget ack.
			summary, err := env.newSyncJob().Run(req.Context())
			if err != nil {
				zap.L().Error("sync job failed", zap.String("portal_id", portalID), zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, summary)
				return
			}
			writeJSON(w, http.StatusOK, summary)
		})

		r.Post("/score", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				PortalID   string `json:"portal_id"`
				RecordKind string `json:"record_kind"`
				RecordID   string `json:"record_id"`
				Enqueue    bool   `json:"enqueue"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			kind, err := model.ParseRecordKind(body.RecordKind)
			if err != nil || body.PortalID == "" || body.RecordID == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "portal_id, record_kind, and record_id are required"})
				return
			}

			env, err := initEnv(req.Context(), body.PortalID, "score")
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			defer env.Close()

			if body.Enqueue {
				item, _, err := env.Store.EnqueueScore(req.Context(), body.PortalID, kind, body.RecordID)
				if err != nil {
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
					return
				}
				writeJSON(w, http.StatusAccepted, item)
				return
			}

			result, err := env.newEngine().Score(req.Context(), kind, body.RecordID)
			switch {
			case scoring.IsQuotaExceeded(err):
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
			case err != nil:
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			default:
				writeJSON(w, http.StatusOK, result)
			}
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			gracefulShutdown(srv)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// gracefulShutdown drains in-flight requests on a fresh context; the signal
// context is already cancelled by the time shutdown starts.
func gracefulShutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
