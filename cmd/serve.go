package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dispatchlab/failover/internal/model"
	"github.com/dispatchlab/failover/internal/recovery"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resilience core with its ops API and background monitors",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCore(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return runServe(ctx, env, fmt.Sprintf(":%d", port))
	},
}

// runServe runs the HTTP surface and background loops until ctx is
// cancelled, then drains in-flight requests. A signal-driven stop is a clean
// exit, not an error.
func runServe(ctx context.Context, env *coreEnv, addr string) error {
	// Background loops: health probes, fleet evaluation, predictive
	// analysis, alert delivery, daily quota reset.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { env.Health.Run(gctx); return nil })
	g.Go(func() error { env.Fleet.Run(gctx); return nil })
	g.Go(func() error { env.Predict.Run(gctx); return nil })
	g.Go(func() error { env.Alerter.Run(gctx); return nil })
	g.Go(func() error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				env.Registry.ResetQuotas()
				zap.L().Info("daily provider quotas reset")
			}
		}
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return eris.Wrap(err, "server listen")
	}
	srv := &http.Server{Handler: newRouter(env)}

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		// The loop context is already cancelled here; the drain needs its
		// own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown incomplete", zap.Error(err))
		}
		return nil
	})

	zap.L().Info("starting server", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server")
	}
	return g.Wait()
}

// newRouter builds the ops API surface.
func newRouter(env *coreEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/breakers", func(w http.ResponseWriter, r *http.Request) {
		states := env.Breakers.States()
		out := make(map[string]string, len(states))
		for id, s := range states {
			out[id] = s.String()
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/providers", func(w http.ResponseWriter, r *http.Request) {
		type providerView struct {
			model.ServiceProvider
			EffectiveRate float64 `json:"effective_rate"`
			Available     bool    `json:"available"`
		}
		snapshot := env.Registry.Snapshot()
		out := make([]providerView, 0, len(snapshot))
		for _, p := range snapshot {
			out = append(out, providerView{
				ServiceProvider: p,
				EffectiveRate:   env.Costs.Request(p.ID),
				Available:       env.Registry.IsAvailable(p.ID),
			})
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/plans", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ServiceType  string                `json:"service_type"`
			Business     model.BusinessContext `json:"business"`
			Requirements model.Requirements    `json:"requirements"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ServiceType == "" {
			writeError(w, http.StatusBadRequest, "service_type is required")
			return
		}

		p, err := env.Plans.Build(model.ServiceType(req.ServiceType), req.Business, req.Requirements)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, p)
	})

	r.Get("/plans/{id}", func(w http.ResponseWriter, r *http.Request) {
		p, ok := env.Plans.Lookup(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		writeJSON(w, http.StatusOK, p)
	})

	r.Post("/recover", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Error       string                   `json:"error"`
			Environment string                   `json:"environment"`
			Incident    recovery.IncidentContext `json:"incident"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var cause error
		if req.Error != "" {
			cause = eris.New(req.Error)
		}
		out := env.Recovery.ExecuteProductionRecovery(r.Context(), cause,
			model.Environment(req.Environment), req.Incident)
		env.Metrics.RecoveryOutcomes.WithLabelValues(string(out.Status)).Inc()
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/recoveries", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"active":        env.Recovery.Active(),
			"documentation": env.Recovery.Documentation(),
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(env.PromReg, promhttp.HandlerOpts{}))

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
