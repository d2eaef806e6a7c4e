package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/oasis-extract/internal/extract"
	"github.com/sells-group/oasis-extract/internal/metrics"
	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/store"
)

// maxBodyBytes bounds POST /v1/extractions bodies.
const maxBodyBytes = 1 << 20

var servePort int

// extractor is the part of *extract.Service the HTTP surface needs.
type extractor interface {
	ExtractOASIS(ctx context.Context, transcript string) (*model.ExtractionResult, error)
}

type server struct {
	svc     extractor
	store   store.Store // may be nil
	metrics *metrics.Metrics
}

// newRouter builds the HTTP handler. st may be nil, in which case results
// are not persisted and the read endpoints return 503.
func newRouter(svc extractor, st store.Store, m *metrics.Metrics, origins []string) http.Handler {
	s := &server{svc: svc, store: st, metrics: m}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", m.Handler())

	r.Route("/v1/extractions", func(r chi.Router) {
		r.Post("/", s.createExtraction)
		r.Get("/", s.listExtractions)
		r.Get("/{id}", s.getExtraction)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) createExtraction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transcript    string `json:"transcript"`
		InteractionID string `json:"interactionId"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.svc.ExtractOASIS(r.Context(), req.Transcript)
	switch {
	case errors.Is(err, extract.ErrEmptyTranscript):
		writeError(w, http.StatusBadRequest, "transcript is required")
		return
	case err != nil:
		zap.L().Error("serve: extraction failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "extraction failed")
		return
	}
	res.InteractionID = req.InteractionID

	if s.store != nil {
		err := s.store.SaveExtraction(r.Context(), res)
		s.metrics.RecordStoreWrite(err)
		if err != nil {
			zap.L().Warn("serve: save extraction failed",
				zap.String("id", res.ID),
				zap.Error(err),
			)
		}
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *server) getExtraction(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	res, err := s.store.GetExtraction(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "extraction not found")
		return
	case err != nil:
		zap.L().Error("serve: get extraction failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) listExtractions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := s.store.ListExtractions(r.Context(), f)
	if err != nil {
		zap.L().Error("serve: list extractions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if results == nil {
		results = []model.ExtractionResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"extractions": results})
}

// parseFilter reads mode, interactionId, since (RFC 3339), limit and offset.
func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		Mode:          model.Mode(q.Get("mode")),
		InteractionID: q.Get("interactionId"),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, eris.Errorf("invalid since: %q", v)
		}
		f.Since = t
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, eris.Errorf("invalid %s: %q", name, v)
		}
		*dst = n
	}
	return f, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m := metrics.New()
		env, err := initPipeline(ctx, m, true)
		if err != nil {
			return err
		}
		defer env.Close()

		startMonitoring(ctx, env.Store, cfg.Monitoring)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env.Service, env.Store, m, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
