package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/visiq/visibility-cli/internal/config"
	"github.com/visiq/visibility-cli/internal/metrics"
	"github.com/visiq/visibility-cli/internal/model"
	"github.com/visiq/visibility-cli/internal/orchestrator"
	"github.com/visiq/visibility-cli/internal/store"
)

// Pipeline is the orchestrator surface the server exposes.
type Pipeline interface {
	StartProcessing(ctx context.Context, id string) error
	GetStatus(ctx context.Context, id string) (*orchestrator.Status, error)
	ResetAndRetry(ctx context.Context, id string, reprocess bool) error
	ManualPublish(ctx context.Context, id string) error
}

// BusinessCreator registers new businesses.
type BusinessCreator interface {
	CreateBusiness(ctx context.Context, b model.Business) (*model.Business, error)
}

// Server routes dashboard requests onto the pipeline.
type Server struct {
	store    BusinessCreator
	pipeline Pipeline

	// baseCtx outlives individual requests; background pipeline runs
	// are bound to it so a closed connection does not cancel them.
	baseCtx context.Context
}

// New builds the HTTP handler. baseCtx bounds background pipeline runs
// and is normally the process signal context.
func New(baseCtx context.Context, st BusinessCreator, pipeline Pipeline, cfg config.ServerConfig) http.Handler {
	s := &Server{store: st, pipeline: pipeline, baseCtx: baseCtx}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/businesses", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/process", s.handleProcess)
			r.Get("/status", s.handleStatus)
			r.Post("/retry", s.handleRetry)
			r.Post("/publish", s.handlePublish)
		})
	})

	return r
}

// requestMetrics records per-route request counts and latency.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createRequest struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`
	Tier    string `json:"tier,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	if req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, eris.New("name and url are required"))
		return
	}

	tier := model.Tier(req.Tier)
	if req.Tier == "" {
		tier = model.TierFree
	}
	if !tier.Valid() {
		writeError(w, http.StatusBadRequest, eris.Errorf("unknown tier %q", req.Tier))
		return
	}

	b, err := s.store.CreateBusiness(r.Context(), model.Business{
		Name: req.Name,
		URL:  req.URL,
		Location: model.Location{
			City:    req.City,
			Region:  req.Region,
			Country: req.Country,
		},
		Tier: tier,
	})
	if err != nil {
		zap.L().Error("create business failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, eris.New("create business failed"))
		return
	}

	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	go func() {
		if err := s.pipeline.StartProcessing(s.baseCtx, id); err != nil {
			zap.L().Error("processing failed",
				zap.String("business_id", id),
				zap.Error(err),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":      "accepted",
		"business_id": id,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := s.pipeline.GetStatus(r.Context(), id)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, eris.Errorf("business %s not found", id))
			return
		}
		zap.L().Error("get status failed", zap.String("business_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, eris.New("get status failed"))
		return
	}

	writeJSON(w, http.StatusOK, status)
}

type retryRequest struct {
	Reprocess bool `json:"reprocess,omitempty"`
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req retryRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
			return
		}
	}

	// Reset synchronously so status conflicts surface to the caller;
	// the reprocess run itself happens in the background.
	if err := s.pipeline.ResetAndRetry(r.Context(), id, false); err != nil {
		writeStoreError(w, id, err)
		return
	}

	if !req.Reprocess {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":      "pending",
			"business_id": id,
		})
		return
	}

	go func() {
		if err := s.pipeline.StartProcessing(s.baseCtx, id); err != nil {
			zap.L().Error("reprocessing failed",
				zap.String("business_id", id),
				zap.Error(err),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":      "accepted",
		"business_id": id,
	})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.pipeline.ManualPublish(r.Context(), id); err != nil {
		if eris.Is(err, store.ErrNotFound) || eris.Is(err, store.ErrStatusConflict) {
			writeStoreError(w, id, err)
			return
		}
		// Gate rejections carry the verdict reasons in the message.
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	status, err := s.pipeline.GetStatus(r.Context(), id)
	if err != nil {
		zap.L().Error("get status failed", zap.String("business_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, eris.New("get status failed"))
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func writeStoreError(w http.ResponseWriter, id string, err error) {
	switch {
	case eris.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, eris.Errorf("business %s not found", id))
	case eris.Is(err, store.ErrStatusConflict):
		writeError(w, http.StatusConflict, err)
	default:
		zap.L().Error("request failed", zap.String("business_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, eris.New("internal error"))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
