package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/olegsm/retaildesk/internal/adapters/database"
	redisAdapter "github.com/olegsm/retaildesk/internal/adapters/redis"
	"github.com/olegsm/retaildesk/internal/dashboard"
	"github.com/olegsm/retaildesk/internal/realtime"
	"github.com/olegsm/retaildesk/pkg/logger"
	"github.com/olegsm/retaildesk/pkg/models"
)

// QueryRecorder is the write path for finished customer query records.
// The product API in front of this service owns validation, auth and the
// language-model call; it posts the completed record here.
type QueryRecorder interface {
	RecordQuery(ctx context.Context, rec *models.QueryRecord) error
}

// ForecastReader looks up one persisted per-symbol summary
type ForecastReader interface {
	GetBySymbol(ctx context.Context, symbol string) (*models.ForecastSummary, error)
}

// Server provides the internal HTTP endpoints: liveness, readiness, the
// realtime alert feed, the query write path and debug views. This listener
// is infrastructure, not the product API.
type Server struct {
	server     *http.Server
	db         *database.DB
	redis      *redisAdapter.Client
	dashboards *dashboard.Service
	recorder   QueryRecorder
	forecasts  ForecastReader
	ready      bool
	readyMu    sync.RWMutex
	startTime  time.Time
}

// Status represents system health
type Status struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewServer creates new internal server. redis, hub, dashboards, recorder
// and forecasts may each be nil; their endpoints are simply not registered.
func NewServer(port string, db *database.DB, redis *redisAdapter.Client, hub *realtime.Hub,
	dashboards *dashboard.Service, recorder QueryRecorder, forecasts ForecastReader) *Server {
	mux := http.NewServeMux()

	s := &Server{
		server: &http.Server{
			Addr:         ":" + port,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		db:         db,
		redis:      redis,
		dashboards: dashboards,
		recorder:   recorder,
		forecasts:  forecasts,
		startTime:  time.Now(),
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	if hub != nil {
		mux.HandleFunc("/ws/alerts", hub.ServeWS)
	}
	if recorder != nil {
		mux.HandleFunc("/internal/queries", s.handleRecordQuery)
	}
	if dashboards != nil {
		mux.HandleFunc("/debug/dashboard", s.handleDashboard)
	}
	if forecasts != nil {
		mux.HandleFunc("/debug/forecast", s.handleForecast)
	}

	return s
}

// Start begins serving in a background goroutine
func (s *Server) Start() {
	go func() {
		logger.Info("internal server listening",
			zap.String("addr", s.server.Addr),
		)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("internal server failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// SetReady flips the readiness flag once startup completes
func (s *Server) SetReady(ready bool) {
	s.readyMu.Lock()
	s.ready = ready
	s.readyMu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	checks := s.runChecks()

	status := "ok"
	code := http.StatusOK
	for _, result := range checks {
		if result != "ok" {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, code, Status{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Checks:    checks,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	s.readyMu.RLock()
	ready := s.ready
	s.readyMu.RUnlock()

	code := http.StatusOK
	status := "ready"
	if !ready {
		code = http.StatusServiceUnavailable
		status = "starting"
	}

	writeJSON(w, code, Status{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleRecordQuery accepts a finished customer query from the fronting
// service. Stock-tagged records schedule a sync run behind the recorder.
func (s *Server) handleRecordQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rec models.QueryRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if rec.UserID == "" || rec.Question == "" {
		http.Error(w, "user_id and question are required", http.StatusBadRequest)
		return
	}

	if err := s.recorder.RecordQuery(r.Context(), &rec); err != nil {
		logger.Error("failed to record query", zap.Error(err))
		http.Error(w, "failed to record query", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleDashboard serves a user's dashboard snapshot for operational
// inspection
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	snapshot, err := s.dashboards.Snapshot(r.Context(), userID)
	if err != nil {
		logger.Error("failed to build dashboard snapshot", zap.Error(err))
		http.Error(w, "failed to load dashboard", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// handleForecast serves one symbol's persisted summary. Input is normalized
// the same way the sync loop normalizes symbols.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	summary, err := s.forecasts.GetBySymbol(r.Context(), symbol)
	if err != nil {
		logger.Error("failed to load forecast", zap.Error(err))
		http.Error(w, "failed to load forecast", http.StatusInternalServerError)
		return
	}
	if summary == nil {
		http.Error(w, "unknown symbol", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) runChecks() map[string]string {
	checks := make(map[string]string)

	if err := s.db.Health(); err != nil {
		checks["postgres"] = err.Error()
	} else {
		checks["postgres"] = "ok"
	}

	if s.redis != nil {
		if err := s.redis.Health(); err != nil {
			checks["redis"] = err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	return checks
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
