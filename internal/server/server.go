package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"flowengine/internal/domain"
	"flowengine/internal/usecase"
)

// Server exposes the engine over a loopback HTTP API. Activity collectors
// (window tracker, input monitor, browser extension bridge) push events in;
// the status endpoint feeds the HUD.
type Server struct {
	engine   *usecase.Engine
	analyzer *usecase.Analyzer
	logger   *zap.Logger
}

// New creates the API server.
func New(engine *usecase.Engine, analyzer *usecase.Analyzer, logger *zap.Logger) *Server {
	return &Server{engine: engine, analyzer: analyzer, logger: logger}
}

// Handler builds the HTTP routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)

		r.Route("/activity", func(r chi.Router) {
			r.Post("/window", s.handleWindowActivity)
			r.Post("/input", s.handleInputActivity)
			r.Post("/browser", s.handleBrowserActivity)
			r.Post("/query", s.handleSearchQuery)
		})

		r.Post("/intervention/choice", s.handleInterventionChoice)
		r.Post("/penalty/forceful-termination", s.handleExternalPenalty)
		r.Post("/soft_reset/trigger", s.handleSoftReset)

		r.Get("/sessions/recent", s.handleRecentSessions)
		r.Get("/patterns/summary", s.handlePatternSummary)
	})

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"service": "flow engine",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.GetStatus())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.StartSession(domain.TriggerManual))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.StopSession())
}

func (s *Server) handleWindowActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppName string `json:"app_name"`
		Title   string `json:"title"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.engine.OnWindowFocusChanged(req.AppName, req.Title)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleInputActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APM            float64 `json:"apm"`
		KeyboardEvents int     `json:"keyboard_events"`
		MouseEvents    int     `json:"mouse_events"`
		ScrollEvents   int     `json:"scroll_events"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.engine.OnInputActivity(req.APM, req.KeyboardEvents, req.MouseEvents, req.ScrollEvents)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleBrowserActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL       string  `json:"url"`
		Title     string  `json:"title"`
		Timestamp float64 `json:"timestamp"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.OnBrowserActivity(req.URL, req.Title, req.Timestamp))
}

func (s *Server) handleSearchQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string  `json:"query"`
		Engine    string  `json:"engine"`
		Timestamp float64 `json:"timestamp"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.OnSearchQuery(req.Query, req.Engine, req.Timestamp))
}

func (s *Server) handleInterventionChoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Choice string `json:"choice"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	switch req.Choice {
	case "wait":
		s.writeJSON(w, http.StatusOK, s.engine.OnChoiceWait())
	case "proceed":
		s.writeJSON(w, http.StatusOK, s.engine.OnChoiceProceed())
	default:
		s.writeError(w, http.StatusBadRequest, "choice must be 'wait' or 'proceed'")
	}
}

func (s *Server) handleExternalPenalty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PenaltyAmount int    `json:"penalty_amount"`
		Reason        string `json:"reason"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.ApplyExternalPenalty(req.PenaltyAmount, req.Reason))
}

func (s *Server) handleSoftReset(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.TriggerSoftReset())
}

func (s *Server) handleRecentSessions(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	sessions, err := s.engine.RecentSessions(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load sessions")
		return
	}
	if sessions == nil {
		sessions = []domain.SessionRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) handlePatternSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.analyzer.LearningSummary()
	if err != nil {
		s.logger.Error("failed to build learning summary", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// decode parses the JSON body, answering 400 on malformed input. Returns
// whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
