package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/fairyhunter13/ai-calculator/internal/config"
	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

// Solver answers math problems. Implemented by usecase.SolveService.
type Solver interface {
	SolveImage(ctx domain.Context, imageBase64 string) (domain.SolveResult, error)
	SolveText(ctx domain.Context, question string) (domain.SolveResult, error)
}

// Server aggregates handlers dependencies.
type Server struct {
	Cfg          config.Config
	Solve        Solver
	RedisCheck   func(ctx context.Context) error
	SandboxCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
// Nil checks are skipped by /readyz.
func NewServer(cfg config.Config, solve Solver, redisCheck, sandboxCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Solve: solve, RedisCheck: redisCheck, SandboxCheck: sandboxCheck}
}

func (s *Server) maxBodyBytes() int64 {
	mb := s.Cfg.MaxUploadMB
	if mb <= 0 {
		mb = 10
	}
	return mb << 20
}

// CalculateHandler solves the expression drawn on a canvas snapshot.
func (s *Server) CalculateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req calculateRequest
		if err := decodeRequest(w, r, s.maxBodyBytes(), &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := s.Solve.SolveImage(r.Context(), req.Image)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// CalculateTextHandler solves a typed question.
func (s *Server) CalculateTextHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req calculateTextRequest
		if err := decodeRequest(w, r, s.maxBodyBytes(), &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := s.Solve.SolveText(r.Context(), req.Question)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HealthHandler reports liveness in the shape the browser client polls.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// ReadyzHandler probes Redis and the plot sandbox when they are configured.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	probe := func(ctx context.Context, name string, fn func(context.Context) error) check {
		if err := fn(ctx); err != nil {
			return check{Name: name, OK: false, Details: err.Error()}
		}
		return check{Name: name, OK: true}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.RedisCheck != nil {
			checks = append(checks, probe(ctx, "redis", s.RedisCheck))
		}
		if s.SandboxCheck != nil {
			checks = append(checks, probe(ctx, "sandbox", s.SandboxCheck))
		}
		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
