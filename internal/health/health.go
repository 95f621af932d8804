// Package health serves the liveness, readiness and session status endpoints
// of a running interview.
//
//   - /healthz  always returns 200 OK.
//   - /readyz   returns 200 only when every registered [Checker] passes.
//   - /statusz  returns the JSON document produced by the [StatusFunc], if one
//     is set.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe.
type Checker struct {
	// Name labels the check in the response (e.g. "postgres", "state_dir").
	Name string

	// Check returns nil when the dependency is usable. It must respect
	// context cancellation.
	Check func(ctx context.Context) error
}

// StatusFunc returns a JSON-encodable view of the running interview.
type StatusFunc func() any

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. The checker list is fixed at
// construction; the status source may be swapped while serving.
type Handler struct {
	checkers []Checker

	mu     sync.RWMutex
	status StatusFunc
}

// New creates a [Handler] that evaluates checkers concurrently on each
// /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// SetStatus installs the source of /statusz. A nil fn makes /statusz return
// 404.
func (h *Handler) SetStatus(fn StatusFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = fn
}

// Healthz is a liveness probe that always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 when every checker passes and 503 otherwise. Each
// checker gets its own [checkTimeout] deadline derived from the request.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			errs[i] = c.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	code := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] != nil {
			res.Checks[c.Name] = "fail: " + errs[i].Error()
			res.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, code, res)
}

// Statusz writes the current interview status.
func (h *Handler) Statusz(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	fn := h.status
	h.mu.RUnlock()
	if fn == nil {
		writeJSON(w, http.StatusNotFound, result{Status: "no session"})
		return
	}
	writeJSON(w, http.StatusOK, fn())
}

// Register adds the health routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /statusz", h.Statusz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}
