// Package rcmdhttp is the HTTPS+JSON surface in front of a job pool
// registry: mutual-TLS authentication, principal-scoped routing, and the
// wire encodings for JobSpec/JobOutput/JobStatus.
package rcmdhttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dustinevan/rcmd/internal/job"
	"github.com/dustinevan/rcmd/internal/registry"
)

// Server wires the Registry into a mux.Router. It holds no other state:
// every request is scoped to the pool the authenticated principal owns.
type Server struct {
	registry *registry.Registry
	log      *zap.SugaredLogger
}

// NewServer returns an http.Handler serving the job API described in the
// endpoint table: POST/GET /jobs, GET /jobs/{id}/status, GET
// /jobs/{id}/output, DELETE /jobs/{id}, and the supplemental GET /whoami.
func NewServer(reg *registry.Registry, log *zap.SugaredLogger) http.Handler {
	s := &Server{registry: reg, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/whoami", s.handleWhoami).Methods(http.MethodGet)
	r.HandleFunc("/jobs", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/jobs", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/output", s.handleOutput).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", s.handleDelete).Methods(http.MethodDelete)
	return r
}

// principalPool resolves the request's authenticated principal and its
// pool in one step, writing a 401 itself if the principal can't be
// determined. The returned bool is false iff the response has already
// been written and the caller should return immediately.
func (s *Server) principalPool(w http.ResponseWriter, r *http.Request) (*job.Pool, bool) {
	principal, err := principalFromRequest(r)
	if err != nil {
		s.log.Infow("rejecting request", "error", err, "path", r.URL.Path)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return s.registry.PoolFor(principal), true
}

func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, principal)
}

type submitRequest struct {
	Command   string   `json:"command"`
	Arguments []string `json:"arguments"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.principalPool(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decoding request: %v", err), http.StatusBadRequest)
		return
	}

	id := pool.Submit(req.Command, req.Arguments)
	writeJSON(w, http.StatusOK, id)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.principalPool(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, pool.List())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.principalPool(w, r)
	if !ok {
		return
	}
	id, err := jobIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	st, ok := pool.Status(id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.principalPool(w, r)
	if !ok {
		return
	}
	id, err := jobIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, ok := pool.Output(id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.principalPool(w, r)
	if !ok {
		return
	}
	id, err := jobIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	errMsg, ok := pool.Delete(id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if errMsg != "" {
		http.Error(w, errMsg, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func jobIDFromPath(r *http.Request) (uint64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid job id %q: %w", raw, err)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// The status line is already written; nothing left to do but note it.
		_ = err
	}
}
