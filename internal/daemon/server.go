// Package daemon serves the panenapd control API over a unix socket.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/m0rik/panenap/internal/api"
	"github.com/m0rik/panenap/internal/config"
	"github.com/m0rik/panenap/internal/db"
	"github.com/m0rik/panenap/internal/engine"
	"github.com/m0rik/panenap/internal/model"
	"github.com/m0rik/panenap/internal/registry"
)

type Server struct {
	cfg         config.Config
	httpSrv     *http.Server
	listener    net.Listener
	lockFile    *os.File
	store       *db.Store
	registry    *registry.Registry
	engine      *engine.Engine
	mu          sync.Mutex
	shutdown    sync.Once
	shutdownErr error
}

func NewServer(cfg config.Config, store *db.Store, reg *registry.Registry, eng *engine.Engine) *Server {
	mux := http.NewServeMux()
	s := &Server{
		cfg:      cfg,
		store:    store,
		registry: reg,
		engine:   eng,
		httpSrv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("/v1/health", s.healthHandler)
	mux.HandleFunc("/v1/entities", s.entitiesHandler)
	mux.HandleFunc("/v1/cycles", s.cyclesHandler)
	mux.HandleFunc("/v1/cycles/", s.cycleByIDHandler)
	mux.HandleFunc("/v1/run", s.runHandler)
	mux.HandleFunc("/v1/drain", s.drainHandler)
	return s
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := s.acquireLock(); err != nil {
		return err
	}
	if st, err := os.Lstat(s.cfg.SocketPath); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("socket path exists and is not unix socket: %s", s.cfg.SocketPath)
		}
		if err := os.Remove(s.cfg.SocketPath); err != nil {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("stat socket path: %w", err)
	}
	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("listen uds: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		ln.Close() //nolint:errcheck
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("serve uds: %w", err)
		}
		return nil
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		var errs []error
		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		s.mu.Lock()
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()
		if listener != nil {
			if err := listener.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.cfg.SocketPath != "" {
			if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		if err := s.releaseLock(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			s.shutdownErr = fmt.Errorf("shutdown errors: %v", errs)
		}
	})
	return s.shutdownErr
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Status:        "ok",
		Tracked:       s.registry.Len(),
	})
}

func (s *Server) entitiesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}
	entities := s.registry.List()
	resp := api.EntitiesEnvelope{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Entities:      make([]api.EntityResponse, 0, len(entities)),
	}
	for _, e := range entities {
		resp.Entities = append(resp.Entities, api.EntityResponse{
			EntityID: e.EntityID,
			PID:      e.PID,
			Visible:  e.Visible,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cyclesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	cycles, err := s.store.ListCycles(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	resp := api.CyclesEnvelope{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Cycles:        make([]api.CycleResponse, 0, len(cycles)),
	}
	for _, c := range cycles {
		resp.Cycles = append(resp.Cycles, cycleResponse(c))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cycleByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/cycles/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "dispatches" {
		s.writeError(w, http.StatusNotFound, "not_found", "cycle route not found")
		return
	}
	cycleID := parts[0]
	if _, err := s.store.GetCycle(r.Context(), cycleID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "not_found", "cycle not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	dispatches, err := s.store.ListDispatches(r.Context(), cycleID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	resp := api.DispatchesEnvelope{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		CycleID:       cycleID,
		Dispatches:    make([]api.DispatchResponse, 0, len(dispatches)),
	}
	for _, d := range dispatches {
		resp.Dispatches = append(resp.Dispatches, api.DispatchResponse{
			DispatchID:   d.DispatchID,
			PID:          d.PID,
			Action:       string(d.Action),
			ResultCode:   string(d.ResultCode),
			Error:        d.Error,
			DispatchedAt: d.DispatchedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}
	res, err := s.engine.RunCycle(r.Context(), "manual")
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "cycle_failed", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, runResponse(res))
}

func (s *Server) drainHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}
	res, err := s.engine.Drain(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "drain_failed", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, runResponse(res))
}

func runResponse(res engine.CycleResult) api.RunResponse {
	resp := api.RunResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		CycleID:       res.CycleID,
		PlanSize:      len(res.Plan),
	}
	for _, d := range res.Dispatches {
		switch {
		case d.Result != model.ResultOK:
			resp.Failed++
		case d.Action == model.ActionResume:
			resp.Resumed++
		default:
			resp.Suspended++
		}
	}
	return resp
}

func cycleResponse(c model.CycleRecord) api.CycleResponse {
	resp := api.CycleResponse{
		CycleID:     c.CycleID,
		TriggeredBy: c.TriggeredBy,
		StartedAt:   c.StartedAt.UTC().Format(time.RFC3339Nano),
		EntityCount: c.EntityCount,
		PlanSize:    c.PlanSize,
		Error:       c.Error,
	}
	if c.CompletedAt != nil {
		v := c.CompletedAt.UTC().Format(time.RFC3339Nano)
		resp.CompletedAt = &v
	}
	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, api.ErrorResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Error:         api.APIError{Code: code, Message: message},
	})
}

func (s *Server) acquireLock() error {
	lockPath := s.cfg.SocketPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close() //nolint:errcheck
		return model.ErrDaemonAlreadyRunning
	}
	s.mu.Lock()
	s.lockFile = f
	s.mu.Unlock()
	return nil
}

func (s *Server) releaseLock() error {
	s.mu.Lock()
	f := s.lockFile
	s.lockFile = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}
