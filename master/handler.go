package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/automoto/kitchen-mp/shared/directory"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"
)

const maxRequestBody = 1 << 16 // 64 KB

// Service serves the session directory and the relay over HTTP.
type Service struct {
	registry   *Registry
	relay      *Relay
	maxPlayers int
	logger     *zap.Logger
}

func NewService(registry *Registry, relay *Relay, maxPlayers int, logger *zap.Logger) *Service {
	return &Service{
		registry:   registry,
		relay:      relay,
		maxPlayers: maxPlayers,
		logger:     logger,
	}
}

// Routes builds the HTTP router.
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", s.health)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Post("/quick-join", s.quickJoin)
		r.Post("/join-by-code", s.joinByCode)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/join", s.joinSession)
			r.Post("/heartbeat", s.heartbeat)
			r.Put("/data", s.updateData)
			r.Delete("/members/{playerID}", s.removeMember)
		})
	})

	r.Route("/relay", func(r chi.Router) {
		r.Post("/allocations", s.allocate)
		r.Post("/allocations/{id}/join-code", s.joinCode)
		r.Get("/join-codes/{code}", s.resolve)
	})

	return r
}

// RunCleanup expires sessions and allocations every interval until ctx is
// done.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := s.registry.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.registry.Expire()
			if n := s.relay.Expire(); n > 0 {
				s.logger.Info("expired allocations", zap.Int("count", n))
			}
		}
	}
}

func (s *Service) health(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) listSessions(w http.ResponseWriter, r *http.Request) {
	available := r.URL.Query().Get("available") == "true"
	s.write(w, r, http.StatusOK, s.registry.List(available))
}

func (s *Service) createSession(w http.ResponseWriter, r *http.Request) {
	player, ok := s.player(w, r)
	if !ok {
		return
	}
	req, ok := decode[directory.CreateRequest](s, w, r)
	if !ok {
		return
	}

	session, err := s.registry.Create(player, req, s.maxPlayers)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("session created",
		zap.String("id", session.ID),
		zap.String("name", session.Name),
		zap.Bool("private", session.Private))
	s.write(w, r, http.StatusCreated, session)
}

func (s *Service) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, session)
}

func (s *Service) joinSession(w http.ResponseWriter, r *http.Request) {
	player, ok := s.player(w, r)
	if !ok {
		return
	}
	req, ok := decode[directory.JoinRequest](s, w, r)
	if !ok {
		return
	}
	s.joined(w, r)(s.registry.Join(chi.URLParam(r, "id"), player, req.PlayerName))
}

func (s *Service) joinByCode(w http.ResponseWriter, r *http.Request) {
	player, ok := s.player(w, r)
	if !ok {
		return
	}
	req, ok := decode[directory.JoinRequest](s, w, r)
	if !ok {
		return
	}
	s.joined(w, r)(s.registry.JoinByCode(req.Code, player, req.PlayerName))
}

func (s *Service) quickJoin(w http.ResponseWriter, r *http.Request) {
	player, ok := s.player(w, r)
	if !ok {
		return
	}
	req, ok := decode[directory.JoinRequest](s, w, r)
	if !ok {
		return
	}
	s.joined(w, r)(s.registry.QuickJoin(player, req.PlayerName))
}

func (s *Service) joined(w http.ResponseWriter, r *http.Request) func(directory.Session, error) {
	return func(session directory.Session, err error) {
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.write(w, r, http.StatusOK, session)
	}
}

func (s *Service) deleteSession(w http.ResponseWriter, r *http.Request) {
	player, ok := s.player(w, r)
	if !ok {
		return
	}
	if err := s.registry.Delete(chi.URLParam(r, "id"), player); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) removeMember(w http.ResponseWriter, r *http.Request) {
	player, ok := s.player(w, r)
	if !ok {
		return
	}
	err := s.registry.RemoveMember(chi.URLParam(r, "id"), player, chi.URLParam(r, "playerID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) updateData(w http.ResponseWriter, r *http.Request) {
	player, ok := s.player(w, r)
	if !ok {
		return
	}
	req, ok := decode[directory.UpdateDataRequest](s, w, r)
	if !ok {
		return
	}
	session, err := s.registry.UpdateData(chi.URLParam(r, "id"), player, req.Data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, session)
}

func (s *Service) heartbeat(w http.ResponseWriter, r *http.Request) {
	player, ok := s.player(w, r)
	if !ok {
		return
	}
	if err := s.registry.Heartbeat(chi.URLParam(r, "id"), player); err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) allocate(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[directory.AllocateRequest](s, w, r)
	if !ok {
		return
	}
	alloc, err := s.relay.Allocate(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("relay allocated", zap.String("id", alloc.ID), zap.String("address", alloc.Address))
	s.write(w, r, http.StatusCreated, alloc)
}

func (s *Service) joinCode(w http.ResponseWriter, r *http.Request) {
	code, err := s.relay.JoinCode(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, directory.JoinCodeResponse{Code: code})
}

func (s *Service) resolve(w http.ResponseWriter, r *http.Request) {
	alloc, err := s.relay.Resolve(chi.URLParam(r, "code"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, alloc)
}

func (s *Service) player(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(directory.PlayerHeader)
	if id == "" {
		s.write(w, r, http.StatusUnauthorized, directory.ErrorResponse{Error: "missing " + directory.PlayerHeader})
		return "", false
	}
	return id, true
}

func decode[T any](s *Service, w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.write(w, r, http.StatusBadRequest, directory.ErrorResponse{Error: "invalid json"})
		return req, false
	}
	return req, true
}

func (s *Service) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, directory.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, directory.ErrFull):
		status = http.StatusConflict
	case errors.Is(err, directory.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, directory.ErrBadRequest):
		status = http.StatusBadRequest
	}
	s.write(w, r, status, directory.ErrorResponse{Error: err.Error()})
}

func (s *Service) write(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("encode response failed",
			zap.String("path", r.URL.Path),
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}
