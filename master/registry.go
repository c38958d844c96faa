package main

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/automoto/kitchen-mp/shared/directory"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	codeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength = 6
)

// Registry is an in-memory store of sessions with heartbeat-based expiry.
// Every method returns copies; callers never see the stored sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*directory.Session
	byCode   map[string]string
	ttl      time.Duration
	clock    clockwork.Clock
	random   io.Reader
	logger   *zap.Logger
}

func NewRegistry(ttl time.Duration, clock clockwork.Clock, logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*directory.Session),
		byCode:   make(map[string]string),
		ttl:      ttl,
		clock:    clock,
		random:   rand.Reader,
		logger:   logger,
	}
}

// Create registers a session hosted by hostID, who becomes its first member.
func (r *Registry) Create(hostID string, req directory.CreateRequest, defaultMax int) (directory.Session, error) {
	if req.Name == "" {
		return directory.Session{}, fmt.Errorf("%w: name required", directory.ErrBadRequest)
	}
	maxPlayers := req.MaxPlayers
	if maxPlayers <= 0 || maxPlayers > defaultMax {
		maxPlayers = defaultMax
	}
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var code string
	for code == "" || r.byCode[code] != "" {
		var err error
		if code, err = generateCode(r.random, codeLength); err != nil {
			return directory.Session{}, fmt.Errorf("join code: %w", err)
		}
	}
	s := &directory.Session{
		ID:         uuid.NewString(),
		Code:       code,
		Name:       req.Name,
		Private:    req.Private,
		HostID:     hostID,
		MaxPlayers: maxPlayers,
		Members:    []directory.Member{{PlayerID: hostID, Name: req.PlayerName, JoinedAt: now}},
		Data:       map[string]string{},
		CreatedAt:  now,
		ExpiresAt:  now.Add(r.ttl),
	}
	r.sessions[s.ID] = s
	r.byCode[code] = s.ID
	return clone(s), nil
}

func (r *Registry) Get(id string) (directory.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return directory.Session{}, directory.ErrNotFound
	}
	return clone(s), nil
}

// List returns public sessions, oldest first.
func (r *Registry) List(availableOnly bool) []directory.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]directory.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Private || (availableOnly && !s.Available()) {
			continue
		}
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Join adds playerID to a session. Joining twice is not an error.
func (r *Registry) Join(id, playerID, name string) (directory.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return directory.Session{}, directory.ErrNotFound
	}
	return r.join(s, playerID, name)
}

func (r *Registry) JoinByCode(code, playerID, name string) (directory.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[r.byCode[code]]
	if !ok {
		return directory.Session{}, directory.ErrNotFound
	}
	return r.join(s, playerID, name)
}

// QuickJoin joins the oldest public session with a free slot.
func (r *Registry) QuickJoin(playerID, name string) (directory.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pick *directory.Session
	for _, s := range r.sessions {
		if s.Private || !s.Available() || s.HasMember(playerID) {
			continue
		}
		if pick == nil || s.CreatedAt.Before(pick.CreatedAt) {
			pick = s
		}
	}
	if pick == nil {
		return directory.Session{}, directory.ErrNotFound
	}
	return r.join(pick, playerID, name)
}

func (r *Registry) join(s *directory.Session, playerID, name string) (directory.Session, error) {
	if s.HasMember(playerID) {
		return clone(s), nil
	}
	if !s.Available() {
		return directory.Session{}, directory.ErrFull
	}
	s.Members = append(s.Members, directory.Member{PlayerID: playerID, Name: name, JoinedAt: r.clock.Now()})
	return clone(s), nil
}

// Delete removes a session. Only its host may delete it.
func (r *Registry) Delete(id, callerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return directory.ErrNotFound
	}
	if !s.IsHost(callerID) {
		return directory.ErrForbidden
	}
	r.remove(s)
	return nil
}

// RemoveMember drops memberID. The host may remove anyone; others may only
// remove themselves. The host leaving closes the session.
func (r *Registry) RemoveMember(id, callerID, memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return directory.ErrNotFound
	}
	if callerID != memberID && !s.IsHost(callerID) {
		return directory.ErrForbidden
	}
	if !s.HasMember(memberID) {
		return directory.ErrNotFound
	}
	if s.IsHost(memberID) {
		r.remove(s)
		return nil
	}
	for i, m := range s.Members {
		if m.PlayerID == memberID {
			s.Members = append(s.Members[:i], s.Members[i+1:]...)
			break
		}
	}
	return nil
}

// UpdateData merges data into the session's metadata. Host only.
func (r *Registry) UpdateData(id, callerID string, data map[string]string) (directory.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return directory.Session{}, directory.ErrNotFound
	}
	if !s.IsHost(callerID) {
		return directory.Session{}, directory.ErrForbidden
	}
	for k, v := range data {
		s.Data[k] = v
	}
	return clone(s), nil
}

// Heartbeat pushes the session's expiry back by the TTL. Host only.
func (r *Registry) Heartbeat(id, callerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return directory.ErrNotFound
	}
	if !s.IsHost(callerID) {
		return directory.ErrForbidden
	}
	s.ExpiresAt = r.clock.Now().Add(r.ttl)
	return nil
}

// Expire drops sessions whose host stopped heartbeating.
func (r *Registry) Expire() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	n := 0
	for _, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			r.logger.Info("expired session",
				zap.String("id", s.ID),
				zap.String("name", s.Name),
				zap.Duration("overdue", now.Sub(s.ExpiresAt).Round(time.Second)))
			r.remove(s)
			n++
		}
	}
	return n
}

func (r *Registry) remove(s *directory.Session) {
	delete(r.sessions, s.ID)
	delete(r.byCode, s.Code)
}

func clone(s *directory.Session) directory.Session {
	out := *s
	out.Members = append([]directory.Member(nil), s.Members...)
	out.Data = make(map[string]string, len(s.Data))
	for k, v := range s.Data {
		out.Data[k] = v
	}
	return out
}

func generateCode(random io.Reader, n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(codeChars)))
	for i := range b {
		idx, err := rand.Int(random, max)
		if err != nil {
			return "", err
		}
		b[i] = codeChars[idx.Int64()]
	}
	return string(b), nil
}
