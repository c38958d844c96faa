package lobby

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/automoto/kitchen-mp/shared/directory"
)

// backend is a shared in-memory directory; each fakeDirectory is one
// player's handle on it.
type backend struct {
	mu         sync.Mutex
	sessions   map[string]*directory.Session
	next       int
	deleted    []string
	removed    []string
	heartbeats int
	lists      int
}

func newBackend() *backend {
	return &backend{sessions: make(map[string]*directory.Session)}
}

func (b *backend) as(player string) *fakeDirectory {
	return &fakeDirectory{b: b, player: player}
}

func (b *backend) snapshot() (deleted, removed []string, heartbeats int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...), append([]string(nil), b.removed...), b.heartbeats
}

type fakeDirectory struct {
	b         *backend
	player    string
	createErr error
	hang      bool
	entered   chan struct{}
	gate      chan struct{}
}

func (d *fakeDirectory) wait(ctx context.Context) error {
	if d.entered != nil {
		close(d.entered)
	}
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *fakeDirectory) Create(ctx context.Context, req directory.CreateRequest) (directory.Session, error) {
	if err := d.wait(ctx); err != nil {
		return directory.Session{}, err
	}
	if d.createErr != nil {
		return directory.Session{}, d.createErr
	}
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	d.b.next++
	id := fmt.Sprintf("s%d", d.b.next)
	s := &directory.Session{
		ID:         id,
		Code:       "CODE" + id,
		Name:       req.Name,
		Private:    req.Private,
		HostID:     d.player,
		MaxPlayers: req.MaxPlayers,
		Members:    []directory.Member{{PlayerID: d.player, Name: req.PlayerName}},
		Data:       map[string]string{},
	}
	d.b.sessions[id] = s
	return copySession(s), nil
}

func (d *fakeDirectory) Get(_ context.Context, id string) (directory.Session, error) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	s, ok := d.b.sessions[id]
	if !ok {
		return directory.Session{}, directory.ErrNotFound
	}
	return copySession(s), nil
}

func (d *fakeDirectory) List(_ context.Context, availableOnly bool) ([]directory.Session, error) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	d.b.lists++
	var out []directory.Session
	for _, s := range d.b.sessions {
		if s.Private || (availableOnly && !s.Available()) {
			continue
		}
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *fakeDirectory) Join(ctx context.Context, id, playerName string) (directory.Session, error) {
	if err := d.wait(ctx); err != nil {
		return directory.Session{}, err
	}
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	s, ok := d.b.sessions[id]
	if !ok {
		return directory.Session{}, directory.ErrNotFound
	}
	return d.join(s, playerName)
}

func (d *fakeDirectory) JoinByCode(ctx context.Context, code, playerName string) (directory.Session, error) {
	if err := d.wait(ctx); err != nil {
		return directory.Session{}, err
	}
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	for _, s := range d.b.sessions {
		if s.Code == code {
			return d.join(s, playerName)
		}
	}
	return directory.Session{}, directory.ErrNotFound
}

func (d *fakeDirectory) QuickJoin(ctx context.Context, playerName string) (directory.Session, error) {
	if err := d.wait(ctx); err != nil {
		return directory.Session{}, err
	}
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	ids := make([]string, 0, len(d.b.sessions))
	for id := range d.b.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := d.b.sessions[id]
		if !s.Private && s.Available() {
			return d.join(s, playerName)
		}
	}
	return directory.Session{}, directory.ErrNotFound
}

func (d *fakeDirectory) join(s *directory.Session, playerName string) (directory.Session, error) {
	if !s.HasMember(d.player) {
		if !s.Available() {
			return directory.Session{}, directory.ErrFull
		}
		s.Members = append(s.Members, directory.Member{PlayerID: d.player, Name: playerName})
	}
	return copySession(s), nil
}

func (d *fakeDirectory) Delete(ctx context.Context, id string) error {
	if d.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	s, ok := d.b.sessions[id]
	if !ok {
		return directory.ErrNotFound
	}
	if s.HostID != d.player {
		return directory.ErrForbidden
	}
	delete(d.b.sessions, id)
	d.b.deleted = append(d.b.deleted, id)
	return nil
}

func (d *fakeDirectory) RemoveMember(_ context.Context, id, playerID string) error {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	s, ok := d.b.sessions[id]
	if !ok {
		return directory.ErrNotFound
	}
	for i, m := range s.Members {
		if m.PlayerID == playerID {
			s.Members = append(s.Members[:i], s.Members[i+1:]...)
			d.b.removed = append(d.b.removed, id+"/"+playerID)
			return nil
		}
	}
	return directory.ErrNotFound
}

func (d *fakeDirectory) UpdateData(_ context.Context, id string, data map[string]string) (directory.Session, error) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	s, ok := d.b.sessions[id]
	if !ok {
		return directory.Session{}, directory.ErrNotFound
	}
	for k, v := range data {
		s.Data[k] = v
	}
	return copySession(s), nil
}

func (d *fakeDirectory) Heartbeat(_ context.Context, id string) error {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if _, ok := d.b.sessions[id]; !ok {
		return directory.ErrNotFound
	}
	d.b.heartbeats++
	return nil
}

func copySession(s *directory.Session) directory.Session {
	out := *s
	out.Members = append([]directory.Member(nil), s.Members...)
	out.Data = make(map[string]string, len(s.Data))
	for k, v := range s.Data {
		out.Data[k] = v
	}
	return out
}

type fakeRelay struct {
	mu       sync.Mutex
	allocs   map[string]directory.Allocation
	codes    map[string]string
	next     int
	allocErr error
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{allocs: make(map[string]directory.Allocation), codes: make(map[string]string)}
}

func (r *fakeRelay) Allocate(_ context.Context, req directory.AllocateRequest) (directory.Allocation, error) {
	if r.allocErr != nil {
		return directory.Allocation{}, r.allocErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	a := directory.Allocation{
		ID:         fmt.Sprintf("alloc-%d", r.next),
		Capacity:   req.Capacity,
		Address:    req.Address,
		ListenPort: req.ListenPort,
	}
	r.allocs[a.ID] = a
	return a, nil
}

func (r *fakeRelay) JoinCode(_ context.Context, allocationID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.allocs[allocationID]; !ok {
		return "", directory.ErrNotFound
	}
	code := "J" + allocationID
	r.codes[code] = allocationID
	return code, nil
}

func (r *fakeRelay) Resolve(_ context.Context, code string) (directory.Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.allocs[r.codes[code]]
	if !ok {
		return directory.Allocation{}, directory.ErrNotFound
	}
	return a, nil
}
