package main

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/automoto/kitchen-mp/shared/directory"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Relay hands out allocations and the join codes that resolve to them.
// Allocations record where the host listens; clients resolve a join code to
// that address.
type Relay struct {
	mu          sync.Mutex
	allocations map[string]*directory.Allocation
	codes       map[string]string
	lifetime    time.Duration
	clock       clockwork.Clock
	random      io.Reader
}

func NewRelay(lifetime time.Duration, clock clockwork.Clock) *Relay {
	return &Relay{
		allocations: make(map[string]*directory.Allocation),
		codes:       make(map[string]string),
		lifetime:    lifetime,
		clock:       clock,
		random:      rand.Reader,
	}
}

func (r *Relay) Allocate(req directory.AllocateRequest) (directory.Allocation, error) {
	if req.Capacity <= 0 {
		return directory.Allocation{}, fmt.Errorf("%w: capacity must be positive", directory.ErrBadRequest)
	}
	if req.Address == "" {
		return directory.Allocation{}, fmt.Errorf("%w: address required", directory.ErrBadRequest)
	}

	a := &directory.Allocation{
		ID:         uuid.NewString(),
		Capacity:   req.Capacity,
		Address:    req.Address,
		ListenPort: req.ListenPort,
		ExpiresAt:  r.clock.Now().Add(r.lifetime),
	}

	r.mu.Lock()
	r.allocations[a.ID] = a
	r.mu.Unlock()
	return *a, nil
}

// JoinCode returns the allocation's join code, creating it on first use.
func (r *Relay) JoinCode(allocationID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.allocations[allocationID]; !ok {
		return "", directory.ErrNotFound
	}
	for code, id := range r.codes {
		if id == allocationID {
			return code, nil
		}
	}
	var code string
	for code == "" || r.codes[code] != "" {
		var err error
		if code, err = generateCode(r.random, codeLength); err != nil {
			return "", fmt.Errorf("join code: %w", err)
		}
	}
	r.codes[code] = allocationID
	return code, nil
}

func (r *Relay) Resolve(code string) (directory.Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.allocations[r.codes[code]]
	if !ok {
		return directory.Allocation{}, directory.ErrNotFound
	}
	return *a, nil
}

// Expire drops allocations past their lifetime.
func (r *Relay) Expire() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	n := 0
	for id, a := range r.allocations {
		if now.Before(a.ExpiresAt) {
			continue
		}
		delete(r.allocations, id)
		for code, target := range r.codes {
			if target == id {
				delete(r.codes, code)
			}
		}
		n++
	}
	return n
}
