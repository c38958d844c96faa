// Package prefs persists the local player's identity between runs.
package prefs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/quasilyte/gdata"
	"go.uber.org/zap"
)

const itemKey = "player"

// Prefs is what the player keeps between runs.
type Prefs struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type itemStore interface {
	LoadItem(key string) ([]byte, error)
	SaveItem(key string, data []byte) error
}

// Store reads and writes Prefs.
type Store struct {
	items  itemStore
	logger *zap.Logger
}

// Open opens the per-user data store for appName.
func Open(appName string, logger *zap.Logger) (*Store, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open prefs: %w", err)
	}
	return &Store{items: m, logger: logger.Named("prefs")}, nil
}

// Load returns the saved prefs, or zero Prefs when nothing was saved yet.
func (s *Store) Load() (Prefs, error) {
	data, err := s.items.LoadItem(itemKey)
	if err != nil {
		return Prefs{}, fmt.Errorf("load prefs: %w", err)
	}
	if data == nil {
		return Prefs{}, nil
	}

	var p Prefs
	if err := json.Unmarshal(data, &p); err != nil {
		return Prefs{}, fmt.Errorf("parse prefs: %w", err)
	}
	return p, nil
}

func (s *Store) Save(p Prefs) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("serialize prefs: %w", err)
	}
	if err := s.items.SaveItem(itemKey, data); err != nil {
		return fmt.Errorf("save prefs: %w", err)
	}
	return nil
}

// Identity returns the saved identity, generating a player id on first use.
// A non-empty name replaces the saved one.
func (s *Store) Identity(name string) (Prefs, error) {
	p, err := s.Load()
	if err != nil {
		s.logger.Warn("discarding unreadable prefs", zap.Error(err))
		p = Prefs{}
	}

	dirty := false
	if p.PlayerID == "" {
		p.PlayerID = uuid.NewString()
		dirty = true
	}
	if name != "" && name != p.PlayerName {
		p.PlayerName = name
		dirty = true
	}
	if p.PlayerName == "" {
		p.PlayerName = "Chef-" + p.PlayerID[:4]
		dirty = true
	}

	if dirty {
		if err := s.Save(p); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Ephemeral returns an identity that is never saved.
func Ephemeral(name string) Prefs {
	p := Prefs{PlayerID: uuid.NewString(), PlayerName: name}
	if p.PlayerName == "" {
		p.PlayerName = "Chef-" + p.PlayerID[:4]
	}
	return p
}

// LocalIdentity opens appName's store and returns its identity, falling back
// to an ephemeral one when the store is unusable.
func LocalIdentity(appName, name string, logger *zap.Logger) Prefs {
	store, err := Open(appName, logger)
	if err == nil {
		var p Prefs
		if p, err = store.Identity(name); err == nil {
			return p
		}
	}
	logger.Warn("prefs unavailable, using a throwaway identity", zap.Error(err))
	return Ephemeral(name)
}
