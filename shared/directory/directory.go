// Package directory defines the wire types of the session directory and relay
// service shared by the master server and the lobby client.
package directory

import (
	"errors"
	"time"
)

// PlayerHeader carries the caller's player id on every directory request.
const PlayerHeader = "X-Player-Id"

var (
	ErrNotFound   = errors.New("not found")
	ErrFull       = errors.New("session is full")
	ErrForbidden  = errors.New("forbidden")
	ErrBadRequest = errors.New("bad request")
)

// Member is a player listed in a session.
type Member struct {
	PlayerID string    `json:"playerId"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Session is a discoverable match. Data carries opaque key/value pairs such as
// the relay join code.
type Session struct {
	ID         string            `json:"id"`
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	Private    bool              `json:"private"`
	HostID     string            `json:"hostId"`
	MaxPlayers int               `json:"maxPlayers"`
	Members    []Member          `json:"members"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	ExpiresAt  time.Time         `json:"expiresAt"`
}

// Available reports whether the session has a free slot.
func (s Session) Available() bool {
	return len(s.Members) < s.MaxPlayers
}

// IsHost reports whether playerID hosts the session.
func (s Session) IsHost(playerID string) bool {
	return playerID != "" && s.HostID == playerID
}

// HasMember reports whether playerID is listed.
func (s Session) HasMember(playerID string) bool {
	for _, m := range s.Members {
		if m.PlayerID == playerID {
			return true
		}
	}
	return false
}

type CreateRequest struct {
	Name       string `json:"name"`
	Private    bool   `json:"private"`
	MaxPlayers int    `json:"maxPlayers"`
	PlayerName string `json:"playerName"`
}

type JoinRequest struct {
	Code       string `json:"code,omitempty"`
	PlayerName string `json:"playerName"`
}

type UpdateDataRequest struct {
	Data map[string]string `json:"data"`
}

// Allocation is a relay endpoint reserved by a host.
type Allocation struct {
	ID         string    `json:"id"`
	Capacity   int       `json:"capacity"`
	Address    string    `json:"address"`
	ListenPort uint      `json:"listenPort"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type AllocateRequest struct {
	Capacity   int    `json:"capacity"`
	Address    string `json:"address"`
	ListenPort uint   `json:"listenPort"`
}

type JoinCodeResponse struct {
	Code string `json:"code"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
