package lobby

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/automoto/kitchen-mp/shared/directory"
)

// Directory is the session directory as seen by one player.
type Directory interface {
	Create(ctx context.Context, req directory.CreateRequest) (directory.Session, error)
	Get(ctx context.Context, id string) (directory.Session, error)
	List(ctx context.Context, availableOnly bool) ([]directory.Session, error)
	Join(ctx context.Context, id, playerName string) (directory.Session, error)
	JoinByCode(ctx context.Context, code, playerName string) (directory.Session, error)
	QuickJoin(ctx context.Context, playerName string) (directory.Session, error)
	Delete(ctx context.Context, id string) error
	RemoveMember(ctx context.Context, id, playerID string) error
	UpdateData(ctx context.Context, id string, data map[string]string) (directory.Session, error)
	Heartbeat(ctx context.Context, id string) error
}

// HTTPDirectory talks to the master service.
type HTTPDirectory struct {
	api api
}

// NewHTTPDirectory returns a directory client acting as playerID. A nil
// client gets a default with a 5s timeout.
func NewHTTPDirectory(baseURL, playerID string, client *http.Client) *HTTPDirectory {
	return &HTTPDirectory{api: newAPI(baseURL, playerID, client)}
}

func (d *HTTPDirectory) Create(ctx context.Context, req directory.CreateRequest) (directory.Session, error) {
	var s directory.Session
	err := d.api.do(ctx, http.MethodPost, "/sessions", req, &s)
	return s, err
}

func (d *HTTPDirectory) Get(ctx context.Context, id string) (directory.Session, error) {
	var s directory.Session
	err := d.api.do(ctx, http.MethodGet, sessionPath(id), nil, &s)
	return s, err
}

func (d *HTTPDirectory) List(ctx context.Context, availableOnly bool) ([]directory.Session, error) {
	var out []directory.Session
	err := d.api.do(ctx, http.MethodGet, "/sessions?available="+strconv.FormatBool(availableOnly), nil, &out)
	return out, err
}

func (d *HTTPDirectory) Join(ctx context.Context, id, playerName string) (directory.Session, error) {
	var s directory.Session
	err := d.api.do(ctx, http.MethodPost, sessionPath(id)+"/join", directory.JoinRequest{PlayerName: playerName}, &s)
	return s, err
}

func (d *HTTPDirectory) JoinByCode(ctx context.Context, code, playerName string) (directory.Session, error) {
	var s directory.Session
	err := d.api.do(ctx, http.MethodPost, "/sessions/join-by-code", directory.JoinRequest{Code: code, PlayerName: playerName}, &s)
	return s, err
}

func (d *HTTPDirectory) QuickJoin(ctx context.Context, playerName string) (directory.Session, error) {
	var s directory.Session
	err := d.api.do(ctx, http.MethodPost, "/sessions/quick-join", directory.JoinRequest{PlayerName: playerName}, &s)
	return s, err
}

func (d *HTTPDirectory) Delete(ctx context.Context, id string) error {
	return d.api.do(ctx, http.MethodDelete, sessionPath(id), nil, nil)
}

func (d *HTTPDirectory) RemoveMember(ctx context.Context, id, playerID string) error {
	return d.api.do(ctx, http.MethodDelete, sessionPath(id)+"/members/"+url.PathEscape(playerID), nil, nil)
}

func (d *HTTPDirectory) UpdateData(ctx context.Context, id string, data map[string]string) (directory.Session, error) {
	var s directory.Session
	err := d.api.do(ctx, http.MethodPut, sessionPath(id)+"/data", directory.UpdateDataRequest{Data: data}, &s)
	return s, err
}

func (d *HTTPDirectory) Heartbeat(ctx context.Context, id string) error {
	return d.api.do(ctx, http.MethodPost, sessionPath(id)+"/heartbeat", nil, nil)
}

func sessionPath(id string) string {
	return "/sessions/" + url.PathEscape(id)
}
