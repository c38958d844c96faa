package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/automoto/kitchen-mp/shared/directory"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	clock := clockwork.NewFakeClock()
	logger := zaptest.NewLogger(t)
	svc := NewService(NewRegistry(time.Minute, clock, logger), NewRelay(time.Hour, clock), 4, logger)
	srv := httptest.NewServer(svc.Routes())
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv}
}

func (c *apiClient) do(method, path, player string, body, out any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.srv.URL+path, &buf)
	require.NoError(c.t, err)
	if player != "" {
		req.Header.Set(directory.PlayerHeader, player)
	}
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	api := newAPI(t)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/health", "", nil, nil))
}

func TestSessionLifecycle(t *testing.T) {
	api := newAPI(t)

	var created directory.Session
	status := api.do(http.MethodPost, "/sessions", "host", directory.CreateRequest{Name: "Kitchen", PlayerName: "Ann"}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, created.ID)

	var listed []directory.Session
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/sessions?available=true", "", nil, &listed))
	require.Len(t, listed, 1)

	var joined directory.Session
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/sessions/"+created.ID+"/join", "p2", directory.JoinRequest{PlayerName: "Bo"}, &joined))
	assert.Len(t, joined.Members, 2)

	var updated directory.Session
	data := directory.UpdateDataRequest{Data: map[string]string{"RelayJoinCode": "ABC123"}}
	require.Equal(t, http.StatusOK, api.do(http.MethodPut, "/sessions/"+created.ID+"/data", "host", data, &updated))
	assert.Equal(t, "ABC123", updated.Data["RelayJoinCode"])

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodPut, "/sessions/"+created.ID+"/data", "p2", data, nil))
	assert.Equal(t, http.StatusOK, api.do(http.MethodPost, "/sessions/"+created.ID+"/heartbeat", "host", nil, nil))

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/sessions/"+created.ID+"/members/p2", "host", nil, nil))
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodDelete, "/sessions/"+created.ID, "p2", nil, nil))
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/sessions/"+created.ID, "host", nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/sessions/"+created.ID, "", nil, nil))
}

func TestJoinByCodeAndQuickJoin(t *testing.T) {
	api := newAPI(t)

	var private directory.Session
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/sessions", "host", directory.CreateRequest{Name: "Secret", Private: true}, &private))

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/sessions/quick-join", "p2", directory.JoinRequest{}, nil))

	var joined directory.Session
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/sessions/join-by-code", "p2", directory.JoinRequest{Code: private.Code}, &joined))
	assert.Equal(t, private.ID, joined.ID)

	var public directory.Session
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/sessions", "host2", directory.CreateRequest{Name: "Open", MaxPlayers: 2}, &public))
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/sessions/quick-join", "p3", directory.JoinRequest{PlayerName: "Cy"}, &joined))
	assert.Equal(t, public.ID, joined.ID)

	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/sessions/"+public.ID+"/join", "p4", directory.JoinRequest{}, nil))
}

func TestRequestValidation(t *testing.T) {
	api := newAPI(t)

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/sessions", "", directory.CreateRequest{Name: "x"}, nil))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/sessions", "host", directory.CreateRequest{}, nil))

	req, err := http.NewRequest(http.MethodPost, api.srv.URL+"/sessions", bytes.NewBufferString("{"))
	require.NoError(t, err)
	req.Header.Set(directory.PlayerHeader, "host")
	resp, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRelayEndpoints(t *testing.T) {
	api := newAPI(t)

	var alloc directory.Allocation
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/relay/allocations", "host", directory.AllocateRequest{Capacity: 3, Address: "127.0.0.1:7777", ListenPort: 7777}, &alloc))

	var code directory.JoinCodeResponse
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/relay/allocations/"+alloc.ID+"/join-code", "host", nil, &code))
	require.NotEmpty(t, code.Code)

	var resolved directory.Allocation
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/relay/join-codes/"+code.Code, "", nil, &resolved))
	assert.Equal(t, alloc.ID, resolved.ID)
	assert.Equal(t, "127.0.0.1:7777", resolved.Address)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/relay/join-codes/ZZZZZZ", "", nil, nil))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/relay/allocations", "host", directory.AllocateRequest{}, nil))
}
