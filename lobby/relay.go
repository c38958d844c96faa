package lobby

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/automoto/kitchen-mp/network"
	"github.com/automoto/kitchen-mp/shared/directory"
	"github.com/automoto/kitchen-mp/shared/netconfig"
	"go.uber.org/zap"
)

// ErrNoJoinCode is returned when a joined session carries no relay join code.
var ErrNoJoinCode = errors.New("session has no relay join code")

// RelayService hands out relay allocations and resolves their join codes.
type RelayService interface {
	Allocate(ctx context.Context, req directory.AllocateRequest) (directory.Allocation, error)
	JoinCode(ctx context.Context, allocationID string) (string, error)
	Resolve(ctx context.Context, code string) (directory.Allocation, error)
}

// HTTPRelay is the master service's relay API.
type HTTPRelay struct {
	api api
}

func NewHTTPRelay(baseURL, playerID string, client *http.Client) *HTTPRelay {
	return &HTTPRelay{api: newAPI(baseURL, playerID, client)}
}

func (r *HTTPRelay) Allocate(ctx context.Context, req directory.AllocateRequest) (directory.Allocation, error) {
	var a directory.Allocation
	err := r.api.do(ctx, http.MethodPost, "/relay/allocations", req, &a)
	return a, err
}

func (r *HTTPRelay) JoinCode(ctx context.Context, allocationID string) (string, error) {
	var resp directory.JoinCodeResponse
	err := r.api.do(ctx, http.MethodPost, "/relay/allocations/"+url.PathEscape(allocationID)+"/join-code", nil, &resp)
	return resp.Code, err
}

func (r *HTTPRelay) Resolve(ctx context.Context, code string) (directory.Allocation, error) {
	var a directory.Allocation
	err := r.api.do(ctx, http.MethodGet, "/relay/join-codes/"+url.PathEscape(code), nil, &a)
	return a, err
}

// bootstrapHost allocates a relay for the session's guests, publishes its
// join code in the session data and configures the host transport.
func (c *Client) bootstrapHost(ctx context.Context, s directory.Session) (directory.Session, error) {
	if c.hostTransport == nil {
		return s, fmt.Errorf("relay: %w", ErrNoTransport)
	}

	alloc, err := c.relay.Allocate(ctx, directory.AllocateRequest{
		Capacity:   s.MaxPlayers - 1,
		Address:    c.cfg.AdvertiseAddr,
		ListenPort: c.cfg.ListenPort,
	})
	if err != nil {
		return s, fmt.Errorf("relay allocate: %w", err)
	}
	code, err := c.relay.JoinCode(ctx, alloc.ID)
	if err != nil {
		return s, fmt.Errorf("relay join code: %w", err)
	}
	updated, err := c.dir.UpdateData(ctx, s.ID, map[string]string{netconfig.RelayJoinCodeKey: code})
	if err != nil {
		return s, fmt.Errorf("publish join code: %w", err)
	}
	if err := c.hostTransport.Configure(network.HostDescriptor{AllocationID: alloc.ID, ListenPort: alloc.ListenPort}); err != nil {
		return updated, fmt.Errorf("configure host transport: %w", err)
	}

	c.logger.Info("relay ready", zap.String("session", updated.ID), zap.String("allocation", alloc.ID))
	return updated, nil
}

// bootstrapClient resolves the session's join code and configures the client
// transport. A session that has not published its code yet is fetched once
// more before giving up.
func (c *Client) bootstrapClient(ctx context.Context, s directory.Session) error {
	if c.clientTransport == nil {
		return fmt.Errorf("relay: %w", ErrNoTransport)
	}

	code := s.Data[netconfig.RelayJoinCodeKey]
	if code == "" {
		fresh, err := c.dir.Get(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("refresh session: %w", err)
		}
		code = fresh.Data[netconfig.RelayJoinCodeKey]
	}
	if code == "" {
		return ErrNoJoinCode
	}

	alloc, err := c.relay.Resolve(ctx, code)
	if err != nil {
		return fmt.Errorf("relay resolve: %w", err)
	}
	if err := c.clientTransport.Configure(network.ClientDescriptor{AllocationID: alloc.ID, Address: alloc.Address}); err != nil {
		return fmt.Errorf("configure client transport: %w", err)
	}
	return nil
}
