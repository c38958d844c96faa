package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/automoto/kitchen-mp/shared/netconfig"
	"github.com/automoto/kitchen-mp/shared/protocol"
	"github.com/coder/websocket"
	"github.com/leap-fish/necs/router"
	"go.uber.org/zap"
)

const (
	wsQueueSize       = 256
	wsPeerQueueSize   = 1024
	wsReadLimit       = 1 << 20
	wsWriteTimeout    = 5 * time.Second
	wsDialTimeout     = 10 * time.Second
	wsShutdownTimeout = 5 * time.Second
)

// outbound is one entry of a peer's send queue. A closing entry ends the
// connection once everything queued before it was written.
type outbound struct {
	msg     any
	closing bool
	code    websocket.StatusCode
	reason  string
}

type wsPeer struct {
	id   netconfig.PeerID
	conn *websocket.Conn
	out  chan outbound
}

// WsHost serves a session over websockets. Messages are encoded and routed
// by the necs router; each peer gets a reader goroutine feeding Events and a
// writer goroutine draining its send queue.
type WsHost struct {
	logger    *zap.Logger
	events    chan Event
	ready     chan struct{}
	readyOnce sync.Once

	mu    sync.RWMutex
	port  uint
	ctx   context.Context
	stop  context.CancelFunc
	addr  net.Addr
	peers map[netconfig.PeerID]*wsPeer
}

func NewWsHost(logger *zap.Logger) *WsHost {
	return &WsHost{
		logger: logger.Named("transport"),
		events: make(chan Event, wsQueueSize),
		ready:  make(chan struct{}),
		peers:  make(map[netconfig.PeerID]*wsPeer),
	}
}

func (h *WsHost) Configure(d HostDescriptor) error {
	if d.ListenPort == 0 {
		return fmt.Errorf("configure host: no listen port in allocation %s", d.AllocationID)
	}
	h.mu.Lock()
	h.port = d.ListenPort
	h.mu.Unlock()
	return nil
}

func (h *WsHost) Listen(ctx context.Context) error {
	h.mu.RLock()
	port := h.port
	h.mu.RUnlock()
	if port == 0 {
		return ErrNotConfigured
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	detach := protocol.Attach(h.deliver)
	defer detach()

	h.mu.Lock()
	h.ctx = ctx
	h.stop = cancel
	h.addr = ln.Addr()
	h.mu.Unlock()

	srv := &http.Server{
		Handler:           http.HandlerFunc(h.accept),
		ReadHeaderTimeout: wsDialTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	h.logger.Info("listening", zap.Stringer("addr", ln.Addr()))
	h.readyOnce.Do(func() { close(h.ready) })

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), wsShutdownTimeout)
		defer cancelShutdown()
		h.closePeers()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("websocket server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("websocket server: %w", err)
	}
}

// Ready is closed once Listen accepts connections.
func (h *WsHost) Ready() <-chan struct{} { return h.ready }

// Addr returns the listening address, nil before Listen.
func (h *WsHost) Addr() net.Addr {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.addr
}

func (h *WsHost) Events() <-chan Event { return h.events }

func (h *WsHost) Send(peer netconfig.PeerID, msg any) error {
	p, ok := h.peer(peer)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	select {
	case p.out <- outbound{msg: msg}:
		return nil
	default:
	}

	h.forget(peer)
	h.logger.Warn("send queue full", zap.String("peer", string(peer)))
	go func() { _ = p.conn.Close(websocket.StatusPolicyViolation, SlowPeerReason) }()
	return fmt.Errorf("%w: %s", ErrSlowPeer, peer)
}

// Disconnect closes the peer's connection after everything already queued
// for it was written.
func (h *WsHost) Disconnect(peer netconfig.PeerID, reason string) error {
	p, ok := h.forget(peer)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	h.closePeer(p, websocket.StatusNormalClosure, reason)
	return nil
}

// Close disconnects every peer and stops listening.
func (h *WsHost) Close() error {
	h.closePeers()
	h.mu.RLock()
	stop := h.stop
	h.mu.RUnlock()
	if stop != nil {
		stop()
	}
	return nil
}

func (h *WsHost) closePeers() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[netconfig.PeerID]*wsPeer)
	h.mu.Unlock()

	for _, p := range peers {
		h.closePeer(p, websocket.StatusGoingAway, "")
	}
}

func (h *WsHost) closePeer(p *wsPeer, code websocket.StatusCode, reason string) {
	select {
	case p.out <- outbound{closing: true, code: code, reason: reason}:
	default:
		go func() { _ = p.conn.Close(code, reason) }()
	}
}

func (h *WsHost) peer(id netconfig.PeerID) (*wsPeer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.peers[id]
	return p, ok
}

func (h *WsHost) forget(id netconfig.PeerID) (*wsPeer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.peers[id]
	delete(h.peers, id)
	return p, ok
}

// deliver forwards a decoded message from one of this host's peers.
func (h *WsHost) deliver(sender *router.NetworkClient, msg any) {
	if sender == nil {
		return
	}
	peer := netconfig.PeerID(sender.Id())
	if _, ok := h.peer(peer); !ok {
		return
	}
	h.events <- Event{Kind: EventMessage, Peer: peer, Message: msg}
}

func (h *WsHost) accept(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimit)

	h.mu.RLock()
	base := h.ctx
	h.mu.RUnlock()
	ctx, cancel := context.WithCancel(base)
	defer cancel()

	p := &wsPeer{
		id:   netconfig.PeerID(router.GetId(conn)),
		conn: conn,
		out:  make(chan outbound, wsPeerQueueSize),
	}
	h.mu.Lock()
	h.peers[p.id] = p
	h.mu.Unlock()

	go h.write(ctx, p)
	h.events <- Event{Kind: EventConnected, Peer: p.id}

	var readErr error
	for {
		var payload []byte
		_, payload, readErr = conn.Read(ctx)
		if readErr != nil {
			break
		}
		if err := router.CallProcessMessage(conn, payload); err != nil {
			h.logger.Warn("bad message", zap.String("peer", string(p.id)), zap.Error(err))
		}
	}
	router.CallDisconnect(conn, readErr)

	// Peers the host dropped itself were already cleaned up.
	if _, known := h.forget(p.id); known {
		h.events <- Event{Kind: EventDisconnected, Peer: p.id, Err: readErr}
	}
}

func (h *WsHost) write(ctx context.Context, p *wsPeer) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-p.out:
			if o.closing {
				_ = p.conn.Close(o.code, o.reason)
				return
			}
			if err := writeMessage(ctx, p.conn, o.msg); err != nil {
				h.logger.Warn("write failed", zap.String("peer", string(p.id)), zap.Error(err))
				_ = p.conn.CloseNow()
				return
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg any) error {
	payload, err := router.Serialize(msg)
	if err != nil {
		return fmt.Errorf("serialize %T: %w", msg, err)
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageBinary, payload)
}

// WsClient connects to a WsHost.
type WsClient struct {
	logger *zap.Logger
	events chan Event

	mu     sync.RWMutex
	addr   string
	conn   *websocket.Conn
	cancel context.CancelFunc
	detach func()
}

func NewWsClient(logger *zap.Logger) *WsClient {
	return &WsClient{
		logger: logger.Named("transport"),
		events: make(chan Event, wsQueueSize),
	}
}

func (c *WsClient) Configure(d ClientDescriptor) error {
	if d.Address == "" {
		return fmt.Errorf("configure client: no address for allocation %s", d.AllocationID)
	}
	c.mu.Lock()
	c.addr = d.Address
	c.mu.Unlock()
	return nil
}

func (c *WsClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	addr := c.addr
	if addr == "" {
		c.mu.Unlock()
		return ErrNotConfigured
	}
	if c.cancel != nil {
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if c.detach == nil {
		c.detach = protocol.Attach(c.deliver)
	}
	c.mu.Unlock()

	go c.run(ctx, runCtx, addr)
	return nil
}

func (c *WsClient) run(dialCtx, ctx context.Context, addr string) {
	dialCtx, cancelDial := context.WithTimeout(dialCtx, wsDialTimeout)
	conn, _, err := websocket.Dial(dialCtx, "ws://"+addr, nil)
	cancelDial()
	if err != nil {
		c.events <- Event{Kind: EventDisconnected, Err: fmt.Errorf("connection failed: %w", err)}
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimit)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("connected", zap.String("addr", addr))
	c.events <- Event{Kind: EventConnected}

	var readErr error
	for {
		var payload []byte
		_, payload, readErr = conn.Read(ctx)
		if readErr != nil {
			break
		}
		if err := router.CallProcessMessage(conn, payload); err != nil {
			c.logger.Warn("bad message", zap.Error(err))
		}
	}
	router.CallDisconnect(conn, readErr)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	c.events <- Event{Kind: EventDisconnected, Err: readErr, Reason: closeReason(readErr)}
}

// deliver forwards host messages that arrived on this client's connection.
func (c *WsClient) deliver(sender *router.NetworkClient, msg any) {
	c.mu.RLock()
	mine := sender != nil && c.conn != nil && sender.Conn == c.conn
	c.mu.RUnlock()
	if mine {
		c.events <- Event{Kind: EventMessage, Message: msg}
	}
}

func (c *WsClient) Events() <-chan Event { return c.events }

func (c *WsClient) Send(msg any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return writeMessage(context.Background(), conn, msg)
}

func (c *WsClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	detach := c.detach
	c.cancel = nil
	c.detach = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	if cancel != nil {
		cancel()
	}
	if detach != nil {
		detach()
	}
	return nil
}

// closeReason extracts the reason a host gave when closing the socket.
func closeReason(err error) string {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}
