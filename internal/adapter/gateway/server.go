package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"chrysalis/internal/domain"
	"chrysalis/internal/infra/config"
	"chrysalis/internal/infra/middleware"
)

// RPCHandler handles a single RPC method call from a connected client.
type RPCHandler func(ctx context.Context, conn Conn, payload json.RawMessage) (json.RawMessage, error)

var errSendQueueFull = errors.New("send queue full")

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	id        uint64
	remote    string
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
}

func (c *clientConn) ID() uint64 { return c.id }

func (c *clientConn) Send(f Frame) error {
	select {
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
	}
	select {
	case c.sendCh <- f:
		return nil
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
		return errSendQueueFull
	}
}

func (c *clientConn) Ping(ctx context.Context) error { return c.ws.Ping(ctx) }

func (c *clientConn) Close(reason string) {
	c.markDone()
	c.ws.Close(websocket.StatusGoingAway, reason)
}

func (c *clientConn) markDone() { c.closeOnce.Do(func() { close(c.done) }) }

// Server is the HTTP and WebSocket front door. It owns the connection
// lifecycle and hosts the REST routes registered on it.
type Server struct {
	registry    *Registry
	bus         domain.EventBus
	srvCfg      config.ServerConfig
	gwCfg       config.GatewayConfig
	logger      *slog.Logger
	handlersMu  sync.RWMutex
	handlers    map[string]RPCHandler
	httpRoutes  []httpRoute
	middlewares []middleware.Middleware
	nextID      atomic.Uint64

	buildOnce sync.Once
	handler   http.Handler

	mu        sync.Mutex
	httpSrv   *http.Server
	boundAddr string
}

type httpRoute struct {
	pattern string
	handler http.HandlerFunc
}

// NewServer creates a server with the register and chat-message methods installed.
func NewServer(registry *Registry, bus domain.EventBus, srvCfg config.ServerConfig, gwCfg config.GatewayConfig, logger *slog.Logger) *Server {
	s := &Server{
		registry: registry,
		bus:      bus,
		srvCfg:   srvCfg,
		gwCfg:    gwCfg,
		logger:   logger,
		handlers: make(map[string]RPCHandler),
	}
	s.RegisterHandler(MethodRegister, registerHandler(s))
	s.RegisterHandler(MethodChatMessage, chatMessageHandler(s))
	return s
}

// RegisterHandler adds an RPC handler for the given method name.
// Safe to call concurrently with active connections.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// RegisterHTTPRoute adds an HTTP handler using http.ServeMux patterns.
// Must be called before Handler or Start.
func (s *Server) RegisterHTTPRoute(pattern string, handler http.HandlerFunc) {
	s.httpRoutes = append(s.httpRoutes, httpRoute{pattern: pattern, handler: handler})
}

// Use appends middleware; the first one added is the outermost.
// Must be called before Handler or Start.
func (s *Server) Use(mws ...middleware.Middleware) {
	s.middlewares = append(s.middlewares, mws...)
}

// Handler returns the root handler: /ws plus every registered route, wrapped
// in the configured middleware.
func (s *Server) Handler() http.Handler {
	s.buildOnce.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /ws", s.handleUpgrade)
		for _, route := range s.httpRoutes {
			mux.HandleFunc(route.pattern, route.handler)
		}
		s.handler = middleware.Chain(mux, s.middlewares...)
	})
	return s.handler
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.srvCfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.srvCfg.ReadHeaderTimeout,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info("gateway started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop closes every client connection and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	for _, c := range s.registry.Connections() {
		c.Close("server shutting down")
	}

	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	timeout := s.srvCfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual address the server bound to. Empty until Start binds.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// PingAll pings every live connection concurrently and closes the ones that
// fail to answer before ctx expires.
func (s *Server) PingAll(ctx context.Context) error {
	conns := s.registry.Connections()
	var failed atomic.Int32
	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c Conn) {
			defer wg.Done()
			if err := c.Ping(ctx); err != nil {
				failed.Add(1)
				s.logger.Info("closing unresponsive connection", "conn_id", c.ID(), "error", err)
				c.Close("keepalive failed")
			}
		}(c)
	}
	wg.Wait()
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d connections failed keepalive", n, len(conns))
	}
	return nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.gwCfg.OriginPatterns,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	buf := s.gwCfg.SendBuffer
	if buf <= 0 {
		buf = 64
	}
	cc := &clientConn{
		id:     s.nextID.Add(1),
		remote: r.RemoteAddr,
		ws:     ws,
		sendCh: make(chan Frame, buf),
		done:   make(chan struct{}),
	}
	s.registry.Add(cc)
	s.logger.Info("gateway client connected", "conn_id", cc.id, "remote", cc.remote)

	go s.writeLoop(cc)
	s.readLoop(r.Context(), cc)
	s.disconnect(r.Context(), cc)
}

// disconnect drops cc and tells everyone else when it carried an agent.
func (s *Server) disconnect(ctx context.Context, cc *clientConn) {
	cc.markDone()
	agentID, wasAgent := s.registry.Remove(cc)
	cc.ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", cc.id, "agent_id", agentID)

	if !wasAgent {
		return
	}
	if frame, err := eventFrame(EventAgentDisconnected, map[string]string{"agentId": agentID}); err == nil {
		fanOut(s.logger, s.registry.Connections(), frame, nil)
	}
	s.publish(context.WithoutCancel(ctx), domain.EventAgentDisconnected, agentID, nil)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		go s.dispatchRPC(ctx, cc, frame)
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	timeout := s.gwCfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				s.logger.Debug("gateway write failed", "conn_id", cc.id, "error", err)
				cc.Close("write failed")
				return
			}
		}
	}
}

func (s *Server) dispatchRPC(ctx context.Context, cc *clientConn, req Frame) {
	s.handlersMu.RLock()
	handler, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()
	if !ok {
		s.sendResponse(cc, req.ID, nil, domain.NewDomainError("gateway."+req.Method, domain.ErrRPCMethodNotFound, ""))
		return
	}

	result, err := handler(ctx, cc, req.Payload)
	s.sendResponse(cc, req.ID, result, err)
}

func (s *Server) sendResponse(cc *clientConn, id uint64, result json.RawMessage, err error) {
	resp := Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		Payload: result,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	if sendErr := cc.Send(resp); sendErr != nil {
		s.logger.Warn("gateway: dropped RPC response", "conn_id", cc.id, "frame_id", id, "error", sendErr)
	}
}

func (s *Server) publish(ctx context.Context, t domain.EventType, agentID string, payload json.RawMessage) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, domain.Event{
		Type:      t,
		Timestamp: time.Now(),
		AgentID:   agentID,
		Payload:   payload,
	})
}
