// Package bridge owns the WebSocket endpoint that the BetterDiscord companion
// script connects to, sends it search requests and routes its answers to
// the user.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/phobologic/bdcompanion/internal/config"
	"github.com/phobologic/bdcompanion/internal/model"
	"github.com/phobologic/bdcompanion/internal/protocol"
)

var (
	// ErrNotConnected is returned when a command is sent while no client is attached.
	ErrNotConnected = errors.New("betterdiscord is not connected")

	// ErrClosed is returned after the manager has shut down.
	ErrClosed = errors.New("bridge closed")
)

// Messages shown on the status channel.
const (
	msgConnected    = "BetterDiscord connected"
	msgDisconnected = "BetterDiscord disconnected"
	msgNotConnected = "BetterDiscord is not connected"
)

const (
	shutdownTimeout = 5 * time.Second

	// openQueueSize bounds the source documents waiting for the opener.
	openQueueSize = 16
)

// Options configures a ConnectionManager.
type Options struct {
	Addr         string        // listen address, e.g. "127.0.0.1:8080"
	PeerPolicy   string        // config.PeerReplace or config.PeerReject
	WriteTimeout time.Duration // per-frame write deadline; 0 disables it
	Logger       *log.Logger

	Notifier Notifier
	Picker   Picker
	Opener   SourceOpener
}

// OptionsFromConfig builds Options from the bridge section of cfg.
func OptionsFromConfig(cfg config.BridgeConfig) Options {
	return Options{
		Addr:         cfg.Addr(),
		PeerPolicy:   cfg.PeerPolicy,
		WriteTimeout: cfg.WriteTimeout,
	}
}

type openRequest struct {
	source string
	id     string
}

type peer struct {
	id   string
	conn *websocket.Conn
}

// ConnectionManager owns the listening endpoint and tracks at most one
// connected client.
//
// All state changes and presenter calls happen on a single event loop
// goroutine, in the order events arrive. The socket reader and callers of
// SendCommand only post work to that loop, so the peer field needs no lock.
type ConnectionManager struct {
	opts     Options
	logger   *log.Logger
	upgrader websocket.Upgrader

	events chan func()
	peer   *peer // owned by the loop

	// opens feeds the single opener worker, so documents open one at a
	// time in the order their responses arrived.
	opens    chan openRequest
	openDone chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	listener net.Listener
	server   *http.Server
	loopDone chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	started   bool
}

// New returns an idle manager. Call Start to bind the endpoint.
func New(opts Options) *ConnectionManager {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.PeerPolicy == "" {
		opts.PeerPolicy = config.PeerReplace
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		opts:   opts,
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The Discord client connects from its own origin.
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		events:   make(chan func(), 64),
		opens:    make(chan openRequest, openQueueSize),
		openDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
}

// Start binds the listener and begins accepting clients. The manager shuts
// down when ctx is cancelled or Close is called.
func (m *ConnectionManager) Start(ctx context.Context) error {
	err := ErrClosed
	m.startOnce.Do(func() {
		if m.ctx.Err() != nil {
			return
		}
		ln, lerr := net.Listen("tcp", m.opts.Addr)
		if lerr != nil {
			err = fmt.Errorf("listening on %s: %w", m.opts.Addr, lerr)
			return
		}
		m.listener = ln
		m.server = &http.Server{
			Handler:           http.HandlerFunc(m.handleWS),
			ReadHeaderTimeout: 10 * time.Second,
		}
		m.started = true

		go m.loop()
		go m.openLoop()
		go func() {
			if serr := m.server.Serve(ln); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
				m.logger.Error("bridge server stopped", "error", serr)
			}
		}()
		go func() {
			select {
			case <-ctx.Done():
				_ = m.Close()
			case <-m.ctx.Done():
			}
		}()

		m.logger.Info("bridge listening", "address", ln.Addr().String())
		err = nil
	})
	return err
}

// Addr returns the bound listener address, or nil before Start.
func (m *ConnectionManager) Addr() net.Addr {
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// Done is closed once the manager has shut down and dropped its client.
func (m *ConnectionManager) Done() <-chan struct{} {
	return m.loopDone
}

// Close stops the endpoint and drops the connected client. It is safe to
// call more than once and from any goroutine.
func (m *ConnectionManager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.cancel()
		if !m.started {
			close(m.loopDone)
			close(m.openDone)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := m.server.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("shutting down bridge server: %w", serr)
		}
		<-m.loopDone
		<-m.openDone
		m.logger.Info("bridge stopped")
	})
	return err
}

// Connected reports whether a client is currently attached.
func (m *ConnectionManager) Connected(ctx context.Context) bool {
	res := make(chan bool, 1)
	if !m.post(func() { res <- m.peer != nil }) {
		return false
	}
	select {
	case ok := <-res:
		return ok
	case <-ctx.Done():
		return false
	case <-m.ctx.Done():
		return false
	}
}

// Trigger sends the request described by a.
func (m *ConnectionManager) Trigger(ctx context.Context, a model.Action) error {
	return m.SendCommand(ctx, a.Command, a.Query, a.PatternType, a.Options)
}

// SendCommand asks the client to run action for query. When no client is
// connected the error is reported on the status channel and nothing is
// written. Write failures are reported the same way; neither is fatal.
func (m *ConnectionManager) SendCommand(ctx context.Context, action model.Command, query []string, patternType string, opts model.Options) error {
	req := protocol.Request{
		Action:  action,
		Query:   query,
		Type:    patternType,
		Options: opts,
	}
	res := make(chan error, 1)
	if !m.post(func() { res <- m.send(req) }) {
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return ErrClosed
	}
}

// post queues fn for the event loop. It returns false once the manager is
// shutting down.
func (m *ConnectionManager) post(fn func()) bool {
	if m.ctx.Err() != nil {
		return false
	}
	select {
	case m.events <- fn:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *ConnectionManager) loop() {
	defer close(m.loopDone)
	for {
		select {
		case fn := <-m.events:
			fn()
		case <-m.ctx.Done():
			m.dropPeer()
			return
		}
	}
}

func (m *ConnectionManager) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	stop := context.AfterFunc(m.ctx, func() { _ = conn.Close() })
	defer stop()

	p := &peer{id: uuid.NewString(), conn: conn}
	if !m.post(func() { m.onConnect(p) }) {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.logger.Debug("peer read ended", "peer", p.id, "error", err)
			m.post(func() { m.onDisconnect(p) })
			return
		}
		if !m.post(func() { m.onMessage(p, data) }) {
			return
		}
	}
}

func (m *ConnectionManager) onConnect(p *peer) {
	if old := m.peer; old != nil {
		if m.opts.PeerPolicy == config.PeerReject {
			m.logger.Warn("rejecting second BetterDiscord connection", "peer", p.id, "current", old.id)
			m.notifyError("Another BetterDiscord client tried to connect and was rejected")
			m.closePeer(p, websocket.ClosePolicyViolation, "another client is already connected")
			return
		}
		m.logger.Warn("replacing BetterDiscord connection", "peer", p.id, "previous", old.id)
		m.closePeer(old, websocket.CloseNormalClosure, "replaced by a new connection")
	}
	m.peer = p
	m.logger.Info("peer connected", "peer", p.id, "remote", p.conn.RemoteAddr().String())
	m.notifyInfo(msgConnected)
}

func (m *ConnectionManager) onDisconnect(p *peer) {
	if m.peer != p {
		return
	}
	m.peer = nil
	m.logger.Info("peer disconnected", "peer", p.id)
	m.notifyInfo(msgDisconnected)
}

func (m *ConnectionManager) dropPeer() {
	if m.peer == nil {
		return
	}
	m.closePeer(m.peer, websocket.CloseGoingAway, "shutting down")
	m.peer = nil
}

func (m *ConnectionManager) closePeer(p *peer, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = p.conn.Close()
}

func (m *ConnectionManager) send(req protocol.Request) error {
	p := m.peer
	if p == nil {
		m.notifyError(msgNotConnected)
		return ErrNotConnected
	}
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		m.notifyError(fmt.Sprintf("Failed to build %s request: %v", req.Action, err))
		return err
	}
	if m.opts.WriteTimeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout))
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.logger.Error("write to peer failed", "peer", p.id, "action", req.Action, "error", err)
		m.notifyError(fmt.Sprintf("Failed to send %s to BetterDiscord: %v", req.Action, err))
		return fmt.Errorf("writing %s request: %w", req.Action, err)
	}
	m.logger.Debug("request sent", "peer", p.id, "action", req.Action, "query", strings.Join(req.Query, ","))
	return nil
}

func (m *ConnectionManager) onMessage(p *peer, data []byte) {
	if m.peer != p {
		m.logger.Debug("ignoring message from untracked peer", "peer", p.id)
		return
	}
	resp, err := protocol.DecodeResponse(data)
	if errors.Is(err, protocol.ErrUnknownResponse) {
		m.logger.Debug("ignoring response with unknown shape", "peer", p.id, "bytes", len(data))
		return
	}
	if err != nil {
		m.logger.Warn("malformed message from peer", "peer", p.id, "error", err)
		m.notifyError(fmt.Sprintf("Invalid message from BetterDiscord: %v", err))
		return
	}
	m.dispatch(resp)
}

func (m *ConnectionManager) dispatch(resp protocol.Response) {
	switch r := resp.(type) {
	case protocol.MultipleResponse:
		m.pickModule(r.Modules)
	case protocol.SourceResponse:
		m.openSource(r.Source, string(r.ID))
	case protocol.StatusResponse:
		if r.Error {
			m.notifyError(r.Message)
		} else {
			m.notifyInfo(r.Message)
		}
	}
}

// pickModule shows the candidates without blocking the loop; the choice
// comes back as a new event.
func (m *ConnectionManager) pickModule(modules []protocol.Module) {
	if m.opts.Picker == nil {
		m.logger.Warn("no picker configured, dropping module list", "modules", len(modules))
		m.notifyError(fmt.Sprintf("Received %d candidate modules but no menu is available", len(modules)))
		return
	}
	items := make([]PickItem, len(modules))
	for i, mod := range modules {
		items[i] = PickItem{Label: string(mod.ID), Detail: "exports: " + exportList(mod.Exports)}
	}
	go func() {
		idx, ok, err := m.opts.Picker.Pick(m.ctx, items)
		m.post(func() {
			switch {
			case err != nil:
				m.logger.Warn("module selection failed", "error", err)
				m.notifyError(fmt.Sprintf("Module selection failed: %v", err))
			case !ok:
			case idx < 0 || idx >= len(modules):
				m.logger.Warn("picker returned out-of-range index", "index", idx, "modules", len(modules))
			default:
				m.openSource(modules[idx].Source, string(modules[idx].ID))
			}
		})
	}()
}

func exportList(exports []string) string {
	if len(exports) == 0 {
		return "none"
	}
	return strings.Join(exports, ", ")
}

func (m *ConnectionManager) openSource(source, id string) {
	if m.opts.Opener == nil {
		m.logger.Warn("no source opener configured", "id", id)
		return
	}
	select {
	case m.opens <- openRequest{source: source, id: id}:
	default:
		m.logger.Warn("opener queue full, dropping module source", "id", id)
		m.notifyError(fmt.Sprintf("Too many module sources waiting to open; dropped %s", id))
	}
}

// openLoop runs the opener off the event loop, one document at a time.
func (m *ConnectionManager) openLoop() {
	defer close(m.openDone)
	for {
		select {
		case req := <-m.opens:
			if err := m.opts.Opener.OpenSource(m.ctx, req.source, req.id); err != nil {
				m.logger.Error("opening module source failed", "id", req.id, "error", err)
				m.post(func() { m.notifyError(fmt.Sprintf("Failed to open module source: %v", err)) })
			}
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *ConnectionManager) notifyInfo(msg string) {
	if m.opts.Notifier != nil {
		m.opts.Notifier.Info(msg)
	}
}

func (m *ConnectionManager) notifyError(msg string) {
	if m.opts.Notifier != nil {
		m.opts.Notifier.Error(msg)
	}
}
