// Package realtime serves the REST API and the WebSocket feed of session
// activity.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"code-sandbox/internal/executor"
	"code-sandbox/internal/protocol"
	"code-sandbox/internal/session"
	"code-sandbox/internal/storage"
	"code-sandbox/internal/watcher"

	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// Logger receives connection-level failures.
type Logger interface {
	Printf(format string, args ...any)
}

// ExecutionLog is the queryable execution history. *storage.Storage
// satisfies it.
type ExecutionLog interface {
	ListExecutions(ctx context.Context, sessionID string, limit int) ([]*storage.Execution, error)
	LanguageStats(ctx context.Context) ([]storage.Stats, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// Server manages WebSocket connections and routes messages between
// clients, the executor, and the file watcher.
type Server struct {
	exec      *executor.Executor
	store     *session.Store
	fileWatch *watcher.Watcher
	execLog   ExecutionLog
	staticDir string
	logger    Logger

	clients   map[*client]bool
	clientsMu sync.RWMutex

	// subscriptions tracks the event subscription of each client per session.
	// key: client, value: map[sessionID]subscriptionID
	subscriptions   map[*client]map[string]string
	subscriptionsMu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithExecutionLog enables the execution history and stats endpoints.
func WithExecutionLog(l ExecutionLog) Option {
	return func(s *Server) {
		s.execLog = l
	}
}

// WithStaticDir serves files from dir at the root path.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// WithLogger replaces the standard logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server

	// ctx is canceled when the connection goes away, aborting the
	// executions it started.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// New creates a realtime server. The session store is the executor's.
// fileWatch may be nil.
func New(exec *executor.Executor, fileWatch *watcher.Watcher, opts ...Option) *Server {
	s := &Server{
		exec:          exec,
		store:         exec.Store(),
		fileWatch:     fileWatch,
		logger:        log.Default(),
		clients:       make(map[*client]bool),
		subscriptions: make(map[*client]map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint.
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API endpoints.
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("POST /validate", s.handleValidate)
	mux.HandleFunc("GET /languages", s.handleLanguages)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /sessions/{id}/files", s.handleSessionFiles)
	mux.HandleFunc("GET /sessions/{id}/events", s.handleSessionEvents)
	mux.HandleFunc("GET /sessions/{id}/executions", s.handleSessionExecutions)

	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade error: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		server: s,
		ctx:    ctx,
		cancel: cancel,
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	s.subscriptionsMu.Lock()
	s.subscriptions[c] = make(map[string]string)
	s.subscriptionsMu.Unlock()

	// Send the current session list, then catch up on every live session.
	s.sendSessionList(c)
	s.subscribeClientToActiveSessions(c)

	go c.writePump()
	go c.readPump()
}

// enqueue queues data for the client, dropping it when the buffer is full
// or the client is gone.
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Printf("websocket read error: %v", err)
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	c.cancel()

	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()

	s.subscriptionsMu.Lock()
	subs := s.subscriptions[c]
	delete(s.subscriptions, c)
	s.subscriptionsMu.Unlock()

	for sessionID, subID := range subs {
		s.store.Unsubscribe(sessionID, subID)
	}

	c.close()
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeExecute:
		var p protocol.ExecutePayload
		json.Unmarshal(msg.Payload, &p)
		go s.handleWSExecute(c, p)
	case protocol.TypeValidate:
		var p protocol.ValidatePayload
		json.Unmarshal(msg.Payload, &p)
		go s.handleWSValidate(c, p)
	case protocol.TypeSessionReset:
		var p protocol.SessionResetPayload
		json.Unmarshal(msg.Payload, &p)
		s.handleWSReset(c, p)
	case protocol.TypeFilesRequestTree:
		var p protocol.SessionIDPayload
		json.Unmarshal(msg.Payload, &p)
		s.handleWSFilesTree(c, p)
	}
}

// handleWSExecute runs a submission. Its events reach every subscribed
// client, this one included, through the session's event feed.
func (s *Server) handleWSExecute(c *client, p protocol.ExecutePayload) {
	req := executor.Request{
		SessionID:    p.SessionID,
		Language:     p.Language,
		Code:         p.Code,
		Filename:     p.Filename,
		ResetSession: p.ResetSession,
	}
	if _, err := s.exec.RunStreaming(c.ctx, req, nil); err != nil {
		s.sendError(c, errorCode(err), err.Error())
		return
	}
	s.broadcastSessionUpdate(sessionIDOrDefault(p.SessionID))
}

func (s *Server) handleWSValidate(c *client, p protocol.ValidatePayload) {
	v, err := s.exec.Validate(c.ctx, executor.ValidateRequest{
		SessionID: p.SessionID,
		Language:  p.Language,
		Code:      p.Code,
		Filename:  p.Filename,
		Save:      p.Save,
	})
	if err != nil {
		code := errorCode(err)
		if code == protocol.ErrExecutionFailed {
			code = protocol.ErrValidationFailed
		}
		s.sendError(c, code, err.Error())
		return
	}

	s.sendTo(c, protocol.TypeValidationResult, protocol.ValidationResultPayload{
		Language:  v.Language,
		Valid:     v.Valid,
		Message:   v.Message,
		Line:      v.Line,
		Column:    v.Column,
		Details:   v.Details,
		SavedPath: v.SavedPath,
	})
}

func (s *Server) handleWSReset(c *client, p protocol.SessionResetPayload) {
	if p.SessionID == "" || p.SessionID == protocol.ResetAll {
		s.exec.ResetAll()
		return
	}
	if !s.exec.Reset(p.SessionID) {
		s.sendError(c, protocol.ErrSessionNotFound, "session not found: "+p.SessionID)
	}
}

func (s *Server) handleWSFilesTree(c *client, p protocol.SessionIDPayload) {
	sess, err := s.store.Get(p.SessionID)
	if err != nil {
		s.sendError(c, protocol.ErrSessionNotFound, err.Error())
		return
	}

	s.sendTo(c, protocol.TypeFilesTree, protocol.FilesTreePayload{
		SessionID: p.SessionID,
		Tree:      watcher.BuildFileTree(sess.Dir, watcher.DefaultTreeDepth),
	})
}

// OnSessionCreated starts watching a new session, announces it and
// subscribes every client to its events. Register it as the store's create
// hook.
func (s *Server) OnSessionCreated(sess session.Session) {
	if s.fileWatch != nil {
		if err := s.fileWatch.Watch(sess.ID, sess.Dir); err != nil {
			s.logger.Printf("failed to start file watcher for session %s: %v", sess.ID, err)
		}
	}

	s.broadcastMessage(protocol.TypeSessionUpdate, sessionUpdate(session.Info{
		ID:             sess.ID,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		ExecutionCount: sess.ExecutionCount,
	}))
	s.subscribeAllClients(sess.ID)
}

// OnSessionRemoved stops watching a removed session and announces it.
// Register it as the store's remove hook.
func (s *Server) OnSessionRemoved(sess session.Session) {
	if s.fileWatch != nil {
		s.fileWatch.Unwatch(sess.ID)
	}

	// The store has already closed the subscriber channels.
	s.subscriptionsMu.Lock()
	for _, subs := range s.subscriptions {
		delete(subs, sess.ID)
	}
	s.subscriptionsMu.Unlock()

	s.broadcastMessage(protocol.TypeSessionRemoved, protocol.SessionRemovedPayload{SessionID: sess.ID})
}

// OnFileUpdate is the callback for the file watcher.
func (s *Server) OnFileUpdate(sessionID string, fileCount int) {
	s.broadcastMessage(protocol.TypeFilesUpdate, protocol.FilesUpdatePayload{
		SessionID: sessionID,
		FileCount: fileCount,
	})
}

// sendSessionList sends the current session state to a client.
func (s *Server) sendSessionList(c *client) {
	for _, info := range s.store.List() {
		s.sendTo(c, protocol.TypeSessionUpdate, sessionUpdate(info))
	}
}

// broadcastSessionUpdate sends the current state of one session to all
// connected clients.
func (s *Server) broadcastSessionUpdate(sessionID string) {
	for _, info := range s.store.List() {
		if info.ID == sessionID {
			s.broadcastMessage(protocol.TypeSessionUpdate, sessionUpdate(info))
			return
		}
	}
}

func sessionUpdate(info session.Info) protocol.SessionUpdatePayload {
	return protocol.SessionUpdatePayload{
		ID:             info.ID,
		CreatedAt:      info.CreatedAt.Format(time.RFC3339Nano),
		LastAccessedAt: info.LastAccessedAt.Format(time.RFC3339Nano),
		ExecutionCount: info.ExecutionCount,
	}
}

// broadcastMessage sends a message to all connected clients.
func (s *Server) broadcastMessage(msgType string, payload any) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for c := range s.clients {
		c.enqueue(data) // Full buffers skip.
	}
}

// subscribeAllClients subscribes all connected clients to a session's events.
func (s *Server) subscribeAllClients(sessionID string) {
	s.clientsMu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		s.subscribeClient(c, sessionID)
	}
}

// subscribeClientToActiveSessions subscribes a single client to all live
// sessions, so that a new connection sees the buffered events of sessions
// created before it.
func (s *Server) subscribeClientToActiveSessions(c *client) {
	for _, info := range s.store.List() {
		s.subscribeClient(c, info.ID)
	}
}

// subscribeClient subscribes a single client to a session's events.
func (s *Server) subscribeClient(c *client, sessionID string) {
	s.subscriptionsMu.Lock()
	subs, connected := s.subscriptions[c]
	_, exists := subs[sessionID]
	s.subscriptionsMu.Unlock()
	if !connected || exists {
		return
	}

	subID, ch, backlog, err := s.store.Subscribe(sessionID)
	if err != nil {
		return
	}

	s.subscriptionsMu.Lock()
	subs, connected = s.subscriptions[c]
	if connected {
		subs[sessionID] = subID
	}
	s.subscriptionsMu.Unlock()
	if !connected {
		// Disconnected while subscribing.
		s.store.Unsubscribe(sessionID, subID)
		return
	}

	for _, event := range backlog {
		s.sendEvent(c, event)
	}

	go func() {
		for event := range ch {
			s.sendEvent(c, event)
		}
	}()
}

func (s *Server) sendEvent(c *client, event session.Event) {
	s.sendTo(c, protocol.TypeExecutionEvent, protocol.ExecutionEventPayload{
		SessionID: event.SessionID,
		Event:     event.Event,
	})
}

func (s *Server) sendTo(c *client, msgType string, payload any) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return
	}
	data, _ := json.Marshal(msg)
	c.enqueue(data)
}

func (s *Server) sendError(c *client, code, message string) {
	msg, _ := protocol.NewErrorMessage(code, message)
	data, _ := json.Marshal(msg)
	c.enqueue(data)
}

// Shutdown closes every client connection.
func (s *Server) Shutdown() {
	s.clientsMu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		c.cancel()
		c.conn.Close()
	}
}

// errorCode maps executor errors to protocol error codes.
func errorCode(err error) string {
	switch {
	case executor.IsUnsupported(err):
		return protocol.ErrUnsupportedLanguage
	case errors.Is(err, session.ErrInvalidID):
		return protocol.ErrInvalidSession
	case errors.Is(err, session.ErrNotFound):
		return protocol.ErrSessionNotFound
	default:
		return protocol.ErrExecutionFailed
	}
}

func sessionIDOrDefault(id string) string {
	if id == "" {
		return executor.DefaultSessionID
	}
	return id
}
