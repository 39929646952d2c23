// Package cdp implements a Chrome DevTools Protocol session: a websocket
// multiplexer that correlates JSON-RPC-style command/response pairs by id
// while dispatching unsolicited events to registered handlers, plus a
// Command Facade of typed helpers over the Page, DOM, Input, Runtime, and
// Target domains.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"frago/internal/config"
	ferrors "frago/internal/errors"
	"frago/internal/logging"
	"frago/internal/metrics"
)

// Session manages one websocket connection to a Chrome DevTools target and
// the in-flight request/response bookkeeping needed to drive it.
type Session struct {
	cfg config.CDPConfig

	mu       sync.Mutex
	conn     *websocket.Conn
	nextID   int64
	pending  map[int64]chan response
	handlers map[string]EventHandler
	closed   chan struct{}
	readDone chan struct{}
}

// NewSession creates a Session against cfg without connecting yet.
func NewSession(cfg config.CDPConfig) *Session {
	return &Session{
		cfg:      cfg,
		pending:  make(map[int64]chan response),
		handlers: make(map[string]EventHandler),
	}
}

// Connect discovers the target's websocket debugger URL (preferring the
// first open page, or cfg.TargetID when pinned) and dials it, then starts
// the background frame reader.
func (s *Session) Connect(ctx context.Context) error {
	wsURL, err := s.discoverWebSocketURL(ctx)
	if err != nil {
		return ferrors.E(ferrors.KindConnection, "cdp.Connect", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.timeout()}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return ferrors.E(ferrors.KindConnection, "cdp.Connect", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.closed = make(chan struct{})
	s.readDone = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop()
	logging.CDPLogger.Info("connected to %s", wsURL)
	return nil
}

func (s *Session) timeout() time.Duration {
	if s.cfg.ConnectTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.cfg.ConnectTimeoutSeconds * float64(time.Second))
}

func (s *Session) commandTimeout() time.Duration {
	if s.cfg.CommandTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.cfg.CommandTimeoutSeconds * float64(time.Second))
}

// discoverWebSocketURL queries /json/list for the pinned target (or the
// first "page" target), falling back to the static browser endpoint.
func (s *Session) discoverWebSocketURL(ctx context.Context) (string, error) {
	type target struct {
		ID                   string `json:"id"`
		Type                 string `json:"type"`
		Title                string `json:"title"`
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.HTTPURL()+"/json/list", nil)
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: s.timeout()}
	if s.cfg.ProxyHost != "" && s.cfg.ProxyPort != 0 && !s.cfg.NoProxy {
		proxyURL := &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", s.cfg.ProxyHost, s.cfg.ProxyPort)}
		if s.cfg.ProxyUsername != "" {
			proxyURL.User = url.UserPassword(s.cfg.ProxyUsername, s.cfg.ProxyPassword)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return s.cfg.WebSocketURL(), nil
	}
	defer resp.Body.Close()

	var targets []target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return s.cfg.WebSocketURL(), nil
	}

	if s.cfg.TargetID != "" {
		for _, t := range targets {
			if t.ID == s.cfg.TargetID {
				if t.WebSocketDebuggerURL == "" {
					return "", fmt.Errorf("target %s has no websocket URL", s.cfg.TargetID)
				}
				return t.WebSocketDebuggerURL, nil
			}
		}
		return "", fmt.Errorf("target not found: %s", s.cfg.TargetID)
	}

	for _, t := range targets {
		if t.Type == "page" && t.WebSocketDebuggerURL != "" {
			return t.WebSocketDebuggerURL, nil
		}
	}
	return s.cfg.WebSocketURL(), nil
}

// Disconnect stops the reader and closes the websocket. Safe to call more
// than once.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	conn := s.conn
	closed := s.closed
	readDone := s.readDone
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	select {
	case <-closed:
	default:
		close(closed)
	}
	err := conn.Close()
	if readDone != nil {
		<-readDone
	}
	return err
}

// Connected reports whether the websocket is currently open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// readLoop is the sole reader of the websocket connection; it demultiplexes
// frames into either a waiting command's response channel or an event
// handler dispatch.
func (s *Session) readLoop() {
	defer close(s.readDone)
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			logging.CDPLogger.Warn("read loop ended: %v", err)
			s.failAllPending(err)
			return
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			logging.CDPLogger.Error("malformed CDP frame: %v", err)
			continue
		}

		if resp.ID != 0 {
			s.mu.Lock()
			ch, ok := s.pending[resp.ID]
			s.mu.Unlock()
			if ok {
				ch <- resp
			}
			continue
		}

		if resp.Method != "" {
			s.dispatchEvent(resp)
		}
	}
}

func (s *Session) dispatchEvent(resp response) {
	s.mu.Lock()
	handler, ok := s.handlers[resp.Method]
	s.mu.Unlock()
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.CDPLogger.Error("event handler for %s panicked: %v", resp.Method, r)
		}
	}()
	handler(resp.Params)
}

func (s *Session) failAllPending(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.pending {
		ch <- response{ID: id, Error: &cdpError{Message: cause.Error()}}
	}
}

// OnEvent registers handler to be called whenever a CDP event named
// eventName arrives. Registering again for the same name replaces the
// previous handler.
func (s *Session) OnEvent(eventName string, handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[eventName] = handler
}

// Send issues a CDP command and blocks until its response, the command
// timeout, or ctx expires.
func (s *Session) Send(ctx context.Context, method string, params map[string]any) (Result, error) {
	start := time.Now()
	var outcome = "success"
	defer func() {
		metrics.ObserveCDPCommand(method, outcome, time.Since(start).Seconds())
	}()

	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		outcome = "connection_error"
		return nil, ferrors.E(ferrors.KindConnection, "cdp.Send", fmt.Errorf("not connected"))
	}
	s.nextID++
	id := s.nextID
	ch := make(chan response, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	frame, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		outcome = "encode_error"
		return nil, ferrors.E(ferrors.KindCDPError, "cdp.Send", err)
	}

	s.mu.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, frame)
	s.mu.Unlock()
	if writeErr != nil {
		outcome = "connection_error"
		return nil, ferrors.E(ferrors.KindConnection, "cdp.Send", writeErr)
	}
	logging.CDPLogger.Debug("sent %s (id=%d)", method, id)

	timer := time.NewTimer(s.commandTimeout())
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			outcome = "cdp_error"
			return nil, ferrors.E(ferrors.KindCDPError, "cdp."+method, fmt.Errorf("%s (code %d)", resp.Error.Message, resp.Error.Code))
		}
		return resp.Result, nil
	case <-timer.C:
		outcome = "timeout"
		return nil, ferrors.E(ferrors.KindTimeout, "cdp."+method, fmt.Errorf("command timeout after %s", s.commandTimeout()))
	case <-ctx.Done():
		outcome = "timeout"
		return nil, ferrors.E(ferrors.KindTimeout, "cdp."+method, ctx.Err())
	}
}

// HealthCheck verifies the connection is responsive by round-tripping a
// trivial Runtime.evaluate.
func (s *Session) HealthCheck(ctx context.Context) bool {
	if !s.Connected() {
		return false
	}
	_, err := s.Send(ctx, "Runtime.evaluate", map[string]any{
		"expression":    "1",
		"returnByValue": true,
	})
	return err == nil
}
