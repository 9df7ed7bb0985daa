package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/chat-relay/backend/internal/chat"
	"github.com/chat-relay/backend/internal/stats"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	maxFrameBytes   = 16 * 1024
	shutdownTimeout = 5 * time.Second
)

// Server exposes the chat hub over HTTP: the /ws upgrade endpoint plus
// small ops surfaces for participants, counters and process health.
type Server struct {
	hub        *chat.Hub
	tracker    *stats.Tracker
	pingPeriod time.Duration
	startedAt  time.Time
}

// NewServer wires the transport around a hub. pingPeriod enables
// keepalive pings (and the matching read deadline); zero disables
// both, leaving liveness entirely to the inactivity monitor.
func NewServer(hub *chat.Hub, tracker *stats.Tracker, pingPeriod time.Duration) *Server {
	return &Server{
		hub:        hub,
		tracker:    tracker,
		pingPeriod: pingPeriod,
		startedAt:  time.Now(),
	}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/users", s.handleUsers)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/health", s.handleHealth)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	client := newClient(conn, s.pingPeriod)
	sess := s.hub.Connect(client)
	if sess == nil {
		// Shutting down; Connect already closed the client.
		return
	}
	log.Printf("connection %s opened from %s", sess.ID(), r.RemoteAddr)

	go s.readLoop(conn, sess)
}

// readLoop is the per-connection execution context: it decodes inbound
// frames and drives the session through the hub. A panic while
// handling a frame terminates only this session.
func (s *Server) readLoop(conn *websocket.Conn, sess *chat.Session) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic on connection %s: %v\n%s", sess.ID(), r, debug.Stack())
			s.hub.Terminate(sess, chat.Cause{Kind: chat.CauseClientDisconnect, Reason: "transport error"})
		}
	}()

	conn.SetReadLimit(maxFrameBytes)
	if s.pingPeriod > 0 {
		pongWait := 2 * s.pingPeriod
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.hub.Disconnect(sess, closeReason(err))
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case inboundNewUser:
			name, ok := stringPayload(frame.Payload)
			if !ok {
				continue
			}
			_ = s.hub.ClaimName(sess, name)
		case inboundMessage:
			text, ok := stringPayload(frame.Payload)
			if !ok {
				continue
			}
			s.hub.Message(sess, text)
		}
	}
}

// stringPayload decodes the payload as a JSON string. Anything else is
// malformed input, which the protocol drops silently.
func stringPayload(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// closeReason maps a read error to the raw disconnect reason fed to
// the classifier.
func closeReason(err error) string {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "ping timeout"
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return "client namespace disconnect"
		default:
			return "transport close"
		}
	}
	return "transport error"
}

func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request) {
	sessions := s.hub.Registry().Snapshot()
	users := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		users = append(users, sess.Name())
	}
	sort.Strings(users)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"users": users})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.tracker == nil {
		http.Error(w, "stats not available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.tracker.Snapshot())
}

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
	Users         int     `json:"users"`
	RSSBytes      uint64  `json:"rssBytes,omitempty"`
	CPUPercent    float64 `json:"cpuPercent,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Users:         s.hub.Registry().Len(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			resp.RSSBytes = mem.RSS
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			resp.CPUPercent = cpu
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// checkOrigin accepts same-host and localhost origins, plus requests
// without an Origin header (non-browser clients).
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == r.Host {
		return true
	}
	for _, local := range []string{"localhost", "127.0.0.1", "[::1]"} {
		if host == local || strings.HasPrefix(host, local+":") {
			return true
		}
	}
	return false
}

// Run serves HTTP until ctx is cancelled, then stops the listener and
// sweeps every session through the hub's shutdown path. Bind failures
// surface as the returned error.
func (s *Server) Run(ctx context.Context, host string, port int) error {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{Addr: addr, Handler: mux}

	serveErr := make(chan error, 1)
	log.Printf("Server listening at port: %d", port)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		// Stop accepting new connections before the sweep so it
		// cannot race with fresh joins.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		s.hub.Shutdown()
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
}
