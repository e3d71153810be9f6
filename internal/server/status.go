package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/ownership"
	"github.com/zeusync/worldsync/internal/core/protocol/packet"
	"github.com/zeusync/worldsync/internal/core/transport"
)

// Status is a point-in-time view of the authority, refreshed every sweep.
type Status struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	Level      string          `json:"level"`
	Mode       string          `json:"mode"`
	MaxPlayers int             `json:"max_players"`
	Players    []PlayerStatus  `json:"players"`
	Items      int             `json:"items"`
	Creatures  int             `json:"creatures"`
	Traffic    transport.Stats `json:"traffic"`
	Interval   transport.Stats `json:"interval_traffic"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PlayerStatus describes one client in the status feed.
type PlayerStatus struct {
	ID             int64     `json:"id"`
	Session        string    `json:"session"`
	Name           string    `json:"name"`
	Greeted        bool      `json:"greeted"`
	Associated     bool      `json:"associated"`
	ItemsOwned     int       `json:"items_owned"`
	CreaturesOwned int       `json:"creatures_owned"`
	Health         float32   `json:"health"`
	ConnectedAt    time.Time `json:"connected_at"`
	IdleSeconds    float64   `json:"idle_seconds"`
}

// Status returns the latest snapshot. Safe to call from any goroutine.
func (a *Authority) Status() *Status {
	return a.snapshot.Load()
}

// publishStatus runs on the event loop.
func (a *Authority) publishStatus(now time.Time) {
	st := a.router.status(now)

	var interval transport.Stats
	for _, c := range a.router.Clients() {
		if peer, ok := c.Peer.(*linkPeer); ok {
			interval = interval.Add(peer.traffic())
		}
	}
	if a.packets != nil {
		interval = interval.Add(a.packets.Counters().Take())
	}
	a.traffic = a.traffic.Add(interval)

	st.Interval = interval
	st.Traffic = a.traffic
	a.snapshot.Store(st)
}

func (r *Router) status(now time.Time) *Status {
	st := &Status{
		Name:       r.cfg.Name,
		Version:    packet.Version,
		Level:      r.level,
		Mode:       r.mode,
		MaxPlayers: r.cfg.MaxClients,
		Players:    []PlayerStatus{},
		Items:      r.items.Len(),
		Creatures:  r.creatures.Len(),
		UpdatedAt:  now,
	}
	items := holdings(r.itemOwners)
	creatures := holdings(r.creatureOwners)
	for _, c := range r.Clients() {
		ps := PlayerStatus{
			ID:             c.ID,
			Session:        c.Session.String(),
			Name:           c.Name,
			Greeted:        c.Greeted,
			ItemsOwned:     items[c.ID],
			CreaturesOwned: creatures[c.ID],
			ConnectedAt:    c.ConnectedAt,
			IdleSeconds:    now.Sub(c.LastActivity).Seconds(),
		}
		if peer, ok := c.Peer.(*linkPeer); ok {
			ps.Associated = peer.associated()
		}
		if c.Player != nil {
			ps.Health = c.Player.Health
		}
		st.Players = append(st.Players, ps)
	}
	return st
}

// holdings counts the entities each client holds.
func holdings(reg *ownership.Registry) map[int64]int {
	out := make(map[int64]int)
	for _, holder := range reg.Snapshot() {
		out[holder]++
	}
	return out
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// StatusServer serves the status snapshot as JSON on /status and pushes it
// to websocket subscribers on /status/ws.
type StatusServer struct {
	listener net.Listener
	server   *http.Server
	source   func() *Status
	interval time.Duration
	logger   log.Log

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewStatusServer binds addr immediately so the caller learns about port
// conflicts before the authority starts.
func NewStatusServer(addr string, source func() *Status, interval time.Duration, logger log.Log) (*StatusServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &StatusServer{
		listener: ln,
		source:   source,
		interval: interval,
		logger:   logger.With(log.String("component", "status")),
		clients:  make(map[*websocket.Conn]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status/ws", s.handleWebSocket)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s, nil
}

// Addr is the bound HTTP address.
func (s *StatusServer) Addr() net.Addr { return s.listener.Addr() }

// Serve runs until ctx is done.
func (s *StatusServer) Serve(ctx context.Context) error {
	go s.push(ctx)

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Status server failed", log.Error(err))
		return err
	}
	return nil
}

// Close drops feed subscribers and stops the HTTP server.
func (s *StatusServer) Close() error {
	s.mu.Lock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	clear(s.clients)
	s.mu.Unlock()
	return s.server.Close()
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source()); err != nil {
		s.logger.Debug("Status write failed", log.Error(err))
	}
}

func (s *StatusServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", log.Error(err))
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("Status subscriber connected", log.String("remote_addr", conn.RemoteAddr().String()))

	s.mu.Lock()
	err = conn.WriteJSON(s.source())
	s.mu.Unlock()
	if err != nil {
		s.drop(conn)
		return
	}

	// Subscribers never send; reading keeps control frames flowing and
	// notices the close.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			s.drop(conn)
			return
		}
	}
}

func (s *StatusServer) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *StatusServer) push(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status := s.source()
		s.mu.Lock()
		for conn := range s.clients {
			_ = conn.SetWriteDeadline(time.Now().Add(s.interval))
			if err := conn.WriteJSON(status); err != nil {
				delete(s.clients, conn)
				_ = conn.Close()
			}
		}
		s.mu.Unlock()
	}
}
