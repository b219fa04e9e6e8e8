// Package websocket streams backfill job progress to connected clients.
package websocket

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server represents the WebSocket server
type Server struct {
	server *http.Server
	hub    *Hub
	logger zerolog.Logger
}

// NewServer creates a new WebSocket server on port.
func NewServer(port string, logger zerolog.Logger) *Server {
	s := &Server{
		hub:    NewHub(logger),
		logger: logger.With().Str("component", "ws-server").Logger(),
	}
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: s.Routes(),
	}
	return s
}

// Hub returns the server's hub, which implements backfill.Broadcaster.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Routes returns the websocket HTTP routes.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/backfill", s.handleBackfill)
	mux.HandleFunc("/ws/health", s.handleHealth)
	return mux
}

// Start runs the hub and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	s.logger.Info().Str("addr", s.server.Addr).Msg("websocket server listening")
	return s.server.ListenAndServe()
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if !s.hub.add(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "healthy", "clients": %d}`, s.hub.ClientCount())
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
