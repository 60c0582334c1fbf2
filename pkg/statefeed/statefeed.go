package statefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skidbot-team/skidbot/go-controller/pkg/syncloop"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the feed is bench-local, any origin may watch
	},
}

// Source provides state snapshots for the display layer.
type Source interface {
	State() syncloop.Snapshot
}

// Server exposes the loop's observable state to the display layer: a JSON
// snapshot at /api/state and a periodic push stream at /ws/state.  The
// display layer only ever sees snapshots, never the loop's own state.
type Server struct {
	source   Source
	interval time.Duration
	httpSrv  *http.Server
}

func New(addr string, source Source, interval time.Duration) *Server {
	s := &Server{
		source:   source,
		interval: interval,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/ws/state", s.handleWS)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		fmt.Println("State feed listening on", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Println("State feed server failed:", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.State()); err != nil {
		fmt.Println("State feed encode error:", err)
	}
}

// handleWS upgrades the connection and pushes a snapshot every interval
// until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Println("State feed websocket upgrade error:", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(s.source.State()); err != nil {
			// Client went away, normal end of stream.
			return
		}
	}
}
