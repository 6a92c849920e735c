// Package gateway is the operator-facing HTTP/WebSocket surface. It reads the
// mission state store and forwards operator intents; it holds no mission
// state of its own.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/solarnav/groundlink/internal/commands"
	"github.com/solarnav/groundlink/internal/missionstate"
	"github.com/solarnav/groundlink/internal/planner"
)

// Link is the transport session as seen from the gateway.
type Link interface {
	Publish(topic string, payload []byte) error
	Connected() bool
	LastError() error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Operator UI is served from the same host; tighten if that changes.
		return true
	},
}

type Server struct {
	log   *logrus.Logger
	store *missionstate.Store
	link  Link
	hub   *hub
	mux   *http.ServeMux
}

func New(store *missionstate.Store, link Link, log *logrus.Logger) *Server {
	s := &Server{
		log:   log,
		store: store,
		link:  link,
		hub:   newHub(log),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/waypoints", s.handleWaypoints)
	mux.HandleFunc("/api/waypoints.csv", s.handleExportCSV)
	mux.HandleFunc("/api/mission", s.handleSendMission)
	mux.HandleFunc("/ws", s.handleWS)
	s.mux = mux

	return s
}

// Handler exposes the route table.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, pushing a snapshot to all websocket
// clients on every state change.
func (s *Server) Run(ctx context.Context, wg *sync.WaitGroup, listen string) {
	srv := &http.Server{Addr: listen, Handler: s.mux}

	wg.Add(3)
	go func() {
		defer wg.Done()
		s.hub.run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.watchState(ctx)
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.WithField("listen", listen).Info("operator gateway up")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.WithError(err).Error("gateway stopped")
	}
}

func (s *Server) watchState(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.store.Changed():
			select {
			case s.hub.broadcast <- s.stateJSON():
			case <-ctx.Done():
				return
			}
		}
	}
}

type chartSeries struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

type stateResponse struct {
	missionstate.Snapshot
	Chart chartSeries `json:"chart"`
}

func (s *Server) stateJSON() []byte {
	snap := s.store.Snapshot()
	chart := chartSeries{
		Labels: make([]string, 0, len(snap.Samples)),
		Values: make([]float64, 0, len(snap.Samples)),
	}
	for _, sample := range snap.Samples {
		chart.Labels = append(chart.Labels, sample.Label)
		chart.Values = append(chart.Values, sample.Value)
	}
	b, _ := json.Marshal(stateResponse{Snapshot: snap, Chart: chart})
	return b
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(s.stateJSON())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	health := struct {
		Connected      bool   `json:"connected"`
		TransportError string `json:"transportError,omitempty"`
		StateError     string `json:"stateError,omitempty"`
	}{Connected: s.link.Connected()}
	if err := s.link.LastError(); err != nil {
		health.TransportError = err.Error()
	}
	if err := s.store.LastError(); err != nil {
		health.StateError = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

func (s *Server) handleWaypoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Lat == nil || body.Lng == nil {
		http.Error(w, "expected {\"lat\": number, \"lng\": number}", http.StatusBadRequest)
		return
	}

	wp := planner.HandleMapClick(s.store, s.log, *body.Lat, *body.Lng)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(wp)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.store.Snapshot()
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+planner.CSVFilename)
	w.Write([]byte(planner.ToCSV(snap.Waypoints)))
}

func (s *Server) handleSendMission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	commandID, err := commands.SendMission(s.link, s.store, s.log)
	if err != nil {
		s.log.WithError(err).Warn("mission dispatch failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "sent", "commandId": commandID})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	client := &wsClient{hub: s.hub, conn: conn, send: make(chan []byte, 8)}
	if !s.hub.add(client) {
		conn.Close()
		return
	}

	// Seed the new client with the current snapshot.
	client.send <- s.stateJSON()

	go client.writePump()
	go client.readPump()
}
