// Package admin exposes a read-only HTTP/WebSocket surface for operators:
// chain tip, cached settings and replay-engine progress, plus a live feed
// of applied-transaction events. Nothing here writes state; every write
// path is a verb under pkg/verbs reached only through pkg/dispatcher.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/creditcoin-project/ccprocessor/pkg/settings"
	"github.com/creditcoin-project/ccprocessor/pkg/state"
)

// ReplaySource reports migration-engine progress. Satisfied by
// *replay.Engine; left as an interface so admin never needs to know about
// the layered state replay keeps internally.
type ReplaySource interface {
	Terminated() bool
}

// Server serves the admin HTTP/WS surface.
type Server struct {
	router   *mux.Router
	hub      *Hub
	store    *state.Accessor
	settings *settings.Cache
	replay   ReplaySource
	logger   *zap.SugaredLogger
}

// NewServer wires routes. replay may be nil when the processor started in
// normal (non-replay) mode.
func NewServer(store *state.Accessor, settingsCache *settings.Cache, replay ReplaySource, logger *zap.SugaredLogger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		hub:      NewHub(logger),
		store:    store,
		settings: settingsCache,
		replay:   replay,
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

// Hub returns the event hub so the processor's dispatch loop can Publish
// TxEvents after each applied transaction.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	admin := s.router.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/status", s.handleStatus).Methods("GET")
	admin.HandleFunc("/settings", s.handleSettings).Methods("GET")
	admin.HandleFunc("/replay", s.handleReplay).Methods("GET")
	admin.HandleFunc("/ws", s.hub.serveWS)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start blocks serving addr. CORS is wide open deliberately: this surface
// carries no secrets and accepts no writes.
func (s *Server) Start(addr string) error {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	})
	handler := c.Handler(s.router)
	if s.logger != nil {
		s.logger.Infow("admin_server_starting", "addr", addr)
	}
	return http.ListenAndServe(addr, handler)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tip, err := s.store.Tip()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "tip unavailable", err.Error())
		return
	}
	resp := StatusResponse{Tip: tip}
	if s.replay != nil {
		resp.ReplayActive = !s.replay.Terminated()
	}
	respondJSON(w, resp)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	resp := SettingsResponse{
		GatewaySighash: s.settings.GatewaySighash(),
		GatewayURL:     s.settings.GatewayURL(),
	}
	resp.Update1Block, resp.Update1Set = s.settings.Update1Block()
	resp.V2Block, resp.V2Set = s.settings.V2Block()
	respondJSON(w, resp)
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	if s.replay == nil {
		respondJSON(w, ReplayStatusResponse{Enabled: false})
		return
	}
	respondJSON(w, ReplayStatusResponse{Enabled: true, Terminated: s.replay.Terminated()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}
