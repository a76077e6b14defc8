package viewer

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Server exposes the archive index and live feed over HTTP:
//
//	GET /games            - list archived games
//	GET /games/turns?id=X - per-turn frames of one game
//	GET /live             - websocket feed of in-progress games
type Server struct {
	db  *DB
	hub *LiveHub
	mux *http.ServeMux
}

func NewServer(archiveDir string, hub *LiveHub) *Server {
	s := &Server{
		db:  OpenDB(archiveDir, 30*time.Second),
		hub: hub,
		mux: http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /games", s.handleGames)
	s.mux.HandleFunc("GET /games/turns", s.handleTurns)
	if hub != nil {
		s.mux.Handle("GET /live", hub)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe blocks serving the viewer on addr.
func (s *Server) ListenAndServe(addr string) error {
	log.Info().Str("addr", addr).Msg("viewer listening")
	return http.ListenAndServe(addr, s)
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.db.Games(r.Context(), 200)
	if err != nil {
		log.Error().Err(err).Msg("list games")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, games)
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("id")
	if gameID == "" {
		http.Error(w, "missing id parameter", http.StatusBadRequest)
		return
	}

	turns, err := s.db.Turns(r.Context(), gameID)
	if err != nil {
		log.Error().Err(err).Str("game", gameID).Msg("list turns")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, turns)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}
