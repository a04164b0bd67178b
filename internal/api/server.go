package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"whiteboard/internal/activity"
	"whiteboard/internal/lobby"
	"whiteboard/internal/token"
	"whiteboard/pkg/types"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// ConnectionStats is the part of the socket registry the health check reads
type ConnectionStats interface {
	GetStats() map[string]int
}

// Server is the HTTP surface: lobby listing, creation, token issuance,
// activity, health, and the socket endpoint mount point
// ARCHITECTURAL DISCOVERY: No lobby logic lives here. Handlers decode, call
// the registry or token service, and map sentinel errors to {error} bodies.
type Server struct {
	lobbies     *lobby.Registry
	tokens      *token.Service
	recorder    *activity.Recorder
	connections ConnectionStats
	router      *mux.Router
	started     time.Time
}

// NewServer wires the routes. socket serves /ws/{lobby_name}; staticDir, when
// non-empty, is served under /static/.
func NewServer(lobbies *lobby.Registry, tokens *token.Service, connections ConnectionStats, socket http.Handler, staticDir string) *Server {
	s := &Server{
		lobbies:     lobbies,
		tokens:      tokens,
		recorder:    lobbies.Recorder(),
		connections: connections,
		router:      mux.NewRouter(),
		started:     time.Now(),
	}

	s.setupRoutes(socket, staticDir)
	return s
}

func (s *Server) setupRoutes(socket http.Handler, staticDir string) {
	s.router.Handle("/lobbies", s.api(s.listLobbies)).Methods(http.MethodGet, http.MethodOptions)
	s.router.Handle("/lobbies/{name}", s.api(s.getLobby)).Methods(http.MethodGet, http.MethodOptions)
	s.router.Handle("/lobbies/{name}/activity", s.api(s.lobbyActivity)).Methods(http.MethodGet, http.MethodOptions)
	s.router.Handle("/create_lobby", s.api(s.createLobby)).Methods(http.MethodPost, http.MethodOptions)
	s.router.Handle("/get_lobby_token", s.api(s.getLobbyToken)).Methods(http.MethodPost, http.MethodOptions)
	s.router.Handle("/health", s.api(s.healthCheck)).Methods(http.MethodGet, http.MethodOptions)

	// socket upgrades must not pick up the JSON content type
	if socket != nil {
		s.router.Handle("/ws/{lobby_name}", socket).Methods(http.MethodGet)
	}

	if staticDir != "" {
		s.router.PathPrefix("/static/").Handler(
			s.corsMiddleware(http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir)))),
		)
	}
}

func (s *Server) api(fn http.HandlerFunc) http.Handler {
	return s.corsMiddleware(s.jsonMiddleware(fn))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type CreateLobbyRequest struct {
	Name     string         `json:"name"`
	Username string         `json:"username"`
	Password string         `json:"password"`
	MaxUsers types.Capacity `json:"max_users"`
}

type CreateLobbyResponse struct {
	Message   string `json:"message"`
	LobbyName string `json:"lobby_name"`
}

type TokenRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type LobbyDetailResponse struct {
	types.LobbySummary
	Users   []string `json:"users"`
	Members []string `json:"members"`
}

type ActivityResponse struct {
	Lobby  string              `json:"lobby"`
	Events []*types.LobbyEvent `json:"events"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Uptime      string         `json:"uptime"`
	Journal     string         `json:"journal"`
	Lobbies     map[string]int `json:"lobbies"`
	Connections map[string]int `json:"connections"`
	Tokens      int            `json:"outstanding_tokens"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// GET /lobbies
func (s *Server) listLobbies(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.lobbies.List())
}

// GET /lobbies/{name}
func (s *Server) getLobby(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lobbies.Get(mux.Vars(r)["name"])
	if !ok {
		s.sendDomainError(w, lobby.ErrLobbyNotFound)
		return
	}
	s.sendJSON(w, http.StatusOK, LobbyDetailResponse{
		LobbySummary: l.Summary(),
		Users:        l.Usernames(),
		Members:      l.Members(),
	})
}

// POST /create_lobby
func (s *Server) createLobby(w http.ResponseWriter, r *http.Request) {
	var req CreateLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	name, err := s.lobbies.Create(req.Name, req.Username, req.Password, int(req.MaxUsers))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, CreateLobbyResponse{Message: "Lobby created", LobbyName: name})
}

// POST /get_lobby_token
func (s *Server) getLobbyToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	tok, err := s.tokens.Issue(r.Context(), req.Name, req.Username, req.Password)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, TokenResponse{Token: tok})
}

// GET /lobbies/{name}/activity?limit=N
func (s *Server) lobbyActivity(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if n > maxActivityLimit {
			n = maxActivityLimit
		}
		limit = n
	}

	events, err := s.recorder.Activity(r.Context(), name, limit)
	if err != nil {
		log.Printf("Failed to read activity for lobby %s: %v", name, err)
		s.sendError(w, "Failed to read activity", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusOK, ActivityResponse{Lobby: name, Events: events})
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	journalStatus, err := s.recorder.HealthCheck(ctx)
	if err != nil {
		status = "unhealthy"
		log.Printf("Journal health check failed: %v", err)
	}

	connections := map[string]int{}
	if s.connections != nil {
		connections = s.connections.GetStats()
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Journal:     journalStatus,
		Lobbies:     s.lobbies.GetStats(),
		Connections: connections,
		Tokens:      s.tokens.Outstanding(),
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, response)
}

// domainErrors are reported to the client verbatim with a 200 status
var domainErrors = []error{
	lobby.ErrDuplicateLobby,
	lobby.ErrDuplicateUsername,
	lobby.ErrLobbyNotFound,
	lobby.ErrLobbyFull,
	lobby.ErrUsernameTaken,
	lobby.ErrPasswordRequired,
	lobby.ErrPasswordMismatch,
	types.ErrInvalidLobbyName,
	types.ErrInvalidUsername,
	types.ErrInvalidCapacity,
}

// sendDomainError renders lobby and validation failures as {error} bodies.
// Anything else is an internal failure and is not echoed.
func (s *Server) sendDomainError(w http.ResponseWriter, err error) {
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			s.sendJSON(w, http.StatusOK, ErrorResponse{Error: known.Error()})
			return
		}
	}
	log.Printf("Request failed: %v", err)
	s.sendError(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{Error: message})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// corsMiddleware allows any origin, matching the browser client's hosting
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
