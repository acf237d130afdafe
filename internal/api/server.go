package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"auroraexhibit/internal/gallery"
	"auroraexhibit/internal/storage"
)

// SessionHeader carries the session id in both directions
const SessionHeader = "X-Session-ID"

// Server represents the HTTP API server
// Provides the gallery endpoints, Prometheus metrics and health checks
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	gallery    *gallery.Service
	repository storage.Repository // nil when the indexer is disabled
	port       int
}

// NewServer creates a new API server instance
func NewServer(port int, svc *gallery.Service, repository storage.Repository) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf(":%d", port),
			Handler:     mux,
			ReadTimeout: 15 * time.Second,
			// mutations wait for confirmation
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		mux:        mux,
		gallery:    svc,
		repository: repository,
		port:       port,
	}

	// Register all HTTP routes
	s.registerRoutes()

	return s
}

// Handler exposes the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.mux
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.handleMetrics())

	// Network endpoints
	s.mux.HandleFunc("/network", s.handleNetwork)
	s.mux.HandleFunc("/network/", s.handleNetworkRoutes)

	// Gallery endpoints
	s.mux.HandleFunc("/pieces", s.handlePieces)
	s.mux.HandleFunc("/pieces/", s.handlePieceRoutes)
	s.mux.HandleFunc("/draft", s.handleDraft)
	s.mux.HandleFunc("/draft/example", s.handleDraftExample)
	s.mux.HandleFunc("/session", s.handleEndSession)

	// Indexed activity
	s.mux.HandleFunc("/activity", s.handleActivity)
}

// handleNetwork returns the network status (without trailing slash)
func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.gallery.Network())
}

// handleNetworkRoutes routes network actions (with trailing slash)
func (s *Server) handleNetworkRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch strings.TrimPrefix(r.URL.Path, "/network/") {
	case "switch":
		s.handleSwitchNetwork(w, r)
	case "connect":
		s.handleConnect(w, r)
	case "detect":
		s.handleDetect(w, r)
	default:
		s.sendError(w, "Endpoint not found", http.StatusNotFound)
	}
}

// handlePieces routes the gallery listing and minting (without trailing slash)
func (s *Server) handlePieces(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListPieces(w, r)
	case http.MethodPost:
		s.handleMint(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePieceRoutes routes piece sub-endpoints (with trailing slash)
func (s *Server) handlePieceRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/pieces/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	pieceID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		s.sendError(w, "Invalid piece id", http.StatusBadRequest)
		return
	}

	// GET /pieces/{id}
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleGetPiece(w, r, pieceID)
		return
	}

	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch {
	// POST /pieces/{id}/applaud
	case len(parts) == 2 && parts[1] == "applaud":
		s.handleApplaud(w, r, pieceID)
	// POST /pieces/{id}/endorse
	case len(parts) == 2 && parts[1] == "endorse":
		s.handleEndorse(w, r, pieceID)
	// POST /pieces/{id}/decrypt
	case len(parts) == 2 && parts[1] == "decrypt":
		s.handleDecryptLikes(w, r, pieceID)
	// POST /pieces/{id}/tally/{category}/decrypt
	case len(parts) == 4 && parts[1] == "tally" && parts[3] == "decrypt":
		s.handleDecryptTally(w, r, pieceID, parts[2])
	default:
		s.sendError(w, "Endpoint not found", http.StatusNotFound)
	}
}

// Start starts the HTTP server in a goroutine
// Returns immediately after starting the server
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/network", "/pieces", "/activity"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
