package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/gallery"
	"auroraexhibit/internal/models"
	"auroraexhibit/internal/provider"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := map[string]interface{}{
		"service":     "AuroraExhibit",
		"version":     "1.0.0",
		"description": "Gallery client for confidential applause and endorsements",
		"endpoints": map[string]string{
			"GET /":                                     "This page - Service information",
			"GET /health":                               "Health check endpoint",
			"GET /metrics":                              "Prometheus metrics for monitoring",
			"GET /network":                              "Provider, chain and FHE status",
			"POST /network/switch":                      "Switch the wallet to {\"chainId\": n}",
			"POST /network/connect":                     "Request wallet accounts",
			"POST /network/detect":                      "Detect the wallet provider again",
			"GET /pieces":                               "Refresh and list the gallery",
			"POST /pieces":                              "Mint a piece from the form ({\"demo\": true} mints the example)",
			"GET /pieces/{id}":                          "Get one piece",
			"POST /pieces/{id}/applaud":                 "Applaud a piece",
			"POST /pieces/{id}/endorse":                 "Endorse a piece for {\"category\": id}",
			"POST /pieces/{id}/decrypt":                 "Decrypt the like count",
			"POST /pieces/{id}/tally/{category}/decrypt": "Decrypt a category tally",
			"GET /draft":                                "Current mint draft",
			"POST /draft/example":                       "Fill the draft with the example piece",
			"DELETE /session":                           "End the current session",
			"GET /activity":                             "Indexed events (supports ?piece=, ?type=, ?account=, ?limit=, ?offset=)",
		},
	}

	s.writeJSON(w, http.StatusOK, info)
}

// handleHealth returns health status
// GET /health - Health check for monitoring systems
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	network := s.gallery.Network()

	health := models.HealthResponse{
		Status:   "healthy",
		Provider: string(network.State),
		FHE:      string(network.FHE.Status),
	}
	code := http.StatusOK

	if network.State != provider.StateConnected {
		health.Status = "degraded"
	}

	if s.repository != nil {
		health.Database = "ok"
		if err := s.repository.Ping(r.Context()); err != nil {
			slog.Error("Database ping failed", "error", err)
			health.Database = "unreachable"
			health.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	s.writeJSON(w, code, health)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// =============================================================================
// NETWORK ENDPOINTS
// =============================================================================

type switchRequest struct {
	ChainID uint64 `json:"chainId"`
}

// handleSwitchNetwork asks the wallet to move to another chain
// POST /network/switch {"chainId": 11155111}
func (s *Server) handleSwitchNetwork(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChainID == 0 {
		s.sendError(w, "Body must be {\"chainId\": n}", http.StatusBadRequest)
		return
	}

	status, err := s.gallery.SwitchNetwork(r.Context(), req.ChainID)
	if err != nil {
		s.sendGalleryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

// handleConnect requests the wallet's accounts
// POST /network/connect
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.gallery.Connect(r.Context())
	if err != nil {
		s.sendGalleryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"accounts": accounts})
}

// handleDetect leaves the disconnected state by detecting again
// POST /network/detect
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	status, err := s.gallery.Redetect(r.Context())
	if err != nil {
		s.sendGalleryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

// =============================================================================
// GALLERY ENDPOINTS
// =============================================================================

// handleListPieces refreshes the session's gallery
// GET /pieces
func (s *Server) handleListPieces(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	pieces, err := s.gallery.Refresh(r.Context(), sess)
	if err != nil {
		s.sendGalleryError(w, err)
		return
	}

	resp := models.PieceListResponse{
		Pieces:  make([]models.PieceResponse, 0, len(pieces)),
		Total:   len(pieces),
		Message: sess.Message(),
	}
	for _, p := range pieces {
		resp.Pieces = append(resp.Pieces, toPieceResponse(sess, p))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type mintRequest struct {
	gallery.MintForm
	Demo bool `json:"demo"`
}

// handleMint mints the submitted form, or the example piece in demo mode
// POST /pieces
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	var (
		res *gallery.TxResult
		err error
	)
	if req.Demo {
		res, err = s.gallery.QuickDemo(r.Context(), sess)
	} else {
		res, err = s.gallery.Mint(r.Context(), sess, req.MintForm)
	}
	if err != nil {
		s.sendGalleryError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toTxResponse(res, sess.Message()))
}

// handleGetPiece returns one piece
// GET /pieces/{id}
func (s *Server) handleGetPiece(w http.ResponseWriter, r *http.Request, pieceID uint64) {
	sess := s.session(w, r)

	p, err := s.gallery.Piece(r.Context(), pieceID)
	if err != nil {
		s.sendGalleryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toPieceResponse(sess, *p))
}

// handleApplaud likes a piece
// POST /pieces/{id}/applaud
func (s *Server) handleApplaud(w http.ResponseWriter, r *http.Request, pieceID uint64) {
	sess := s.session(w, r)

	res, err := s.gallery.Applaud(r.Context(), sess, pieceID)
	if err != nil {
		s.sendGalleryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTxResponse(res, sess.Message()))
}

type endorseRequest struct {
	Category string `json:"category"`
}

// handleEndorse votes for a piece in a category
// POST /pieces/{id}/endorse {"category": "best-photography"}
func (s *Server) handleEndorse(w http.ResponseWriter, r *http.Request, pieceID uint64) {
	sess := s.session(w, r)

	var req endorseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Body must be {\"category\": id}", http.StatusBadRequest)
		return
	}

	res, err := s.gallery.Endorse(r.Context(), sess, pieceID, contract.Category(req.Category))
	if err != nil {
		s.sendGalleryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTxResponse(res, sess.Message()))
}

// handleDecryptLikes decrypts a piece's like count
// POST /pieces/{id}/decrypt
func (s *Server) handleDecryptLikes(w http.ResponseWriter, r *http.Request, pieceID uint64) {
	sess := s.session(w, r)

	v, err := s.gallery.DecryptLikes(r.Context(), sess, pieceID)
	if err != nil {
		s.sendGalleryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, models.DecryptResponse{PieceID: pieceID, Value: v.String()})
}

// handleDecryptTally decrypts a category tally
// POST /pieces/{id}/tally/{category}/decrypt
func (s *Server) handleDecryptTally(w http.ResponseWriter, r *http.Request, pieceID uint64, category string) {
	sess := s.session(w, r)

	v, err := s.gallery.DecryptTally(r.Context(), sess, pieceID, contract.Category(category))
	if err != nil {
		s.sendGalleryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, models.DecryptResponse{PieceID: pieceID, Category: category, Value: v.String()})
}

// handleDraft returns the session's mint draft
// GET /draft
func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)
	s.writeJSON(w, http.StatusOK, sess.Draft())
}

// handleDraftExample fills the draft with the example piece
// POST /draft/example
func (s *Server) handleDraftExample(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)
	sess.SetDraft(gallery.ExampleForm())
	s.writeJSON(w, http.StatusOK, sess.Draft())
}

// handleEndSession drops the caller's session
// DELETE /session
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.Header.Get(SessionHeader)
	if id == "" {
		s.sendError(w, SessionHeader+" header is required", http.StatusBadRequest)
		return
	}
	if !s.gallery.Sessions().Delete(id) {
		s.sendError(w, "Session not found", http.StatusNotFound)
		return
	}
	slog.Debug("Session ended", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ACTIVITY ENDPOINT
// =============================================================================

// handleActivity lists indexed gallery events
// GET /activity?piece=1&type=applauded&account=0x...&limit=50&offset=0
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.repository == nil {
		s.sendError(w, "Activity indexing is disabled", http.StatusServiceUnavailable)
		return
	}

	filter, err := parseEventFilter(r.URL.Query())
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter.ChainID = s.gallery.Network().ChainID

	start := time.Now()
	events, err := s.repository.ListGalleryEvents(r.Context(), filter)
	if err != nil {
		slog.Error("Failed to list gallery events", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	slog.Debug("Activity listed", "events", len(events), "duration_ms", time.Since(start).Milliseconds())
	s.writeJSON(w, http.StatusOK, models.ActivityResponse{Events: events, Total: len(events)})
}

// =============================================================================
// RESPONSES
// =============================================================================

// writeJSON writes v with the given status
func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendError sends an error response without a gallery kind
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, models.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// sendGalleryError classifies err and sends it with the matching status
func (s *Server) sendGalleryError(w http.ResponseWriter, err error) {
	kind := gallery.Classify(err)
	code := statusForKind(kind)
	if code >= http.StatusInternalServerError {
		slog.Warn("Gallery request failed", "kind", kind, "error", err)
	}
	s.writeJSON(w, code, models.ErrorResponse{
		Error: err.Error(),
		Kind:  string(kind),
		Code:  code,
	})
}

// parseUintParam parses an optional unsigned query parameter
func parseUintParam(raw string) (uint64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	return v, err == nil
}
