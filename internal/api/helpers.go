package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/gallery"
	"auroraexhibit/internal/models"
	"auroraexhibit/internal/session"
)

// session returns the caller's session, issuing a new one when the header is
// missing or unknown. The id is echoed back in the response header.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	sess, _ := s.gallery.Sessions().GetOrCreate(r.Header.Get(SessionHeader))
	w.Header().Set(SessionHeader, sess.ID)
	return sess
}

// statusForKind maps an error kind onto an HTTP status
func statusForKind(kind gallery.Kind) int {
	switch kind {
	case gallery.KindValidation:
		return http.StatusBadRequest
	case gallery.KindNotFound:
		return http.StatusNotFound
	case gallery.KindUnavailable, gallery.KindNetworkMismatch:
		return http.StatusConflict
	case gallery.KindDecryptAuthorization:
		return http.StatusForbidden
	case gallery.KindTransaction:
		return http.StatusBadGateway
	case gallery.KindFHEInit, gallery.KindConnectivity:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// toPieceResponse combines a piece with the session's advisory state
func toPieceResponse(sess *session.Session, p contract.Piece) models.PieceResponse {
	resp := models.PieceResponse{
		ID:              p.ID,
		Artist:          p.Artist.Hex(),
		Title:           p.Title,
		DescriptionHash: p.DescriptionHash,
		FileHash:        p.FileHash,
		Tags:            p.Tags,
		Categories:      make([]string, len(p.Categories)),
		CreatedAt:       p.CreatedAt,
		Liked:           sess.Liked(p.ID),
		Endorsed:        sess.Endorsed(p.ID),
		Pending:         sess.Pending(p.ID),
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	for i, c := range p.Categories {
		resp.Categories[i] = string(c)
	}
	if likes, ok := sess.CachedLikes(p.ID); ok {
		v := likes.String()
		resp.Likes = &v
	}
	return resp
}

func toTxResponse(res *gallery.TxResult, message string) models.TxResponse {
	return models.TxResponse{
		TxHash:  res.TxHash,
		PieceID: res.PieceID,
		Message: message,
	}
}

// parseEventFilter reads activity filters from the query string
func parseEventFilter(query url.Values) (models.EventFilter, error) {
	filter := models.EventFilter{Limit: 50}

	// Pagination
	if limitStr := query.Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
			filter.Limit = parsed
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			filter.Offset = parsed
		}
	}

	// Filters
	if raw := query.Get("piece"); raw != "" {
		id, ok := parseUintParam(raw)
		if !ok {
			return filter, fmt.Errorf("invalid piece id: %s", raw)
		}
		filter.PieceID = &id
	}
	switch t := query.Get("type"); t {
	case "", models.EventTypeMinted, models.EventTypeApplauded, models.EventTypeEndorsed:
		filter.EventType = t
	default:
		return filter, fmt.Errorf("invalid event type: %s", t)
	}
	filter.Account = query.Get("account")

	return filter, nil
}
