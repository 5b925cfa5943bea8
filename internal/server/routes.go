package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/store"
)

const maxBodyBytes = 64 << 10

// cacheNamespaces are the namespace bases an owner may inspect or clear.
// The owner id is always appended server-side.
var cacheNamespaces = map[string]bool{
	engine.AnswersNamespace:     true,
	engine.SearchTermsNamespace: true,
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req engine.AskRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	s.ask(w, r, req)
}

// handleAskQuery serves GET /api/ask?q=...&max_sources=...
func (s *Server) handleAskQuery(w http.ResponseWriter, r *http.Request) {
	req := engine.AskRequest{Question: r.URL.Query().Get("q")}
	if v := r.URL.Query().Get("max_sources"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "max_sources must be an integer")
			return
		}
		req.MaxSources = n
	}
	if v := r.URL.Query().Get("include_related"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "include_related must be a boolean")
			return
		}
		req.IncludeRelated = &b
	}
	s.ask(w, r, req)
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request, req engine.AskRequest) {
	// The header is authoritative; a body owner_id is ignored.
	req.OwnerID = ownerFrom(r.Context())

	res, err := s.engine.Ask(r.Context(), req)
	if err != nil {
		s.engineError(w, "ask failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSearch serves GET /api/search?q=...&limit=...
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req := engine.SearchRequest{
		Query:   r.URL.Query().Get("q"),
		OwnerID: ownerFrom(r.Context()),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		req.Limit = n
	}

	res, err := s.engine.Search(r.Context(), req)
	if err != nil {
		s.engineError(w, "search failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// engineError maps validation failures to 400 and anything else to 500.
func (s *Server) engineError(w http.ResponseWriter, msg string, err error) {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Error(),
			"field": verr.Field,
		})
		return
	}
	s.log.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) ownerNamespace(w http.ResponseWriter, r *http.Request) (string, bool) {
	base := chi.URLParam(r, "namespace")
	if !cacheNamespaces[base] {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown cache namespace %q", base))
		return "", false
	}
	return base + ":" + ownerFrom(r.Context()), true
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	ns, ok := s.ownerNamespace(w, r)
	if !ok {
		return
	}
	st, err := s.engine.CacheStats(r.Context(), ns)
	if err != nil {
		s.log.Warn("cache stats", zap.String("namespace", ns), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "cache backend unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	ns, ok := s.ownerNamespace(w, r)
	if !ok {
		return
	}
	n, err := s.engine.ClearCache(r.Context(), ns)
	if err != nil {
		s.log.Warn("cache clear", zap.String("namespace", ns), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "cache backend unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"namespace": ns,
		"deleted":   n,
	})
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return
	}

	related, err := s.engine.Related(r.Context(), id, ownerFrom(r.Context()))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	if err != nil {
		s.log.Error("related notes", zap.Int64("note_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"note_id": id,
		"count":   len(related),
		"related": related,
	})
}
