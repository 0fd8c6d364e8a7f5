package server

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
)

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.store.ListMedia(r.Context(), limit, offset)
	if err != nil {
		s.log.Error("list media", "error", err)
		writeError(w, http.StatusInternalServerError, "list media")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"offset": offset,
	})
}

// handleGetMedia serves the status poll loop, so it consults the short-TTL
// cache before the database.
func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if m, ok := s.cache.Get(r.Context(), id); ok {
		writeJSON(w, http.StatusOK, m)
		return
	}
	m, err := s.store.GetMedia(r.Context(), id)
	if err != nil {
		s.log.Error("get media", "media_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get media")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "media not found")
		return
	}
	s.cache.Set(r.Context(), m)
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := s.store.GetMedia(r.Context(), id)
	if err != nil {
		s.log.Error("get media", "media_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get media")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "media not found")
		return
	}
	segments, err := s.store.ListSegments(r.Context(), id)
	if err != nil {
		s.log.Error("list segments", "media_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "list segments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"media_id": id,
		"segments": segments,
	})
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := s.store.GetMedia(r.Context(), id)
	if err != nil {
		s.log.Error("get media", "media_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get media")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "media not found")
		return
	}

	segments, embeddings, err := s.store.DeleteMedia(r.Context(), id)
	if err != nil {
		s.log.Error("delete media", "media_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete media")
		return
	}
	s.cache.Invalidate(r.Context(), id)
	if m.FilePath != "" {
		if err := os.Remove(m.FilePath); err != nil && !os.IsNotExist(err) {
			s.log.Warn("remove media file", "media_id", id, "path", m.FilePath, "error", err)
		}
	}

	s.log.Info("media deleted", "media_id", id, "segments", segments, "embeddings", embeddings)
	writeJSON(w, http.StatusOK, map[string]any{
		"media_id":           id,
		"deleted_segments":   segments,
		"deleted_embeddings": embeddings,
	})
}
