// Package server exposes the HTTP surface of the pipeline: upload intake,
// media inspection, and retrieval-augmented queries. All processing is
// asynchronous; upload returns as soon as the item is durable and announced.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"mediarag/config"
	"mediarag/core"
	"mediarag/processors"
	"mediarag/storage"
)

// MediaStore is the slice of the datastore the HTTP handlers use.
type MediaStore interface {
	CreateMedia(ctx context.Context, m core.Media) error
	GetMedia(ctx context.Context, id string) (*core.Media, error)
	ListMedia(ctx context.Context, limit, offset int) ([]core.Media, int, error)
	DeleteMedia(ctx context.Context, mediaID string) (segments int64, embeddings int64, err error)
	ListSegments(ctx context.Context, mediaID string) ([]core.TranscriptSegment, error)
}

// Publisher announces accepted uploads to the pipeline.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type Server struct {
	store    MediaStore
	cache    *storage.StatusCache
	index    storage.VectorIndex
	embedder processors.Embedder
	chat     processors.Chat
	pub      Publisher
	cfg      *config.Config
	log      *slog.Logger
}

func New(store MediaStore, cache *storage.StatusCache, index storage.VectorIndex,
	embedder processors.Embedder, chat processors.Chat, pub Publisher,
	cfg *config.Config, log *slog.Logger) *Server {
	return &Server{
		store:    store,
		cache:    cache,
		index:    index,
		embedder: embedder,
		chat:     chat,
		pub:      pub,
		cfg:      cfg,
		log:      log,
	}
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/media", s.handleListMedia).Methods(http.MethodGet)
	r.HandleFunc("/media/{id}", s.handleGetMedia).Methods(http.MethodGet)
	r.HandleFunc("/media/{id}", s.handleDeleteMedia).Methods(http.MethodDelete)
	r.HandleFunc("/media/{id}/segments", s.handleListSegments).Methods(http.MethodGet)
	r.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)
	return cors.AllowAll().Handler(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
