package server

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"lukechampine.com/blake3"

	"mediarag/core"
)

// maxUploadBytes bounds a single upload; multipart spills to disk beyond the
// in-memory threshold so large files are fine.
const maxUploadBytes = 4 << 30

// handleUpload stores the file, records the media row in the uploaded state,
// and publishes MediaUploaded. Processing happens asynchronously; the 202
// response carries the id to poll.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	mediaID := core.NewID()
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "prepare upload directory")
		return
	}
	destPath := filepath.Join(s.cfg.UploadDir, mediaID+filepath.Ext(header.Filename))

	size, checksum, err := saveUpload(file, destPath)
	if err != nil {
		s.log.Error("store upload", "media_id", mediaID, "error", err)
		writeError(w, http.StatusInternalServerError, "store upload")
		return
	}

	media := core.Media{
		ID:            mediaID,
		FileName:      header.Filename,
		FilePath:      destPath,
		ContentType:   header.Header.Get("Content-Type"),
		FileSizeBytes: size,
		Checksum:      checksum,
		Status:        core.StatusUploaded,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateMedia(r.Context(), media); err != nil {
		os.Remove(destPath)
		s.log.Error("record upload", "media_id", mediaID, "error", err)
		writeError(w, http.StatusInternalServerError, "record upload")
		return
	}

	event := core.MediaUploadedEvent{
		MediaID:       mediaID,
		FileName:      media.FileName,
		FilePath:      destPath,
		ContentType:   media.ContentType,
		FileSizeBytes: size,
		ModelName:     r.FormValue("model"),
		UploadedAt:    media.CreatedAt,
	}
	if err := s.pub.Publish(r.Context(), core.EventMediaUploaded, event); err != nil {
		// The row and file stay; an operator can re-announce the item.
		s.log.Error("announce upload", "media_id", mediaID, "error", err)
		writeError(w, http.StatusInternalServerError, "announce upload")
		return
	}

	s.log.Info("upload accepted", "media_id", mediaID, "file", media.FileName, "size_bytes", size)
	writeJSON(w, http.StatusAccepted, media)
}

// saveUpload streams the file to disk while hashing it, so the checksum never
// requires a second read.
func saveUpload(src io.Reader, destPath string) (int64, string, error) {
	dst, err := os.Create(destPath)
	if err != nil {
		return 0, "", fmt.Errorf("create %s: %w", destPath, err)
	}
	defer dst.Close()

	hasher := blake3.New(32, nil)
	size, err := io.Copy(io.MultiWriter(dst, hasher), src)
	if err != nil {
		os.Remove(destPath)
		return 0, "", fmt.Errorf("write %s: %w", destPath, err)
	}
	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}
