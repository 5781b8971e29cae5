package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"batch-transcription-service/internal/domain/model"
)

// handleTranscribe accepts a single audio file for on-demand processing.
// Oversized recordings run through the resumable chunk pipeline; the
// response carries the item id to poll.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(submitMemoryLimit); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code": http.StatusBadRequest, "error": "invalid multipart request: " + err.Error(),
		})
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, fh, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code": http.StatusBadRequest, "error": "file field is required",
		})
		return
	}
	defer f.Close()

	path, err := s.saveUpload(f, fh.Filename)
	if err != nil {
		writeErr(w, err)
		return
	}

	item, err := s.chunkUC.Create(r.Context(), fh.Filename, path, r.FormValue("model"))
	if err != nil {
		writeErr(w, err)
		return
	}

	s.dispatchProcess(item.ID)
	writeJSON(w, http.StatusAccepted, chunkView(item))
}

func (s *Server) handleTranscribeStatus(w http.ResponseWriter, r *http.Request) {
	item, err := s.chunkUC.Get(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunkView(item))
}

// handleTranscribeRetry re-enters processing for a failed item; a retained
// checkpoint means only unprocessed parts run again.
func (s *Server) handleTranscribeRetry(w http.ResponseWriter, r *http.Request) {
	item, err := s.chunkUC.Retry(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	s.dispatchProcess(item.ID)
	writeJSON(w, http.StatusAccepted, chunkView(item))
}

func (s *Server) handleTranscribeStop(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	if _, err := s.chunkUC.Get(r.Context(), itemID); err != nil {
		writeErr(w, err)
		return
	}
	s.chunkUC.Stop(itemID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stop requested"})
}

func (s *Server) dispatchProcess(itemID string) {
	task := func(ctx context.Context) error {
		return s.chunkUC.Process(ctx, itemID)
	}
	if s.pool != nil {
		if err := s.pool.Submit(task); err == nil {
			return
		}
		s.log.Warn().Str("item_id", itemID).Msg("worker queue full, processing inline")
	}
	go func() {
		if err := task(context.Background()); err != nil {
			s.log.Error().Err(err).Str("item_id", itemID).Msg("chunk processing failed")
		}
	}()
}

func (s *Server) saveUpload(r io.Reader, name string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.uploadDir, fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(name)))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, r); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func chunkView(item *model.ChunkItem) map[string]any {
	v := map[string]any{
		"itemId":       item.ID,
		"originalName": item.OriginalName,
		"status":       string(item.Status),
		"createdAt":    item.CreatedAt,
	}
	if item.Checkpoint.LastCompletedPartIndex >= 0 && !item.Status.IsTerminal() {
		v["completedParts"] = item.Checkpoint.LastCompletedPartIndex + 1
	}
	if item.Status == model.ChunkItemStatusFailed {
		v["errorMessage"] = item.ErrorMessage
		v["completedParts"] = item.Checkpoint.LastCompletedPartIndex + 1
		v["retryable"] = true
	}
	if item.Status == model.ChunkItemStatusCompleted && item.Result != nil {
		v["transcript"] = item.Result
	}
	if item.CompletedAt != nil {
		v["completedAt"] = item.CompletedAt
	}
	return v
}
