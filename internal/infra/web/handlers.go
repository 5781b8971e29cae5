package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"batch-transcription-service/internal/domain/model"
	"batch-transcription-service/internal/usecase"
)

// submitMemoryLimit is how much of a multipart submission is held in memory
// before spilling to temp files.
const submitMemoryLimit = 64 << 20

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(submitMemoryLimit); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code": http.StatusBadRequest, "error": "invalid multipart request: " + err.Error(),
		})
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code": http.StatusBadRequest, "error": "no files in submission",
		})
		return
	}

	items := make([]usecase.SubmitItem, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeErr(w, err)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeErr(w, err)
			return
		}
		items = append(items, usecase.SubmitItem{OriginalName: fh.Filename, Data: data})
	}

	opts := usecase.SubmitOptions{
		Model:  r.FormValue("model"),
		Window: model.CompletionWindow(r.FormValue("completionWindow")),
	}
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts.Metadata); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"code": http.StatusBadRequest, "error": "metadata must be a JSON object of strings",
			})
			return
		}
	}

	receipt, err := s.subUC.Submit(r.Context(), items, opts)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":            receipt.JobID,
		"totalItems":       receipt.TotalItems,
		"model":            receipt.Model,
		"completionWindow": receipt.Window,
		"fileMapping":      receipt.FileMapping,
	})
}

type jobSummary struct {
	JobID           string     `json:"jobId"`
	Status          string     `json:"status"`
	Model           string     `json:"model"`
	TotalItems      int        `json:"totalItems"`
	CompletedItems  int        `json:"completedItems"`
	FailedItems     int        `json:"failedItems"`
	ProgressPercent int        `json:"progressPercent"`
	CanCancel       bool       `json:"canCancel"`
	CanDownload     bool       `json:"canDownload"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

func summarize(j *model.BatchJob) jobSummary {
	return jobSummary{
		JobID:           j.ID,
		Status:          string(j.Status),
		Model:           j.Model,
		TotalItems:      j.TotalItems,
		CompletedItems:  j.CompletedItems,
		FailedItems:     j.FailedItems,
		ProgressPercent: j.ProgressPercent(),
		CanCancel:       j.CanCancel(),
		CanDownload:     j.CompletedItems > 0,
		ErrorMessage:    j.ErrorMessage,
		CreatedAt:       j.CreatedAt,
		CompletedAt:     j.CompletedAt,
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	jobs, err := s.subUC.List(r.Context(), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	summaries := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		summaries = append(summaries, summarize(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": summaries})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.subUC.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := map[string]any{
		"status": job.Status,
		"progress": map[string]any{
			"completed":  job.CompletedItems,
			"failed":     job.FailedItems,
			"total":      job.TotalItems,
			"percentage": job.ProgressPercent(),
		},
	}
	if est := job.EstimatedCompletion(); est != nil {
		resp["estimatedCompletion"] = est
	}
	if job.ErrorMessage != "" {
		resp["error"] = job.ErrorMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.subUC.Items(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	type itemView struct {
		ItemID       string     `json:"itemId"`
		CustomID     string     `json:"customId"`
		OriginalName string     `json:"originalName"`
		Status       string     `json:"status"`
		ErrorMessage string     `json:"errorMessage,omitempty"`
		CompletedAt  *time.Time `json:"completedAt,omitempty"`
	}
	views := make([]itemView, 0, len(items))
	for _, it := range items {
		views = append(views, itemView{
			ItemID:       it.ID,
			CustomID:     it.CustomID,
			OriginalName: it.OriginalName,
			Status:       string(it.Status),
			ErrorMessage: it.ErrorMessage,
			CompletedAt:  it.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": views})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, err := s.subUC.Cancel(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(job))
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	results, err := s.subUC.Results(r.Context(), jobID)
	if err != nil {
		writeErr(w, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, results)
	case "txt":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := results.WriteText(w); err != nil {
			s.log.Warn().Err(err).Str("job_id", jobID).Msg("writing text export")
		}
	case "zip":
		items, err := s.subUC.Items(r.Context(), jobID)
		if err != nil {
			writeErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobID+".zip"))
		if err := results.WriteZip(w, items); err != nil {
			s.log.Warn().Err(err).Str("job_id", jobID).Msg("writing zip export")
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code": http.StatusBadRequest, "error": "format must be json, txt or zip",
		})
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.subUC.Delete(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ===== Poller control =====

type pollerControlRequest struct {
	Action     string `json:"action"`
	IntervalMs int64  `json:"intervalMs,omitempty"`
}

func (s *Server) handlePollerControl(w http.ResponseWriter, r *http.Request) {
	var req pollerControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code": http.StatusBadRequest, "error": "invalid request body",
		})
		return
	}

	switch req.Action {
	case "start":
		interval := s.pollInterval
		if req.IntervalMs > 0 {
			interval = time.Duration(req.IntervalMs) * time.Millisecond
		}
		if err := s.poller.Start(context.Background(), interval); err != nil {
			writeErr(w, err)
			return
		}
	case "stop":
		s.poller.Stop()
	case "poll-once":
		if err := s.poller.PollOnce(r.Context()); err != nil {
			writeErr(w, err)
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code": http.StatusBadRequest, "error": "action must be start, stop or poll-once",
		})
		return
	}

	s.handlePollerStatus(w, r)
}

func (s *Server) handlePollerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.poller.Status(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
