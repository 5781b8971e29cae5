// File: internal/usecase/results.go
package usecase

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"batch-transcription-service/internal/domain"
	"batch-transcription-service/internal/domain/model"
	"batch-transcription-service/internal/domain/ports/repository"
)

// JobResults is the consolidated view served by the results endpoint.
type JobResults struct {
	JobID    string        `json:"jobId"`
	Status   string        `json:"status"`
	Model    string        `json:"model"`
	Results  []ItemResult  `json:"results"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

type ItemResult struct {
	ItemID       string            `json:"itemId"`
	CustomID     string            `json:"customId"`
	OriginalName string            `json:"originalName"`
	Transcript   *model.Transcript `json:"transcript"`
}

type ItemFailure struct {
	ItemID       string `json:"itemId"`
	CustomID     string `json:"customId"`
	OriginalName string `json:"originalName"`
	Error        string `json:"error"`
}

// Results loads the consolidated outcome of a job. It returns ErrNoResults
// when not a single item completed, regardless of job status.
func (uc *SubmissionUseCase) Results(ctx context.Context, jobID string) (*JobResults, error) {
	job, err := uc.jobRepo.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return nil, err
	}
	items, err := uc.itemRepo.ListByJob(ctx, repository.NoTX, jobID)
	if err != nil {
		return nil, err
	}

	out := &JobResults{JobID: job.ID, Status: string(job.Status), Model: job.Model}
	for _, it := range items {
		switch it.Status {
		case model.BatchItemStatusCompleted:
			out.Results = append(out.Results, ItemResult{
				ItemID:       it.ID,
				CustomID:     it.CustomID,
				OriginalName: it.OriginalName,
				Transcript:   it.Result,
			})
		case model.BatchItemStatusFailed:
			out.Failures = append(out.Failures, ItemFailure{
				ItemID:       it.ID,
				CustomID:     it.CustomID,
				OriginalName: it.OriginalName,
				Error:        it.ErrorMessage,
			})
		}
	}
	if len(out.Results) == 0 {
		return nil, domain.ErrNoResults
	}
	return out, nil
}

// WriteText renders the completed transcripts as one plain-text document.
func (r *JobResults) WriteText(w io.Writer) error {
	for i, res := range r.Results {
		if i > 0 {
			if _, err := io.WriteString(w, "\n\n"); err != nil {
				return err
			}
		}
		header := fmt.Sprintf("=== %s ===\n", res.OriginalName)
		if _, err := io.WriteString(w, header); err != nil {
			return err
		}
		if res.Transcript != nil {
			if _, err := io.WriteString(w, res.Transcript.Text); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteZip packs one .txt and one .json per completed item. When the item's
// audio is still reachable on the local filesystem it is included too; blob
// store audio is skipped rather than re-downloaded.
func (r *JobResults) WriteZip(w io.Writer, items []*model.BatchItem) error {
	zw := zip.NewWriter(w)

	bySource := make(map[string]string, len(items))
	for _, it := range items {
		bySource[it.CustomID] = it.SourceLocation
	}

	for _, res := range r.Results {
		base := sanitizeEntryName(res.OriginalName)
		if base == "" {
			base = res.CustomID
		}

		tw, err := zw.Create(base + ".txt")
		if err != nil {
			return err
		}
		if res.Transcript != nil {
			if _, err := io.WriteString(tw, res.Transcript.Text); err != nil {
				return err
			}
		}

		jw, err := zw.Create(base + ".json")
		if err != nil {
			return err
		}
		enc := json.NewEncoder(jw)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}

		if path := localPath(bySource[res.CustomID]); path != "" {
			if err := addLocalFile(zw, "audio/"+base, path); err != nil {
				// audio inclusion is best-effort
				continue
			}
		}
	}
	return zw.Close()
}

func sanitizeEntryName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return strings.TrimSuffix(name, ".")
}

func localPath(source string) string {
	if strings.HasPrefix(source, "file://") {
		return strings.TrimPrefix(source, "file://")
	}
	return ""
}

func addLocalFile(zw *zip.Writer, entry, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w, err := zw.Create(entry)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
