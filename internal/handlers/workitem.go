package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/designauto/internal/models"
	"github.com/stanstork/designauto/internal/workitem"
)

const maxUploadMemory = 32 << 20

type WorkItemRunner interface {
	Submit(ctx context.Context, req workitem.Request) (workitem.Submission, error)
	Poll(ctx context.Context, id string) (models.WorkItemStatus, error)
	Wait(ctx context.Context, id string, interval, timeout time.Duration) (models.WorkItemStatus, error)
}

type DownloadSigner interface {
	SignedDownloadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

type WorkItemOptions struct {
	Bucket       string
	DownloadTTL  time.Duration
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

type WorkItemHandler struct {
	runner WorkItemRunner
	signer DownloadSigner
	opts   WorkItemOptions
	logger zerolog.Logger
}

func NewWorkItemHandler(runner WorkItemRunner, signer DownloadSigner, opts WorkItemOptions, logger zerolog.Logger) *WorkItemHandler {
	return &WorkItemHandler{
		runner: runner,
		signer: signer,
		opts:   opts,
		logger: logger,
	}
}

// formValue accepts a JSON string or a bare JSON value, keeping the raw text.
type formValue string

func (v *formValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = formValue(s)
		return nil
	}
	*v = formValue(strings.TrimSpace(string(b)))
	return nil
}

type workItemData struct {
	Width        formValue `json:"width"`
	Height       formValue `json:"height"`
	ActivityName string    `json:"activityName"`
}

func (h *WorkItemHandler) StartWorkItem(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, r, "Invalid multipart form", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var data workItemData
	if err := json.Unmarshal([]byte(r.FormValue("data")), &data); err != nil {
		writeError(w, r, "Invalid data field", err)
		return
	}

	file, header, err := r.FormFile("inputFile")
	if err != nil {
		writeError(w, r, "Missing input file", err)
		return
	}
	defer file.Close()

	contentType, err := detectContentType(file)
	if err != nil {
		writeError(w, r, "Failed to read input file", err)
		return
	}

	submission, err := h.runner.Submit(r.Context(), workitem.Request{
		ActivityName: data.ActivityName,
		Width:        string(data.Width),
		Height:       string(data.Height),
		FileName:     header.Filename,
		Size:         header.Size,
		ContentType:  contentType,
		Body:         file,
	})
	if err != nil {
		writeError(w, r, "Failed to start work item", err)
		return
	}
	writeJSON(w, submission)
}

func detectContentType(f io.ReadSeeker) (string, error) {
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mt.String(), nil
}

func (h *WorkItemHandler) GetWorkItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, err := h.runner.Poll(r.Context(), id)
	if err != nil {
		writeError(w, r, "Failed to get work item", err)
		return
	}
	writeJSON(w, status)
}

// WaitWorkItem blocks until the work item finishes or the wait times out.
func (h *WorkItemHandler) WaitWorkItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, err := h.runner.Wait(r.Context(), id, h.opts.PollInterval, h.opts.WaitTimeout)
	if err != nil {
		if errors.Is(err, workitem.ErrTimedOut) {
			h.logger.Warn().Str("work_item", id).Str("status", status.Status).Msg("gave up waiting for work item")
		}
		writeError(w, r, "Failed to wait for work item", err)
		return
	}
	writeJSON(w, status)
}

func (h *WorkItemHandler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	url, err := h.signer.SignedDownloadURL(r.Context(), h.opts.Bucket, name, h.opts.DownloadTTL)
	if err != nil {
		writeError(w, r, "Failed to get download url", err)
		return
	}
	writeJSON(w, map[string]string{"url": url})
}
