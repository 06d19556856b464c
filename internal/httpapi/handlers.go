package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cuivienor/hls-ladder/internal/db"
	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/cuivienor/hls-ladder/internal/notify"
	"github.com/cuivienor/hls-ladder/internal/scanner"
	"github.com/cuivienor/hls-ladder/internal/service"
	"github.com/gorilla/mux"
)

type jobUseCases interface {
	List(ctx context.Context, opts db.ListOptions) ([]model.Job, error)
	Status(ctx context.Context, jobID string) (*service.JobView, error)
	Submit(ctx context.Context, jobID string) (*service.SubmitResult, error)
	Cancel(ctx context.Context, jobID string) error
	Delete(ctx context.Context, jobID string) error
	Queue(ctx context.Context) ([]service.QueueItem, error)
	Stats(ctx context.Context) (*service.Stats, error)
	Scan(ctx context.Context) (*scanner.ScanResult, error)
	ResetStuck(ctx context.Context) (*service.ResetResult, error)
	Events(seq int64) []notify.Event
}

// Handler serves the admin API
type Handler struct {
	jobs jobUseCases
}

// NewHandler wires HTTP handlers with application use cases.
func NewHandler(jobs jobUseCases) *Handler {
	return &Handler{jobs: jobs}
}

// Response is the envelope for every API reply
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ScanSummary is the scan reply payload
type ScanSummary struct {
	Scanned int         `json:"scanned"`
	Created int         `json:"created"`
	Jobs    []model.Job `json:"jobs"`
}

// ListJobs handles GET /api/jobs?status=&limit=&offset=.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	jobs, err := h.jobs.List(r.Context(), opts)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	writeData(w, http.StatusOK, "", jobs)
}

// GetJob handles GET /api/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	view, err := h.jobs.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeData(w, http.StatusOK, "", view)
}

// DeleteJob handles DELETE /api/jobs/{id}.
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.jobs.Delete(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeData(w, http.StatusOK, "job "+id+" deleted", nil)
}

// SubmitJob handles POST /api/jobs/{id}/submit.
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	res, err := h.jobs.Submit(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	msg := "conversion started"
	if !res.Started {
		msg = "added to queue at position " + strconv.Itoa(res.Position)
	}
	writeData(w, http.StatusAccepted, msg, res)
}

// CancelJob handles POST /api/jobs/{id}/cancel.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.jobs.Cancel(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeData(w, http.StatusOK, "job "+id+" removed from queue", nil)
}

// Queue handles GET /api/queue.
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	items, err := h.jobs.Queue(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeData(w, http.StatusOK, "", items)
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobs.Stats(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeData(w, http.StatusOK, "", stats)
}

// Events handles GET /api/events?since=.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid since parameter"))
			return
		}
		since = v
	}
	writeData(w, http.StatusOK, "", h.jobs.Events(since))
}

// Scan handles POST /api/scan.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	res, err := h.jobs.Scan(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	jobs := res.Jobs
	if jobs == nil {
		jobs = []model.Job{}
	}
	writeData(w, http.StatusOK, "scan complete", ScanSummary{Scanned: res.Scanned, Created: res.Created, Jobs: jobs})
}

// ResetStuck handles POST /api/reset-stuck.
func (h *Handler) ResetStuck(w http.ResponseWriter, r *http.Request) {
	res, err := h.jobs.ResetStuck(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeData(w, http.StatusOK, "reset "+strconv.Itoa(len(res.Reset))+" stuck jobs", res)
}

func listOptions(r *http.Request) (db.ListOptions, error) {
	q := r.URL.Query()
	var opts db.ListOptions
	if raw := q.Get("status"); raw != "" {
		status := model.JobStatus(raw)
		if !status.Valid() {
			return opts, errors.New("unknown status " + raw)
		}
		opts.Status = &status
	}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return opts, errors.New("invalid " + name + " parameter")
		}
		*dst = v
	}
	return opts, nil
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyQueued),
		errors.Is(err, model.ErrNotQueued),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrAdmissionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeData(w http.ResponseWriter, status int, message string, data interface{}) {
	resp := Response{Success: true, Message: message}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		resp.Data = raw
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, Response{Success: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
