package rest

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/italolelis/transloader/internal/job"
	"github.com/italolelis/transloader/internal/logctx"
	"github.com/italolelis/transloader/internal/storage"
	"github.com/italolelis/transloader/internal/transfer"
	"github.com/italolelis/transloader/internal/worker"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Dispatcher hands accepted jobs to the worker pool.
type Dispatcher interface {
	Submit(task worker.Task) error
	Cancel(jobID string) bool
}

type submitRequest struct {
	URL      string `json:"url"`
	RenameTo string `json:"rename_to"`
}

type jobList struct {
	Jobs  []*job.Job `json:"jobs"`
	Total int        `json:"total"`
}

// JobsHandler serves job submission and status reads over the ledger.
type JobsHandler struct {
	ledger     storage.Ledger
	dispatcher Dispatcher
	apiKey     string
}

func NewJobsHandler(ledger storage.Ledger, dispatcher Dispatcher, apiKey string) *JobsHandler {
	return &JobsHandler{
		ledger:     ledger,
		dispatcher: dispatcher,
		apiKey:     apiKey,
	}
}

func (h *JobsHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.apiKeyMiddleware)

	r.Post("/jobs", h.HandleSubmit)
	r.Get("/jobs", h.HandleList)
	r.Get("/jobs/{jobID}", h.HandleGet)
	r.Delete("/jobs/{jobID}", h.HandleDelete)

	return r
}

func (h *JobsHandler) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != h.apiKey {
			http.Error(w, "invalid API key", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// HandleSubmit accepts a link, creates the PENDING ledger record and hands
// the job to the dispatcher.
func (h *JobsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)

		return
	}

	if isPrivateHost(req.URL) {
		http.Error(w, "private IPs not allowed", http.StatusBadRequest)

		return
	}

	jobID := uuid.New().String()

	filename := req.RenameTo
	if filename == "" {
		filename = transfer.FilenameFromURL(req.URL)
	}
	if filename == "" {
		filename = worker.FallbackName(jobID)
	}

	record := &job.Job{
		ID:        jobID,
		Status:    job.StatusPending,
		URL:       req.URL,
		Filename:  filename,
		Renamed:   req.RenameTo != "",
		CreatedAt: time.Now().UTC(),
	}

	ctx := r.Context()

	if err := h.ledger.Put(ctx, jobID, record); err != nil {
		logger.Error("failed to store job record", "err", err)
		http.Error(w, "failed to store job", http.StatusInternalServerError)

		return
	}

	if err := h.ledger.PushRecent(ctx, jobID); err != nil {
		logger.Error("failed to index job id", "job_id", jobID, "err", err)
	}

	task := worker.Task{ID: jobID, URL: req.URL, Filename: filename, Renamed: record.Renamed}
	if err := h.dispatcher.Submit(task); err != nil {
		logger.Error("failed to dispatch job", "job_id", jobID, "err", err)

		// A rejected submission must not leave a PENDING record behind that
		// no worker will ever run.
		if rmErr := h.ledger.Remove(ctx, jobID); rmErr != nil {
			logger.Error("failed to roll back job record", "job_id", jobID, "err", rmErr)
		}
		if dropErr := h.ledger.DropRecent(ctx, jobID); dropErr != nil {
			logger.Error("failed to roll back job id index", "job_id", jobID, "err", dropErr)
		}

		http.Error(w, "too many queued jobs", http.StatusServiceUnavailable)

		return
	}

	logger.Info("job accepted", "job_id", jobID, "url", req.URL)

	writeJSON(w, http.StatusCreated, record)
}

func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	record, err := h.ledger.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)

			return
		}

		http.Error(w, "failed to read job", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, record)
}

// HandleList walks the recent-ids index newest first. Ids whose record has
// expired are skipped silently; the index is best-effort, not authoritative.
func (h *JobsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			http.Error(w, "limit must be between 1 and 100", http.StatusBadRequest)

			return
		}

		limit = n
	}

	statusFilter := job.Status(strings.ToUpper(r.URL.Query().Get("status")))
	if statusFilter != "" && !statusFilter.IsValid() {
		http.Error(w, "unknown status", http.StatusBadRequest)

		return
	}

	ids, err := h.ledger.RecentIDs(ctx, limit)
	if err != nil {
		http.Error(w, "failed to list jobs", http.StatusInternalServerError)

		return
	}

	jobs := make([]*job.Job, 0, len(ids))

	for _, id := range ids {
		record, err := h.ledger.Get(ctx, id)
		if err != nil {
			continue
		}

		if statusFilter != "" && record.Status != statusFilter {
			continue
		}

		jobs = append(jobs, record)
	}

	writeJSON(w, http.StatusOK, jobList{Jobs: jobs, Total: len(jobs)})
}

// HandleDelete cancels an active job and removes its record and index entry.
func (h *JobsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())
	ctx := r.Context()
	jobID := chi.URLParam(r, "jobID")

	record, err := h.ledger.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)

			return
		}

		http.Error(w, "failed to read job", http.StatusInternalServerError)

		return
	}

	if !record.Status.IsTerminal() {
		if cancelled := h.dispatcher.Cancel(jobID); cancelled {
			logger.Info("cancelled in-flight job", "job_id", jobID)
		}
	}

	if err := h.ledger.Remove(ctx, jobID); err != nil {
		http.Error(w, "failed to delete job", http.StatusInternalServerError)

		return
	}

	if err := h.ledger.DropRecent(ctx, jobID); err != nil {
		logger.Error("failed to drop job id from index", "job_id", jobID, "err", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "job deleted"})
}

// isPrivateHost blocks loopback and RFC1918 targets.
func isPrivateHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" {
		return true
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
	}

	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
