package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/italolelis/transloader/internal/http/rest"
	"github.com/italolelis/transloader/internal/job"
	"github.com/italolelis/transloader/internal/storage/memory"
	"github.com/italolelis/transloader/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

type fakeDispatcher struct {
	submitted []worker.Task
	submitErr error
	cancelled []string
	cancelOK  bool
}

func (d *fakeDispatcher) Submit(task worker.Task) error {
	if d.submitErr != nil {
		return d.submitErr
	}

	d.submitted = append(d.submitted, task)

	return nil
}

func (d *fakeDispatcher) Cancel(jobID string) bool {
	d.cancelled = append(d.cancelled, jobID)

	return d.cancelOK
}

func newJobsServer(ledger *memory.Ledger, dispatcher *fakeDispatcher) *httptest.Server {
	return httptest.NewServer(rest.NewJobsHandler(ledger, dispatcher, testAPIKey).Routes())
}

func doRequest(t *testing.T, method, url, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", testAPIKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	return resp
}

func decodeJob(t *testing.T, resp *http.Response) *job.Job {
	t.Helper()
	defer resp.Body.Close()

	var rec job.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))

	return &rec
}

func TestJobs_AuthRequired(t *testing.T) {
	srv := newJobsServer(memory.NewLedger(), &fakeDispatcher{})
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/jobs", nil)
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", "wrong")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJobs_Submit(t *testing.T) {
	ledger := memory.NewLedger()
	dispatcher := &fakeDispatcher{}
	srv := newJobsServer(ledger, dispatcher)
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/jobs", `{"url":"https://example.com/files/video.mkv"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	rec := decodeJob(t, resp)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, job.StatusPending, rec.Status)
	assert.Equal(t, "video.mkv", rec.Filename)
	assert.False(t, rec.Renamed)

	stored, err := ledger.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, stored.Status)

	require.Len(t, dispatcher.submitted, 1)
	assert.Equal(t, rec.ID, dispatcher.submitted[0].ID)
	assert.Equal(t, "video.mkv", dispatcher.submitted[0].Filename)

	ids, err := ledger.RecentIDs(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID}, ids)
}

func TestJobs_SubmitWithRename(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	srv := newJobsServer(memory.NewLedger(), dispatcher)
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/jobs",
		`{"url":"https://example.com/files/video.mkv","rename_to":"My Show E01"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	rec := decodeJob(t, resp)
	assert.Equal(t, "My Show E01", rec.Filename)
	assert.True(t, rec.Renamed)

	require.Len(t, dispatcher.submitted, 1)
	assert.True(t, dispatcher.submitted[0].Renamed)
}

func TestJobs_SubmitValidation(t *testing.T) {
	srv := newJobsServer(memory.NewLedger(), &fakeDispatcher{})
	defer srv.Close()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"missing url", `{}`},
		{"localhost blocked", `{"url":"http://localhost/file.bin"}`},
		{"loopback blocked", `{"url":"http://127.0.0.1/file.bin"}`},
		{"private range blocked", `{"url":"http://192.168.1.10/file.bin"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, srv.URL+"/jobs", tt.body)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestJobs_SubmitQueueFull(t *testing.T) {
	ledger := memory.NewLedger()
	srv := newJobsServer(ledger, &fakeDispatcher{submitErr: worker.ErrQueueFull})
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/jobs", `{"url":"https://example.com/file.bin"}`)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// The rejected job leaves no PENDING record and no index entry behind.
	ids, err := ledger.RecentIDs(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, ids)

	listResp := doRequest(t, http.MethodGet, srv.URL+"/jobs", "")
	defer listResp.Body.Close()

	var list struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	assert.Zero(t, list.Total)
}

func TestJobs_Get(t *testing.T) {
	ledger := memory.NewLedger()
	require.NoError(t, ledger.Put(context.Background(), "j1", &job.Job{
		ID:        "j1",
		Status:    job.StatusDownloading,
		CreatedAt: time.Now().UTC(),
	}))

	srv := newJobsServer(ledger, &fakeDispatcher{})
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/jobs/j1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rec := decodeJob(t, resp)
	assert.Equal(t, "j1", rec.ID)
	assert.Equal(t, job.StatusDownloading, rec.Status)
}

func TestJobs_GetNotFound(t *testing.T) {
	srv := newJobsServer(memory.NewLedger(), &fakeDispatcher{})
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/jobs/ghost", "")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobs_List(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()

	for _, j := range []struct {
		id     string
		status job.Status
	}{
		{"a", job.StatusCompleted},
		{"b", job.StatusDownloading},
		{"c", job.StatusFailed},
	} {
		require.NoError(t, ledger.Put(ctx, j.id, &job.Job{ID: j.id, Status: j.status, CreatedAt: time.Now().UTC()}))
		require.NoError(t, ledger.PushRecent(ctx, j.id))
	}

	// An indexed id without a record: expired, must be skipped.
	require.NoError(t, ledger.PushRecent(ctx, "expired"))

	srv := newJobsServer(ledger, &fakeDispatcher{})
	defer srv.Close()

	t.Run("newest first, expired skipped", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/jobs", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		defer resp.Body.Close()

		var list struct {
			Jobs  []*job.Job `json:"jobs"`
			Total int        `json:"total"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))

		require.Equal(t, 3, list.Total)
		assert.Equal(t, "c", list.Jobs[0].ID)
		assert.Equal(t, "b", list.Jobs[1].ID)
		assert.Equal(t, "a", list.Jobs[2].ID)
	})

	t.Run("status filter", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/jobs?status=failed", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		defer resp.Body.Close()

		var list struct {
			Jobs []*job.Job `json:"jobs"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))

		require.Len(t, list.Jobs, 1)
		assert.Equal(t, "c", list.Jobs[0].ID)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/jobs?status=sleeping", "")
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("limit out of range rejected", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/jobs?limit=500", "")
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestJobs_DeleteActiveCancels(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	require.NoError(t, ledger.Put(ctx, "j1", &job.Job{ID: "j1", Status: job.StatusDownloading}))
	require.NoError(t, ledger.PushRecent(ctx, "j1"))

	dispatcher := &fakeDispatcher{cancelOK: true}
	srv := newJobsServer(ledger, dispatcher)
	defer srv.Close()

	resp := doRequest(t, http.MethodDelete, srv.URL+"/jobs/j1", "")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"j1"}, dispatcher.cancelled)

	_, err := ledger.Get(ctx, "j1")
	assert.Error(t, err)

	ids, err := ledger.RecentIDs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestJobs_DeleteTerminalSkipsCancel(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	require.NoError(t, ledger.Put(ctx, "j2", &job.Job{ID: "j2", Status: job.StatusCompleted}))

	dispatcher := &fakeDispatcher{}
	srv := newJobsServer(ledger, dispatcher)
	defer srv.Close()

	resp := doRequest(t, http.MethodDelete, srv.URL+"/jobs/j2", "")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, dispatcher.cancelled)
}

func TestJobs_DeleteNotFound(t *testing.T) {
	srv := newJobsServer(memory.NewLedger(), &fakeDispatcher{})
	defer srv.Close()

	resp := doRequest(t, http.MethodDelete, srv.URL+"/jobs/ghost", "")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
