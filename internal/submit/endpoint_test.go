package submit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwilfong/globus-transfer/internal/manifest"
	"github.com/rwilfong/globus-transfer/internal/submit"
)

func TestEndpoint_Submit(t *testing.T) {
	t.Parallel()

	var got struct {
		Label          string `json:"label"`
		VerifyChecksum bool   `json:"verify_checksum"`
		Items          []struct {
			Source string `json:"source"`
			Dest   string `json:"destination"`
			Kind   string `json:"kind"`
		} `json:"items"`
	}
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task_id": "task-42"}`))
	}))
	defer srv.Close()

	m := &manifest.Manifest{
		Label:  "Sync_2025-06-01",
		Policy: manifest.SyncPolicy{VerifyChecksum: true},
		Items: []manifest.Item{
			{Source: "/stage/L_a.tar", Dest: "/dst/a.tar", Kind: manifest.ArchivedBundle},
		},
	}

	ep := &submit.Endpoint{URL: srv.URL, Token: "sekrit", Timeout: 5 * time.Second}
	task, err := ep.Submit(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, "task-42", task.ID)
	assert.Equal(t, "Bearer sekrit", auth)
	assert.Equal(t, "Sync_2025-06-01", got.Label)
	assert.True(t, got.VerifyChecksum)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "archived-bundle", got.Items[0].Kind)
}

func TestEndpoint_ServerErrorIsSubmissionError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	m := &manifest.Manifest{Label: "Sync_2025-06-02"}
	ep := &submit.Endpoint{URL: srv.URL}

	_, err := ep.Submit(context.Background(), m)

	var subErr *submit.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "Sync_2025-06-02", subErr.Label)
	assert.Contains(t, subErr.Error(), "Sync_2025-06-02")
}

func TestEndpoint_MissingTaskID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ep := &submit.Endpoint{URL: srv.URL}
	_, err := ep.Submit(context.Background(), &manifest.Manifest{Label: "L"})

	var subErr *submit.SubmissionError
	require.ErrorAs(t, err, &subErr)
}

func TestEndpoint_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"task_id":"late"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ep := &submit.Endpoint{URL: srv.URL}
	_, err := ep.Submit(ctx, &manifest.Manifest{Label: "L"})

	var subErr *submit.SubmissionError
	require.ErrorAs(t, err, &subErr)
}

func TestFunc_Adapter(t *testing.T) {
	t.Parallel()

	called := false
	s := submit.Func(func(_ context.Context, m *manifest.Manifest) (submit.TaskHandle, error) {
		called = true
		assert.Equal(t, "L", m.Label)
		return submit.TaskHandle{ID: "x"}, nil
	})

	task, err := s.Submit(context.Background(), &manifest.Manifest{Label: "L"})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "x", task.ID)
}
