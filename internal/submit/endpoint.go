package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rwilfong/globus-transfer/internal/manifest"
)

// DefaultTimeout bounds a submission when the caller does not supply one.
// Submission is the only network-bound step of a run and must never block
// indefinitely.
const DefaultTimeout = 2 * time.Minute

// Endpoint submits manifests to a transfer service over HTTP. The payload is
// a flat JSON rendition of the manifest; the task id comes back in the
// response body.
type Endpoint struct {
	URL     string
	Token   string // bearer token from the credential store; optional
	Timeout time.Duration
	Client  *http.Client // defaults to http.DefaultClient
}

type wireItem struct {
	Source string `json:"source"`
	Dest   string `json:"destination"`
	Kind   string `json:"kind"`
	Digest string `json:"digest,omitempty"`
}

type wireManifest struct {
	Label          string     `json:"label"`
	VerifyChecksum bool       `json:"verify_checksum"`
	PreserveMtime  bool       `json:"preserve_mtime"`
	Items          []wireItem `json:"items"`
}

type wireTask struct {
	TaskID string `json:"task_id"`
}

// Submit posts the manifest and returns the service's task handle. Every
// failure path comes back as a *SubmissionError carrying the manifest label.
func (e *Endpoint) Submit(ctx context.Context, m *manifest.Manifest) (TaskHandle, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := wireManifest{
		Label:          m.Label,
		VerifyChecksum: m.Policy.VerifyChecksum,
		PreserveMtime:  m.Policy.PreserveMtime,
		Items:          make([]wireItem, 0, len(m.Items)),
	}
	for _, it := range m.Items {
		payload.Items = append(payload.Items, wireItem{
			Source: it.Source,
			Dest:   it.Dest,
			Kind:   it.Kind.String(),
			Digest: it.Digest,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return TaskHandle{}, &SubmissionError{Label: m.Label, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return TaskHandle{}, &SubmissionError{Label: m.Label, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if e.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.Token)
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return TaskHandle{}, &SubmissionError{Label: m.Label, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return TaskHandle{}, &SubmissionError{
			Label: m.Label,
			Err:   fmt.Errorf("endpoint returned %s: %s", resp.Status, bytes.TrimSpace(snippet)),
		}
	}

	var task wireTask
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return TaskHandle{}, &SubmissionError{Label: m.Label, Err: fmt.Errorf("decode response: %w", err)}
	}
	if task.TaskID == "" {
		return TaskHandle{}, &SubmissionError{Label: m.Label, Err: fmt.Errorf("endpoint returned no task id")}
	}

	return TaskHandle{ID: task.TaskID}, nil
}
