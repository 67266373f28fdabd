// Package submit defines the contract with the remote transfer service. The
// service is an external collaborator: it accepts a finished manifest and
// returns an opaque task handle for later status queries. Its wire protocol
// and retry policy are its own business; the pipeline only requires this
// interface and treats any submission failure as fatal for the run.
package submit

import (
	"context"
	"fmt"

	"github.com/rwilfong/globus-transfer/internal/manifest"
)

// TaskHandle identifies a submitted transfer for later status queries.
type TaskHandle struct {
	ID string
}

// SubmissionError wraps a failed submission with the manifest label so run
// summaries can name what was lost.
type SubmissionError struct {
	Label string
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit manifest %q: %v", e.Label, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Submitter accepts one manifest per run, atomically: either the whole
// manifest is accepted and a task handle returned, or nothing was submitted.
type Submitter interface {
	Submit(ctx context.Context, m *manifest.Manifest) (TaskHandle, error)
}

// Func adapts a function to the Submitter interface, mostly for tests.
type Func func(ctx context.Context, m *manifest.Manifest) (TaskHandle, error)

func (f Func) Submit(ctx context.Context, m *manifest.Manifest) (TaskHandle, error) {
	return f(ctx, m)
}
