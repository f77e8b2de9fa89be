// Package backend is the command facade: every editor-visible operation is
// a method here. Two implementations exist, selected by the insider flag;
// the helper-driven one orchestrates the external helper binary, the legacy
// one talks to the HTTP API directly and shells out to the old JVM helper
// for archive handling.
package backend

import (
	"context"

	"github.com/jkorri/tmcli/internal/config"
	"github.com/jkorri/tmcli/internal/token"
)

// Backend is the full set of coursework operations. Methods return the
// typed errors from clienterr; missing collaborators panic at construction.
type Backend interface {
	// Authenticate logs in with username and password. It fails when a
	// session is already active.
	Authenticate(ctx context.Context, username, password string) error
	// IsAuthenticated reports whether a session is active, re-syncing
	// token mirrors as a side effect.
	IsAuthenticated(ctx context.Context) (bool, error)
	// Deauthenticate logs out and drops all cached responses.
	Deauthenticate(ctx context.Context) error

	// Organizations lists course organizations.
	Organizations(ctx context.Context, useCache bool) ([]Organization, error)
	// Courses lists the courses of one organization.
	Courses(ctx context.Context, org string, useCache bool) ([]Course, error)
	// CourseDetails fetches a course and its exercise listing.
	CourseDetails(ctx context.Context, courseID int, useCache bool) (*CourseDetails, error)
	// ExerciseDetails fetches a single exercise.
	ExerciseDetails(ctx context.Context, exerciseID int, useCache bool) (*ExerciseDetails, error)

	// DownloadExercise downloads an exercise into the local workspace and
	// returns its path. A failed download leaves no workspace entry and no
	// partial directory behind.
	DownloadExercise(ctx context.Context, exerciseID int, org string, progress ProgressFunc) (string, error)
	// ResetExercise restores a downloaded exercise to its published state,
	// optionally submitting the current state first.
	ResetExercise(ctx context.Context, exerciseID int, saveOld bool) error

	// RunTests starts a local test run for a downloaded exercise.
	RunTests(ctx context.Context, exerciseID int) (*TestRun, error)

	// SubmitExercise uploads a downloaded exercise for grading, or as a
	// public paste when opts.Paste is set.
	SubmitExercise(ctx context.Context, exerciseID int, opts SubmitOptions) (*SubmissionResponse, error)
	// WaitForSubmissionResult blocks until the server has graded the
	// submission behind submissionURL.
	WaitForSubmissionResult(ctx context.Context, submissionURL string) (*SubmissionStatus, error)
	// SubmitFeedback posts answers to a submission's feedback form.
	SubmitFeedback(ctx context.Context, feedbackURL string, answers []FeedbackAnswer) error
}

// New selects the implementation: the helper-driven backend in insider
// mode, the legacy HTTP backend otherwise.
func New(cfg *config.Config, ws Workspace, tokens *token.Store) Backend {
	if cfg.Insider {
		return NewHelperBackend(cfg, ws, tokens)
	}
	return NewHTTPBackend(cfg, ws, tokens)
}

// TestRun is an in-flight local test run. Interrupt may be called from any
// goroutine; Result blocks until the run resolves.
type TestRun struct {
	wait      func() (*RunResult, error)
	interrupt func()
}

// NewTestRun assembles a run from resolve and interrupt callbacks.
func NewTestRun(wait func() (*RunResult, error), interrupt func()) *TestRun {
	return &TestRun{wait: wait, interrupt: interrupt}
}

// Result blocks until the run finishes and returns its outcome.
func (t *TestRun) Result() (*RunResult, error) {
	return t.wait()
}

// Interrupt kills the run. Idempotent; an interrupt always wins over a
// concurrently resolving natural exit.
func (t *TestRun) Interrupt() {
	t.interrupt()
}
