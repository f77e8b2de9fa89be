package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jkorri/tmcli/internal/clienterr"
	"github.com/jkorri/tmcli/internal/config"
	"github.com/jkorri/tmcli/internal/helper"
	"github.com/jkorri/tmcli/internal/paths"
	"github.com/jkorri/tmcli/internal/protocol"
	"github.com/jkorri/tmcli/internal/respcache"
	"github.com/jkorri/tmcli/internal/token"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Seams for the facade tests: canned outcomes instead of real processes.
var (
	runHelperFn = func(ctx context.Context, r *helper.Runner, inv helper.Invocation) (*helper.Outcome, error) {
		return r.Run(ctx, inv)
	}
	startHelperFn = func(ctx context.Context, r *helper.Runner, inv helper.Invocation) (func() (*helper.Outcome, error), func(), error) {
		ex, err := r.Start(ctx, inv)
		if err != nil {
			return nil, nil, err
		}
		return ex.Wait, ex.Interrupt, nil
	}
)

// HelperBackend implements Backend by orchestrating the external helper
// binary over newline-delimited JSON.
type HelperBackend struct {
	runner        *helper.Runner
	cache         *respcache.Cache
	tokens        *token.Store
	ws            Workspace
	env           map[string]string
	exercisesRoot string
}

// NewHelperBackend creates the helper-driven backend.
func NewHelperBackend(cfg *config.Config, ws Workspace, tokens *token.Store) *HelperBackend {
	if ws == nil {
		panic("backend: constructed without a workspace")
	}
	if tokens == nil {
		panic("backend: constructed without a token store")
	}
	return &HelperBackend{
		runner: &helper.Runner{
			Exe:           cfg.Helper.Path,
			ClientName:    cfg.API.ClientName,
			ClientVersion: cfg.API.ClientVersion,
			Timeout:       cfg.HelperTimeout(),
		},
		cache:         respcache.New(),
		tokens:        tokens,
		ws:            ws,
		env:           cfg.Helper.Env,
		exercisesRoot: paths.ExercisesDir(),
	}
}

func (b *HelperBackend) invocation(args []string, core bool) helper.Invocation {
	return helper.Invocation{Args: args, Core: core, Env: b.env}
}

// runValidated executes one invocation and validates its authoritative
// record. cacheable ops memoize the validated payload by invocation
// signature: a hit is served without spawning the helper, a miss or an
// explicit useCache=false runs exactly one fresh invocation whose result
// overwrites the stored entry.
func runValidated[T any](ctx context.Context, b *HelperBackend, inv helper.Invocation, cacheable, useCache bool, check func(T) error) (*protocol.Validated[T], error) {
	sig := inv.Signature()

	if cacheable && useCache {
		if ent, ok := b.cache.Get(sig); ok {
			rec := ent.Record
			rec.Data = ent.Data
			if v, err := protocol.Validate[T](rec, check); err == nil {
				log.WithField("signature", sig).Debug("served from response cache")
				return v, nil
			}
			// A stored entry that no longer passes validation is stale
			// beyond use; fall through to a fresh invocation.
			log.WithField("signature", sig).Warn("cached response failed validation, refreshing")
		}
	}

	out, err := runHelperFn(ctx, b.runner, inv)
	if err != nil {
		return nil, err
	}
	last, ok := out.Last()
	if !ok {
		return nil, &clienterr.RuntimeError{
			Kind: clienterr.KindProcess,
			Msg:  "helper produced no output; stderr: " + strings.TrimSpace(out.Stderr),
		}
	}
	v, err := protocol.Validate[T](last, check)
	if err != nil {
		return nil, err
	}
	if cacheable {
		b.cache.Put(sig, respcache.Entry{Data: last.Data, Record: last})
	}
	return v, nil
}

// helperToken is the token payload of a logged-in status record.
type helperToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Authenticate logs in over stdin. The password is base64-wrapped and never
// appears in argv. A trailing status check pulls the fresh token out of the
// helper into local storage.
func (b *HelperBackend) Authenticate(ctx context.Context, username, password string) error {
	authed, err := b.IsAuthenticated(ctx)
	if err != nil {
		return err
	}
	if authed {
		return &clienterr.AuthenticationError{Msg: "already logged in; log out first"}
	}

	inv := b.invocation([]string{"login", "--email", username, "--base64"}, true)
	inv.Stdin = base64.StdEncoding.EncodeToString([]byte(password))
	if _, err := runValidated[json.RawMessage](ctx, b, inv, false, false, nil); err != nil {
		return err
	}

	_, err = b.IsAuthenticated(ctx)
	return err
}

// IsAuthenticated asks the helper for the login state and re-syncs the two
// token stores: a helper-side token is mirrored locally, a local-only token
// is pushed into the helper.
func (b *HelperBackend) IsAuthenticated(ctx context.Context) (bool, error) {
	inv := b.invocation([]string{"logged-in"}, true)
	v, err := runValidated[*helperToken](ctx, b, inv, false, false, nil)
	if err != nil {
		return false, err
	}

	switch v.Result {
	case protocol.ResultLoggedIn:
		if v.Data != nil && v.Data.AccessToken != "" {
			tok := &oauth2.Token{AccessToken: v.Data.AccessToken, TokenType: v.Data.TokenType}
			if err := b.tokens.Save(tok); err != nil {
				return false, err
			}
		}
		return true, nil
	case protocol.ResultLoggedOut, protocol.ResultNotLoggedIn:
		local, err := b.tokens.Load()
		if err != nil {
			return false, err
		}
		if local == nil {
			return false, nil
		}
		if err := b.pushToken(ctx, local); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, &clienterr.RuntimeError{
			Kind: clienterr.KindProcess,
			Msg:  fmt.Sprintf("unexpected login state %q", v.Result),
		}
	}
}

// pushToken hands a locally stored token to the helper, again over stdin.
func (b *HelperBackend) pushToken(ctx context.Context, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: "encoding token: " + err.Error()}
	}
	inv := b.invocation([]string{"login", "--set-access-token", "--base64"}, true)
	inv.Stdin = base64.StdEncoding.EncodeToString(data)
	_, err = runValidated[json.RawMessage](ctx, b, inv, false, false, nil)
	return err
}

// Deauthenticate logs out. The local token is only cleared after the helper
// confirms, so a failed logout leaves the session intact on both sides.
func (b *HelperBackend) Deauthenticate(ctx context.Context) error {
	inv := b.invocation([]string{"logout"}, true)
	if _, err := runValidated[json.RawMessage](ctx, b, inv, false, false, nil); err != nil {
		return err
	}
	if err := b.tokens.Clear(); err != nil {
		return err
	}
	b.cache.Clear()
	return nil
}

func (b *HelperBackend) Organizations(ctx context.Context, useCache bool) ([]Organization, error) {
	inv := b.invocation([]string{"get-organizations"}, true)
	v, err := runValidated[[]Organization](ctx, b, inv, true, useCache, nil)
	if err != nil {
		return nil, err
	}
	return v.Data, nil
}

func (b *HelperBackend) Courses(ctx context.Context, org string, useCache bool) ([]Course, error) {
	inv := b.invocation([]string{"get-courses", "--organization", org}, true)
	v, err := runValidated[[]Course](ctx, b, inv, true, useCache, nil)
	if err != nil {
		return nil, err
	}
	return v.Data, nil
}

func (b *HelperBackend) CourseDetails(ctx context.Context, courseID int, useCache bool) (*CourseDetails, error) {
	inv := b.invocation([]string{"get-course-details", "--course-id", strconv.Itoa(courseID)}, true)
	v, err := runValidated(ctx, b, inv, true, useCache, func(d CourseDetails) error {
		if d.ID == 0 {
			return fmt.Errorf("missing course id")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v.Data, nil
}

func (b *HelperBackend) ExerciseDetails(ctx context.Context, exerciseID int, useCache bool) (*ExerciseDetails, error) {
	inv := b.invocation([]string{"get-exercise-details", "--exercise-id", strconv.Itoa(exerciseID)}, true)
	v, err := runValidated(ctx, b, inv, true, useCache, func(d ExerciseDetails) error {
		if d.ID == 0 || d.Name == "" {
			return fmt.Errorf("missing exercise identity")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v.Data, nil
}

// DownloadExercise resolves the destination from fresh exercise details,
// records it in the workspace, then lets the helper download into it. Any
// failure after the directory exists compensates by deleting both the
// directory and the workspace entry.
func (b *HelperBackend) DownloadExercise(ctx context.Context, exerciseID int, org string, progress ProgressFunc) (string, error) {
	details, err := b.ExerciseDetails(ctx, exerciseID, false)
	if err != nil {
		return "", err
	}

	dest := exerciseDestination(b.exercisesRoot, org, details)
	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: "creating exercise dir: " + err.Error()}
	}
	if err := b.ws.SetExercisePath(exerciseID, dest); err != nil {
		_ = os.RemoveAll(dest)
		return "", err
	}

	inv := b.invocation([]string{
		"download-or-update-exercises",
		"--exercise-id", strconv.Itoa(exerciseID),
		"--target", dest,
	}, true)
	if progress != nil {
		inv.OnRecord = func(rec protocol.Record) {
			progress(rec.PercentDone, rec.MessageText())
		}
	}

	if _, err := runValidated[json.RawMessage](ctx, b, inv, false, false, nil); err != nil {
		_ = os.RemoveAll(dest)
		_ = b.ws.RemoveExercise(exerciseID)
		return "", err
	}
	return dest, nil
}

func (b *HelperBackend) ResetExercise(ctx context.Context, exerciseID int, saveOld bool) error {
	path, err := b.exercisePath(exerciseID)
	if err != nil {
		return err
	}
	if saveOld {
		if _, err := b.SubmitExercise(ctx, exerciseID, SubmitOptions{}); err != nil {
			return err
		}
	}
	inv := b.invocation([]string{
		"reset-exercise",
		"--exercise-id", strconv.Itoa(exerciseID),
		"--exercise-path", path,
	}, true)
	_, err = runValidated[json.RawMessage](ctx, b, inv, false, false, nil)
	return err
}

// RunTests runs the exercise's tests locally. Local runs do not carry the
// client identity and are never cached.
func (b *HelperBackend) RunTests(ctx context.Context, exerciseID int) (*TestRun, error) {
	path, err := b.exercisePath(exerciseID)
	if err != nil {
		return nil, err
	}

	inv := b.invocation([]string{"run-tests", "--exercise-path", path}, false)
	wait, interrupt, err := startHelperFn(ctx, b.runner, inv)
	if err != nil {
		return nil, err
	}

	return &TestRun{
		interrupt: interrupt,
		wait: func() (*RunResult, error) {
			out, err := wait()
			if err != nil {
				return nil, err
			}
			last, ok := out.Last()
			if !ok {
				return nil, &clienterr.RuntimeError{
					Kind: clienterr.KindProcess,
					Msg:  "test run produced no output; stderr: " + strings.TrimSpace(out.Stderr),
				}
			}
			v, err := protocol.Validate(last, func(rr RunResult) error {
				if rr.Status == "" {
					return fmt.Errorf("missing run status")
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			rr := v.Data
			return &rr, nil
		},
	}, nil
}

func (b *HelperBackend) SubmitExercise(ctx context.Context, exerciseID int, opts SubmitOptions) (*SubmissionResponse, error) {
	path, err := b.exercisePath(exerciseID)
	if err != nil {
		return nil, err
	}

	args := []string{"submit", "--exercise-id", strconv.Itoa(exerciseID), "--submission-path", path}
	if opts.Paste {
		args = []string{"paste", "--exercise-id", strconv.Itoa(exerciseID), "--submission-path", path}
		if opts.PasteMessage != "" {
			args = append(args, "--message", opts.PasteMessage)
		}
	}

	v, err := runValidated(ctx, b, b.invocation(args, true), false, false, func(r SubmissionResponse) error {
		if r.ShowSubmissionURL == "" && r.PasteURL == "" {
			return fmt.Errorf("missing submission url")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r := v.Data
	return &r, nil
}

func (b *HelperBackend) WaitForSubmissionResult(ctx context.Context, submissionURL string) (*SubmissionStatus, error) {
	inv := b.invocation([]string{"wait-for-submission", "--submission-url", submissionURL}, true)
	v, err := runValidated(ctx, b, inv, false, false, func(s SubmissionStatus) error {
		if s.Status == "" {
			return fmt.Errorf("missing submission status")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s := v.Data
	return &s, nil
}

func (b *HelperBackend) SubmitFeedback(ctx context.Context, feedbackURL string, answers []FeedbackAnswer) error {
	args := []string{"send-feedback", "--feedback-url", feedbackURL}
	for _, a := range answers {
		args = append(args, "--feedback", strconv.Itoa(a.QuestionID), a.Answer)
	}
	_, err := runValidated[json.RawMessage](ctx, b, b.invocation(args, true), false, false, nil)
	return err
}

func (b *HelperBackend) exercisePath(exerciseID int) (string, error) {
	path, ok := b.ws.ExercisePath(exerciseID)
	if !ok {
		return "", &clienterr.RuntimeError{
			Kind: clienterr.KindProcess,
			Msg:  fmt.Sprintf("exercise %d is not downloaded", exerciseID),
		}
	}
	return path, nil
}
