package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jkorri/tmcli/internal/api"
	"github.com/jkorri/tmcli/internal/clienterr"
	"github.com/jkorri/tmcli/internal/config"
	"github.com/jkorri/tmcli/internal/legacy"
	"github.com/jkorri/tmcli/internal/paths"
	"github.com/jkorri/tmcli/internal/respcache"
	"github.com/jkorri/tmcli/internal/token"
	log "github.com/sirupsen/logrus"
)

// defaultPollInterval paces submission status polling.
const defaultPollInterval = 2 * time.Second

// HTTPBackend implements Backend against the REST API directly. Archive
// extraction, compression, and local test runs go through the deprecated
// JVM bridge; everything else is plain HTTP.
type HTTPBackend struct {
	api           *api.Client
	bridge        *legacy.Bridge
	cache         *respcache.Cache
	tokens        *token.Store
	ws            Workspace
	exercisesRoot string
	pollInterval  time.Duration
}

// NewHTTPBackend creates the legacy HTTP backend.
func NewHTTPBackend(cfg *config.Config, ws Workspace, tokens *token.Store) *HTTPBackend {
	if ws == nil {
		panic("backend: constructed without a workspace")
	}
	if tokens == nil {
		panic("backend: constructed without a token store")
	}
	return &HTTPBackend{
		api:           api.New(cfg.API, tokens),
		bridge:        legacy.NewBridge(cfg.Legacy.Java, cfg.Legacy.Jar, paths.LegacyOutputDir(), cfg.HelperTimeout()),
		cache:         respcache.New(),
		tokens:        tokens,
		ws:            ws,
		exercisesRoot: paths.ExercisesDir(),
		pollInterval:  defaultPollInterval,
	}
}

// fetchJSON performs a cached GET. Cache discipline matches the helper
// path: a hit that still decodes and validates is served without a network
// request, anything else runs exactly one fresh fetch whose body overwrites
// the stored entry.
func fetchJSON[T any](ctx context.Context, b *HTTPBackend, path string, useCache bool, check func(T) error) (T, error) {
	var zero T
	sig := "GET " + path

	if useCache {
		if ent, ok := b.cache.Get(sig); ok {
			var v T
			if err := json.Unmarshal(ent.Data, &v); err == nil && (check == nil || check(v) == nil) {
				log.WithField("signature", sig).Debug("served from response cache")
				return v, nil
			}
			log.WithField("signature", sig).Warn("cached response failed validation, refreshing")
		}
	}

	body, err := b.api.GetJSON(ctx, path)
	if err != nil {
		return zero, err
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return zero, &clienterr.APIError{Message: "unexpected response shape: " + err.Error()}
	}
	if check != nil {
		if err := check(v); err != nil {
			return zero, &clienterr.APIError{Message: "unexpected response shape: " + err.Error()}
		}
	}
	b.cache.Put(sig, respcache.Entry{Data: body})
	return v, nil
}

// Authenticate exchanges the credentials for a token and persists it. The
// token is only stored after the exchange fully succeeds.
func (b *HTTPBackend) Authenticate(ctx context.Context, username, password string) error {
	existing, err := b.tokens.Load()
	if err != nil {
		return err
	}
	if existing != nil {
		return &clienterr.AuthenticationError{Msg: "already logged in; log out first"}
	}

	tok, err := b.api.ExchangePassword(ctx, username, password)
	if err != nil {
		return err
	}
	return b.tokens.Save(tok)
}

func (b *HTTPBackend) IsAuthenticated(ctx context.Context) (bool, error) {
	tok, err := b.tokens.Load()
	if err != nil {
		return false, err
	}
	return tok != nil, nil
}

// Deauthenticate drops the local session. The legacy API has no revocation
// endpoint, so this is purely local.
func (b *HTTPBackend) Deauthenticate(ctx context.Context) error {
	if err := b.tokens.Clear(); err != nil {
		return err
	}
	b.cache.Clear()
	return nil
}

func (b *HTTPBackend) Organizations(ctx context.Context, useCache bool) ([]Organization, error) {
	return fetchJSON[[]Organization](ctx, b, "org.json", useCache, nil)
}

func (b *HTTPBackend) Courses(ctx context.Context, org string, useCache bool) ([]Course, error) {
	return fetchJSON[[]Course](ctx, b, fmt.Sprintf("core/org/%s/courses", url.PathEscape(org)), useCache, nil)
}

func (b *HTTPBackend) CourseDetails(ctx context.Context, courseID int, useCache bool) (*CourseDetails, error) {
	type wrapper struct {
		Course CourseDetails `json:"course"`
	}
	w, err := fetchJSON(ctx, b, fmt.Sprintf("core/courses/%d", courseID), useCache, func(w wrapper) error {
		if w.Course.ID == 0 {
			return fmt.Errorf("missing course id")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &w.Course, nil
}

func (b *HTTPBackend) ExerciseDetails(ctx context.Context, exerciseID int, useCache bool) (*ExerciseDetails, error) {
	d, err := fetchJSON(ctx, b, fmt.Sprintf("core/exercises/%d", exerciseID), useCache, func(d ExerciseDetails) error {
		if d.ID == 0 || d.Name == "" {
			return fmt.Errorf("missing exercise identity")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DownloadExercise fetches the exercise archive and extracts it through the
// bridge. Compensation mirrors the helper path: no partial directory and no
// workspace entry survive a failure.
func (b *HTTPBackend) DownloadExercise(ctx context.Context, exerciseID int, org string, progress ProgressFunc) (string, error) {
	report := func(pct float64, msg string) {
		if progress != nil {
			progress(pct, msg)
		}
	}

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

	compensate := func() {
		_ = os.RemoveAll(dest)
		_ = b.ws.RemoveExercise(exerciseID)
	}

	report(0.1, "downloading archive")
	if err := b.extractFresh(ctx, exerciseID, dest, report); err != nil {
		compensate()
		return "", err
	}
	report(1.0, "done")
	return dest, nil
}

// extractFresh downloads the exercise archive and unpacks it into dest.
func (b *HTTPBackend) extractFresh(ctx context.Context, exerciseID int, dest string, report ProgressFunc) error {
	archive, err := b.api.DownloadArchive(ctx, fmt.Sprintf("core/exercises/%d/download", exerciseID))
	if err != nil {
		return err
	}

	zipFile, err := os.CreateTemp("", "tmcli-*.zip")
	if err != nil {
		return &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: "creating archive file: " + err.Error()}
	}
	zipPath := zipFile.Name()
	defer os.Remove(zipPath)
	if _, err := zipFile.Write(archive); err != nil {
		zipFile.Close()
		return &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: "writing archive file: " + err.Error()}
	}
	if err := zipFile.Close(); err != nil {
		return &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: "writing archive file: " + err.Error()}
	}

	report(0.6, "extracting")
	_, err = b.bridge.RunWithOutput(ctx, "extract-project", zipPath, dest)
	return err
}

// ResetExercise wipes the local directory and re-extracts the published
// archive into the same path.
func (b *HTTPBackend) ResetExercise(ctx context.Context, exerciseID int, saveOld bool) error {
	path, err := b.exercisePath(exerciseID)
	if err != nil {
		return err
	}
	if saveOld {
		if _, err := b.SubmitExercise(ctx, exerciseID, SubmitOptions{}); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(path); err != nil {
		return &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: "clearing exercise dir: " + err.Error()}
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: "creating exercise dir: " + err.Error()}
	}
	return b.extractFresh(ctx, exerciseID, path, func(float64, string) {})
}

// RunTests runs the exercise's tests through the bridge. Interrupt cancels
// the bridge's context, which kills the JVM process group.
func (b *HTTPBackend) RunTests(ctx context.Context, exerciseID int) (*TestRun, error) {
	path, err := b.exercisePath(exerciseID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	type outcome struct {
		payload json.RawMessage
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		payload, err := b.bridge.Run(runCtx, "run-tests", path)
		ch <- outcome{payload, err}
	}()

	return &TestRun{
		interrupt: cancel,
		wait: func() (*RunResult, error) {
			out := <-ch
			cancel()
			if out.err != nil {
				return nil, out.err
			}
			var rr RunResult
			if err := json.Unmarshal(out.payload, &rr); err != nil || rr.Status == "" {
				return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: "unexpected response data type"}
			}
			return &rr, nil
		},
	}, nil
}

// SubmitExercise compresses the exercise through the bridge and uploads the
// archive as multipart form data.
func (b *HTTPBackend) SubmitExercise(ctx context.Context, exerciseID int, opts SubmitOptions) (*SubmissionResponse, error) {
	path, err := b.exercisePath(exerciseID)
	if err != nil {
		return nil, err
	}

	zipFile, err := os.CreateTemp("", "tmcli-*.zip")
	if err != nil {
		return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: "creating archive file: " + err.Error()}
	}
	zipPath := zipFile.Name()
	zipFile.Close()
	defer os.Remove(zipPath)

	if _, err := b.bridge.RunWithOutput(ctx, "compress-project", path, zipPath); err != nil {
		return nil, err
	}
	archive, err := os.ReadFile(zipPath)
	if err != nil {
		return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: "reading archive: " + err.Error()}
	}

	fields := map[string]string{}
	if opts.Paste {
		fields["paste"] = "1"
		if opts.PasteMessage != "" {
			fields["message_for_paste"] = opts.PasteMessage
		}
	}

	body, err := b.api.UploadSubmission(ctx, fmt.Sprintf("core/exercises/%d/submissions", exerciseID), archive, fields)
	if err != nil {
		return nil, err
	}
	var resp SubmissionResponse
	if err := json.Unmarshal(body, &resp); err != nil || (resp.ShowSubmissionURL == "" && resp.PasteURL == "") {
		return nil, &clienterr.APIError{Message: "unexpected response shape"}
	}
	return &resp, nil
}

// WaitForSubmissionResult polls the submission URL at a fixed interval
// until the server has finished grading.
func (b *HTTPBackend) WaitForSubmissionResult(ctx context.Context, submissionURL string) (*SubmissionStatus, error) {
	for {
		body, err := b.api.GetURL(ctx, submissionURL)
		if err != nil {
			return nil, err
		}
		var status SubmissionStatus
		if err := json.Unmarshal(body, &status); err != nil || status.Status == "" {
			return nil, &clienterr.APIError{Message: "unexpected response shape"}
		}
		if !status.Processing() {
			return &status, nil
		}

		select {
		case <-ctx.Done():
			return nil, &clienterr.RuntimeError{Kind: clienterr.KindInterrupted, Msg: "submission wait was cancelled"}
		case <-time.After(b.pollInterval):
		}
	}
}

// SubmitFeedback posts answers as an indexed form, the encoding the legacy
// feedback endpoint expects.
func (b *HTTPBackend) SubmitFeedback(ctx context.Context, feedbackURL string, answers []FeedbackAnswer) error {
	values := url.Values{}
	for i, a := range answers {
		values.Set(fmt.Sprintf("answers[%d][question_id]", i), strconv.Itoa(a.QuestionID))
		values.Set(fmt.Sprintf("answers[%d][answer]", i), a.Answer)
	}
	_, err := b.api.PostFormURL(ctx, feedbackURL, values)
	return err
}

func (b *HTTPBackend) exercisePath(exerciseID int) (string, error) {
	path, ok := b.ws.ExercisePath(exerciseID)
	if !ok {
		return "", &clienterr.RuntimeError{
			Kind: clienterr.KindProcess,
			Msg:  fmt.Sprintf("exercise %d is not downloaded", exerciseID),
		}
	}
	return path, nil
}
