package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jkorri/tmcli/internal/clienterr"
	"github.com/jkorri/tmcli/internal/config"
	"github.com/jkorri/tmcli/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestHTTPBackend(t *testing.T, handler http.Handler) (*HTTPBackend, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.API.BaseURL = srv.URL
	cfg.API.TokenURL = srv.URL + "/oauth/token"
	cfg.API.ClientID = "id"
	cfg.API.ClientSecret = "secret"
	cfg.API.ClientName = "tmcli-tests"
	cfg.API.ClientVersion = "0.0.1"
	cfg.Legacy.Java = "/usr/bin/java"
	cfg.Legacy.Jar = "/opt/tmc/tmc-langs.jar"

	dir := t.TempDir()
	b := NewHTTPBackend(cfg,
		NewFileWorkspace(filepath.Join(dir, "exercises.json")),
		token.NewStore(filepath.Join(dir, "token.json")))
	b.exercisesRoot = filepath.Join(dir, "exercises")
	b.pollInterval = 10 * time.Millisecond
	return b, srv.URL
}

func TestHTTPOrganizationsCached(t *testing.T) {
	var hits atomic.Int32
	b, _ := newTestHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/org.json", r.URL.Path)
		w.Write([]byte(`[{"name":"HY","slug":"hy"}]`))
	}))

	first, err := b.Organizations(context.Background(), true)
	require.NoError(t, err)
	second, err := b.Organizations(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, hits.Load(), "second lookup must not hit the network")

	_, err = b.Organizations(context.Background(), false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load(), "cache=false must refetch")
}

func TestHTTPCourseDetailsUnwrapsEnvelope(t *testing.T) {
	b, _ := newTestHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/core/courses/7", r.URL.Path)
		w.Write([]byte(`{"course":{"id":7,"name":"mooc","title":"MOOC","exercises":[{"id":42,"name":"part01-hello"}]}}`))
	}))

	details, err := b.CourseDetails(context.Background(), 7, false)
	require.NoError(t, err)
	assert.Equal(t, 7, details.ID)
	require.Len(t, details.Exercises, 1)
	assert.Equal(t, "part01-hello", details.Exercises[0].Name)
}

func TestHTTPAuthenticateStoresTokenAndRejectsSecondLogin(t *testing.T) {
	b, _ := newTestHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/token", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok123","token_type":"bearer"}`))
	}))

	require.NoError(t, b.Authenticate(context.Background(), "student", "hunter2"))

	authed, err := b.IsAuthenticated(context.Background())
	require.NoError(t, err)
	assert.True(t, authed)

	err = b.Authenticate(context.Background(), "student", "hunter2")
	var authErr *clienterr.AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}

func TestHTTPDeauthenticateIsLocal(t *testing.T) {
	b, _ := newTestHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("logout must not call the server, got %s", r.URL.Path)
	}))
	require.NoError(t, b.tokens.Save(&oauth2.Token{AccessToken: "tok", TokenType: "bearer"}))

	require.NoError(t, b.Deauthenticate(context.Background()))

	authed, err := b.IsAuthenticated(context.Background())
	require.NoError(t, err)
	assert.False(t, authed)
}

func TestHTTPWaitForSubmissionResultPolls(t *testing.T) {
	var hits atomic.Int32
	b, baseURL := newTestHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.Write([]byte(`{"status":"processing"}`))
			return
		}
		w.Write([]byte(`{"status":"ok","points":["1.1"],"test_cases":[{"name":"t1","successful":true}]}`))
	}))

	status, err := b.WaitForSubmissionResult(context.Background(), baseURL+"/submissions/5")
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)
	assert.False(t, status.Processing())
	assert.EqualValues(t, 3, hits.Load())
}

func TestHTTPWaitForSubmissionResultCancel(t *testing.T) {
	b, baseURL := newTestHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"processing"}`))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := b.WaitForSubmissionResult(ctx, baseURL+"/submissions/5")
	require.Error(t, err)
	assert.True(t, clienterr.IsInterrupted(err))
}

func TestHTTPSubmitFeedbackIndexedFields(t *testing.T) {
	b, baseURL := newTestHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "1", r.PostForm.Get("answers[0][question_id]"))
		assert.Equal(t, "great", r.PostForm.Get("answers[0][answer]"))
		assert.Equal(t, "2", r.PostForm.Get("answers[1][question_id]"))
		w.Write([]byte(`{}`))
	}))

	err := b.SubmitFeedback(context.Background(), baseURL+"/feedback", []FeedbackAnswer{
		{QuestionID: 1, Answer: "great"},
		{QuestionID: 2, Answer: "more"},
	})
	require.NoError(t, err)
}

func TestHTTPDownloadCompensatesOnArchiveFailure(t *testing.T) {
	b, _ := newTestHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/core/exercises/42" {
			w.Write([]byte(`{"id":42,"exercise_name":"part01-hello","course_name":"mooc","checksum":"c1","deadline":"2026-09-01"}`))
			return
		}
		http.Error(w, `{"error":"archive unavailable"}`, http.StatusInternalServerError)
	}))

	_, err := b.DownloadExercise(context.Background(), 42, "hy", nil)
	require.Error(t, err)
	var apiErr *clienterr.APIError
	assert.ErrorAs(t, err, &apiErr)

	_, ok := b.ws.ExercisePath(42)
	assert.False(t, ok, "failed download must leave no workspace entry")

	dest := exerciseDestination(b.exercisesRoot, "hy", &ExerciseDetails{
		ID: 42, Name: "part01-hello", CourseName: "mooc", Checksum: "c1", Deadline: "2026-09-01",
	})
	assert.NoDirExists(t, dest, "failed download must leave no partial directory")
}
