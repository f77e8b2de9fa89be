//go:build unix

package helper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jkorri/tmcli/internal/clienterr"
	"github.com/jkorri/tmcli/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helper.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func testRunner(exe string) *Runner {
	return &Runner{
		Exe:           exe,
		ClientName:    "tmcli-tests",
		ClientVersion: "0.0.1",
		Timeout:       10 * time.Second,
	}
}

func TestRunCollectsRecordsInOrder(t *testing.T) {
	exe := writeScript(t, `
printf '{"data":null,"message":"working","percent-done":0.5,"result":"processing","status":"in-progress"}\n'
printf '{"data":{"access_token":"abc"},"message":null,"percent-done":1,"result":"logged-in","status":"finished"}\n'
`)

	var seen []protocol.Record
	out, err := testRunner(exe).Run(context.Background(), Invocation{
		Args:     []string{"logged-in"},
		OnRecord: func(rec protocol.Record) { seen = append(seen, rec) },
	})
	require.NoError(t, err)
	require.Len(t, out.Records, 2)
	assert.Equal(t, protocol.StatusInProgress, out.Records[0].Status)

	last, ok := out.Last()
	require.True(t, ok)
	assert.Equal(t, protocol.ResultLoggedIn, last.Result)
	assert.JSONEq(t, `{"access_token":"abc"}`, string(last.Data))

	require.Len(t, seen, 2)
	assert.Equal(t, out.Records, seen)
}

func TestRunDiscardsPartialTrailingLine(t *testing.T) {
	exe := writeScript(t, `
printf '{"data":null,"message":null,"percent-done":1,"result":"finished","status":"finished"}\n'
printf '{"status":"fini'
`)

	out, err := testRunner(exe).Run(context.Background(), Invocation{Args: []string{"noop"}})
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	last, _ := out.Last()
	assert.Equal(t, protocol.StatusFinished, last.Status)
}

func TestRunDropsUndecodableLines(t *testing.T) {
	exe := writeScript(t, `
echo 'not json at all'
printf '{"data":null,"message":null,"percent-done":0,"result":"bogus-tag","status":"finished"}\n'
printf '{"data":null,"message":null,"percent-done":1,"result":"finished","status":"finished"}\n'
`)

	out, err := testRunner(exe).Run(context.Background(), Invocation{Args: []string{"noop"}})
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
}

func TestRunNonZeroExitStillYieldsOutcome(t *testing.T) {
	exe := writeScript(t, `
printf '{"data":null,"message":"boom","percent-done":1,"result":"error","status":"finished"}\n'
exit 3
`)

	out, err := testRunner(exe).Run(context.Background(), Invocation{Args: []string{"noop"}})
	require.NoError(t, err)
	last, ok := out.Last()
	require.True(t, ok)
	assert.Equal(t, protocol.ResultError, last.Result)
}

func TestRunCapturesStderr(t *testing.T) {
	exe := writeScript(t, `
echo 'helper log line' 1>&2
printf '{"data":null,"message":null,"percent-done":1,"result":"finished","status":"finished"}\n'
`)

	var chunks string
	out, err := testRunner(exe).Run(context.Background(), Invocation{
		Args:     []string{"noop"},
		OnStderr: func(s string) { chunks += s },
	})
	require.NoError(t, err)
	assert.Contains(t, out.Stderr, "helper log line")
	assert.Contains(t, chunks, "helper log line")
}

func TestRunWritesStdinPayload(t *testing.T) {
	exe := writeScript(t, `
read line
echo "stdin:$line" 1>&2
printf '{"data":null,"message":null,"percent-done":1,"result":"finished","status":"finished"}\n'
`)

	out, err := testRunner(exe).Run(context.Background(), Invocation{
		Args:  []string{"login"},
		Stdin: "c2VjcmV0",
	})
	require.NoError(t, err)
	assert.Contains(t, out.Stderr, "stdin:c2VjcmV0")
}

func TestRunCorePrefixesClientIdentity(t *testing.T) {
	exe := writeScript(t, `
first=1
printf '{"data":['
for a in "$@"; do
  if [ $first -eq 0 ]; then printf ','; fi
  printf '"%s"' "$a"
  first=0
done
printf '],"message":null,"percent-done":1,"result":"executed-command","status":"finished"}\n'
`)

	out, err := testRunner(exe).Run(context.Background(), Invocation{
		Args: []string{"logged-in"},
		Core: true,
	})
	require.NoError(t, err)
	last, _ := out.Last()
	assert.JSONEq(t,
		`["core","--client-name","tmcli-tests","--client-version","0.0.1","logged-in"]`,
		string(last.Data))
}

func TestRunMergesEnvOverrides(t *testing.T) {
	exe := writeScript(t, `
printf '{"data":["%s"],"message":null,"percent-done":1,"result":"executed-command","status":"finished"}\n' "$TMCLI_TEST_ENV"
`)

	out, err := testRunner(exe).Run(context.Background(), Invocation{
		Args: []string{"noop"},
		Env:  map[string]string{"TMCLI_TEST_ENV": "from-invocation"},
	})
	require.NoError(t, err)
	last, _ := out.Last()
	assert.JSONEq(t, `["from-invocation"]`, string(last.Data))
}

func TestTimeoutKillsProcessTree(t *testing.T) {
	exe := writeScript(t, `sleep 30`)
	r := testRunner(exe)
	r.Timeout = 150 * time.Millisecond

	start := time.Now()
	_, err := r.Run(context.Background(), Invocation{Args: []string{"noop"}})
	require.Error(t, err)
	assert.True(t, clienterr.IsTimeout(err))
	assert.False(t, clienterr.IsInterrupted(err), "timeout must stay distinguishable from manual interrupt")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInterruptSupersedesOutcomeAndIsIdempotent(t *testing.T) {
	exe := writeScript(t, `sleep 30`)

	ex, err := testRunner(exe).Start(context.Background(), Invocation{Args: []string{"noop"}})
	require.NoError(t, err)

	ex.Interrupt()
	ex.Interrupt() // second call is a no-op

	_, err = ex.Wait()
	require.Error(t, err)
	assert.True(t, clienterr.IsInterrupted(err))
}

func TestInterruptAfterCompletionDoesNotChangeOutcome(t *testing.T) {
	exe := writeScript(t, `printf '{"data":null,"message":null,"percent-done":1,"result":"finished","status":"finished"}\n'`)

	ex, err := testRunner(exe).Start(context.Background(), Invocation{Args: []string{"noop"}})
	require.NoError(t, err)
	out, err := ex.Wait()
	require.NoError(t, err)
	require.NotNil(t, out)

	ex.Interrupt()
	out2, err2 := ex.Wait()
	assert.Same(t, out, out2)
	assert.NoError(t, err2)
}

func TestContextCancelInterrupts(t *testing.T) {
	exe := writeScript(t, `sleep 30`)
	ctx, cancel := context.WithCancel(context.Background())

	ex, err := testRunner(exe).Start(ctx, Invocation{Args: []string{"noop"}})
	require.NoError(t, err)
	cancel()

	_, err = ex.Wait()
	require.Error(t, err)
	assert.True(t, clienterr.IsInterrupted(err))
}

func TestSpawnFailure(t *testing.T) {
	r := testRunner(filepath.Join(t.TempDir(), "does-not-exist"))
	_, err := r.Run(context.Background(), Invocation{Args: []string{"noop"}})
	require.Error(t, err)
	var re *clienterr.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, clienterr.KindProcess, re.Kind)
}

func TestInvocationSignature(t *testing.T) {
	a := Invocation{Args: []string{"courses", "--organization", "mooc"}}
	b := Invocation{Args: []string{"courses", "--organization", "mooc"}}
	c := Invocation{Args: []string{"courses", "--organization", "hy"}}

	assert.Equal(t, a.Signature(), b.Signature())
	assert.NotEqual(t, a.Signature(), c.Signature())
	// argument boundaries matter
	d := Invocation{Args: []string{"courses", "--organization mooc"}}
	assert.NotEqual(t, a.Signature(), d.Signature())
}
