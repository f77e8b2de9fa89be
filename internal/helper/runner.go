package helper

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jkorri/tmcli/internal/clienterr"
	"github.com/jkorri/tmcli/internal/proc"
	"github.com/jkorri/tmcli/internal/protocol"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// kill reasons, recorded once per execution. Whoever swaps the flag first
// owns the outcome; a natural exit is only honored when the flag is unset.
const (
	reasonNone int32 = iota
	reasonTimeout
	reasonInterrupt
)

var execCommandFn = exec.Command

// Runner executes helper invocations. It is safe for concurrent use;
// concurrent invocations share nothing but this configuration.
type Runner struct {
	// Exe is the helper executable path.
	Exe string
	// ClientName and ClientVersion identify this client in core actions.
	ClientName    string
	ClientVersion string
	// Timeout is the fixed wall-clock limit per invocation.
	Timeout time.Duration
}

// Outcome is the terminal state of a successfully exited invocation: every
// record collected from stdout plus the accumulated stderr text. The helper
// may still have reported a logical error inside the stream; classification
// of the last record decides that.
type Outcome struct {
	Records []protocol.Record
	Stderr  string
}

// Last returns the authoritative final record.
func (o *Outcome) Last() (protocol.Record, bool) {
	if len(o.Records) == 0 {
		return protocol.Record{}, false
	}
	return o.Records[len(o.Records)-1], true
}

// Execution is one in-flight invocation. Interrupt may be called from any
// goroutine at any time before completion.
type Execution struct {
	cmd     *exec.Cmd
	timeout time.Duration
	reason  atomic.Int32
	timer   *time.Timer
	done    chan struct{}

	outcome *Outcome
	err     error
}

// Run executes an invocation to completion.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*Outcome, error) {
	ex, err := r.Start(ctx, inv)
	if err != nil {
		return nil, err
	}
	return ex.Wait()
}

// Start spawns the helper and begins streaming its output. The returned
// Execution resolves once the process has exited and stdout is fully
// drained, so a final record flushed just before exit is never lost.
func (r *Runner) Start(ctx context.Context, inv Invocation) (*Execution, error) {
	if r.Exe == "" {
		panic("helper: runner constructed without an executable")
	}

	args := inv.Args
	if inv.Core {
		args = append([]string{
			"core",
			"--client-name", r.ClientName,
			"--client-version", r.ClientVersion,
		}, inv.Args...)
	}

	cmd := execCommandFn(r.Exe, args...)
	cmd.Env = os.Environ()
	for k, v := range inv.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.SysProcAttr = proc.GroupAttr()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: fmt.Sprintf("piping stdout: %v", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: fmt.Sprintf("piping stderr: %v", err)}
	}
	var stdin io.WriteCloser
	if inv.Stdin != "" {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: fmt.Sprintf("piping stdin: %v", err)}
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: fmt.Sprintf("spawning helper: %v", err)}
	}

	ex := &Execution{cmd: cmd, timeout: r.Timeout, done: make(chan struct{})}

	if stdin != nil {
		go func() {
			_, _ = io.WriteString(stdin, inv.Stdin+"\n")
			_ = stdin.Close()
		}()
	}

	if r.Timeout > 0 {
		ex.timer = time.AfterFunc(r.Timeout, func() {
			ex.kill(reasonTimeout)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			ex.kill(reasonInterrupt)
		case <-ex.done:
		}
	}()

	records := make(chan protocol.Record, 16)
	var stderrBuf strings.Builder

	var pumps errgroup.Group
	pumps.Go(func() error {
		readRecords(stdout, records)
		return nil
	})
	pumps.Go(func() error {
		pumpStderr(stderr, &stderrBuf, inv.OnStderr)
		return nil
	})

	go func() {
		var recs []protocol.Record
		for rec := range records {
			recs = append(recs, rec)
			if inv.OnRecord != nil {
				inv.OnRecord(rec)
			}
		}
		_ = pumps.Wait()
		waitErr := cmd.Wait()
		if ex.timer != nil {
			ex.timer.Stop()
		}
		ex.finish(recs, stderrBuf.String(), waitErr)
		close(ex.done)
	}()

	return ex, nil
}

// Interrupt forcibly kills the helper's process tree. It is idempotent and
// always supersedes a concurrently resolving natural exit.
func (e *Execution) Interrupt() {
	e.kill(reasonInterrupt)
}

// Wait blocks until the invocation resolves.
func (e *Execution) Wait() (*Outcome, error) {
	<-e.done
	return e.outcome, e.err
}

func (e *Execution) kill(reason int32) {
	if !e.reason.CompareAndSwap(reasonNone, reason) {
		return
	}
	if e.cmd.Process != nil {
		proc.KillTree(e.cmd.Process)
	}
}

func (e *Execution) finish(recs []protocol.Record, stderrText string, waitErr error) {
	switch e.reason.Load() {
	case reasonInterrupt:
		e.err = &clienterr.RuntimeError{Kind: clienterr.KindInterrupted, Msg: "invocation was killed"}
	case reasonTimeout:
		e.err = &clienterr.RuntimeError{Kind: clienterr.KindTimeout, Msg: fmt.Sprintf("no final response within %s", e.timeout)}
	default:
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			e.err = &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: waitErr.Error()}
			return
		}
		// The exit code is not authoritative; the last record decides.
		e.outcome = &Outcome{Records: recs, Stderr: stderrText}
	}
}

// readRecords decodes newline-delimited records until stdout closes.
// Undecodable lines are logged and dropped. A trailing fragment without a
// newline is a warning, never an error: the prior complete record stays
// authoritative.
func readRecords(r io.Reader, out chan<- protocol.Record) {
	defer close(out)

	rd := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := rd.ReadBytes('\n')
		if err != nil {
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				log.Warnf("discarding partial helper output: %s", truncateForLog(trimmed))
			}
			if err != io.EOF {
				log.Debugf("helper stdout closed: %v", err)
			}
			return
		}

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		rec, derr := protocol.DecodeLine(trimmed)
		if derr != nil {
			log.WithField("error", derr).Warn("dropped undecodable helper line")
			continue
		}
		out <- rec
	}
}

func pumpStderr(r io.Reader, buf *strings.Builder, onChunk func(string)) {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			s := string(chunk[:n])
			buf.WriteString(s)
			if onChunk != nil {
				onChunk(s)
			}
		}
		if err != nil {
			return
		}
	}
}

func truncateForLog(b []byte) string {
	const max = 200
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
