// Package legacy shells out to the deprecated JVM-based helper. Unlike the
// primary runner there is no incremental streaming: one blocking shell
// command runs to completion and the JSON result is read back from a
// rotating output file afterwards. Kept only for the legacy HTTP backend's
// archive handling and local test runs.
package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/jkorri/tmcli/internal/clienterr"
	"github.com/jkorri/tmcli/internal/proc"
	log "github.com/sirupsen/logrus"
)

// outputSlots bounds temp-file growth: result files are reused round-robin
// instead of allocating a fresh one per command.
const outputSlots = 10

// Bridge runs legacy JVM helper commands.
type Bridge struct {
	Java      string
	Jar       string
	OutputDir string
	Timeout   time.Duration

	mu       sync.Mutex
	nextSlot int
}

// NewBridge creates a bridge writing results under outputDir.
func NewBridge(java, jar, outputDir string, timeout time.Duration) *Bridge {
	return &Bridge{Java: java, Jar: jar, OutputDir: outputDir, Timeout: timeout}
}

// Run executes one legacy action against an exercise directory, writing the
// JSON result to the next rotating output slot and returning the decoded
// payload.
func (b *Bridge) Run(ctx context.Context, action, exercisePath string) (json.RawMessage, error) {
	if err := os.MkdirAll(b.OutputDir, 0700); err != nil {
		return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: fmt.Sprintf("creating output dir: %v", err)}
	}
	return b.RunWithOutput(ctx, action, exercisePath, b.takeSlot())
}

// RunWithOutput executes one legacy action with an explicit output path.
// extract-project and compress-project write their product (tree, archive)
// to outputPath and report that path as the payload; every other action
// writes its JSON result there, which is read back after exit.
func (b *Bridge) RunWithOutput(ctx context.Context, action, exercisePath, outputPath string) (json.RawMessage, error) {
	if b.Java == "" || b.Jar == "" {
		panic("legacy: bridge constructed without java or jar path")
	}

	shellCmd := fmt.Sprintf(`%s -jar %s %s --exercisePath=%q --outputPath=%q`,
		b.Java, b.Jar, action, exercisePath, outputPath)
	log.WithField("action", action).Debugf("legacy helper: %s", shellCmd)

	cmd := exec.Command("sh", "-c", shellCmd)
	cmd.SysProcAttr = proc.GroupAttr()
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	if err := cmd.Start(); err != nil {
		return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: fmt.Sprintf("spawning legacy helper: %v", err)}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(b.Timeout)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: waitErr.Error()}
		}
	case <-timer.C:
		proc.KillTree(cmd.Process)
		<-done
		return nil, &clienterr.RuntimeError{Kind: clienterr.KindTimeout, Msg: fmt.Sprintf("no result within %s", b.Timeout)}
	case <-ctx.Done():
		proc.KillTree(cmd.Process)
		<-done
		return nil, &clienterr.RuntimeError{Kind: clienterr.KindInterrupted, Msg: "legacy command was killed"}
	}

	if action == "extract-project" || action == "compress-project" {
		return json.Marshal(outputPath)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess,
			Msg: fmt.Sprintf("no output file from %s: %v; helper said: %s", action, err, combined.String())}
	}
	if !json.Valid(data) {
		return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: "unexpected response data type"}
	}
	return json.RawMessage(data), nil
}

// takeSlot hands out output file paths round-robin across the fixed pool.
func (b *Bridge) takeSlot() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot := b.nextSlot
	b.nextSlot = (b.nextSlot + 1) % outputSlots
	return filepath.Join(b.OutputDir, fmt.Sprintf("output%d.txt", slot))
}
