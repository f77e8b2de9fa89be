// Package helper owns the lifecycle of external helper invocations: spawn,
// stream, timeout, interrupt, drain, and final-outcome assembly.
package helper

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/jkorri/tmcli/internal/protocol"
)

// Invocation is an immutable descriptor of one helper call. It is created
// per facade operation and consumed once by the Runner.
type Invocation struct {
	// Args is the helper action and its arguments.
	Args []string
	// Core prefixes the standard client-identity arguments. Actions that
	// talk to the remote server on the user's behalf set it.
	Core bool
	// Env holds extra environment variables merged over the inherited
	// environment.
	Env map[string]string
	// Stdin, when non-empty, is written to the helper followed by a
	// newline. Credentials travel this way so they never show up in argv.
	Stdin string
	// OnRecord, when set, receives each decoded progress record in order.
	OnRecord func(protocol.Record)
	// OnStderr, when set, receives stderr chunks as they arrive.
	OnStderr func(string)
}

// Signature returns a deterministic key for this invocation's argument
// list, used to memoize idempotent reads.
func (inv Invocation) Signature() string {
	h := sha256.New()
	for _, a := range inv.Args {
		io.WriteString(h, a) //nolint:errcheck
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}
