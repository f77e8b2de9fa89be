// Package cli is the command-line front end: argument dispatch, output
// formatting, and the mapping of typed backend errors onto exit codes.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/jkorri/tmcli/internal/backend"
	"github.com/jkorri/tmcli/internal/clienterr"
	"github.com/jkorri/tmcli/internal/config"
	"github.com/jkorri/tmcli/internal/logging"
	"github.com/jkorri/tmcli/internal/paths"
	"github.com/jkorri/tmcli/internal/token"
)

// Exit codes. Operation failures (bad credentials, server refusals, helper
// errors) are distinct from usage mistakes and internal faults.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsageErr = 2
	ExitInternal = 3
)

var (
	rootStdout io.Writer = os.Stdout
	rootStderr io.Writer = os.Stderr

	// newBackendFn is a seam for the command tests.
	newBackendFn = func(cfg *config.Config, ws backend.Workspace, tokens *token.Store) backend.Backend {
		return backend.New(cfg, ws, tokens)
	}
)

// Run is the main CLI entry point. Returns an exit code.
func Run(args []string) int {
	if handled, code := handleRootFlags(args); handled {
		return code
	}
	if len(args) == 0 {
		printRootHelp(rootStderr)
		return ExitUsageErr
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(rootStderr, "tmcli: %v\n", err)
		return ExitInternal
	}
	if verr := config.Validate(cfg); verr != nil {
		fmt.Fprintf(rootStderr, "tmcli: invalid config: %v\n", verr)
		return ExitUsageErr
	}
	logging.Setup(cfg.Log)
	defer logging.Close()

	b := newBackendFn(cfg,
		backend.NewFileWorkspace(paths.WorkspaceIndexPath()),
		token.NewStore(paths.TokenPath()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return dispatch(ctx, b, args[0], args[1:])
}

func dispatch(ctx context.Context, b backend.Backend, command string, args []string) int {
	switch command {
	case "login":
		return cmdLogin(ctx, b, args)
	case "logout":
		return cmdLogout(ctx, b)
	case "status":
		return cmdStatus(ctx, b)
	case "organizations":
		return cmdOrganizations(ctx, b, args)
	case "courses":
		return cmdCourses(ctx, b, args)
	case "exercises":
		return cmdExercises(ctx, b, args)
	case "download":
		return cmdDownload(ctx, b, args)
	case "reset":
		return cmdReset(ctx, b, args)
	case "test":
		return cmdTest(ctx, b, args)
	case "submit":
		return cmdSubmit(ctx, b, args)
	case "paste":
		return cmdPaste(ctx, b, args)
	case "feedback":
		return cmdFeedback(ctx, b, args)
	default:
		fmt.Fprintf(rootStderr, "tmcli: unknown command: %s\n", command)
		printRootHelp(rootStderr)
		return ExitUsageErr
	}
}

// exitCodeFor maps typed errors onto exit codes: every expected runtime
// condition is an operation failure, anything untyped is internal.
func exitCodeFor(err error) int {
	switch err.(type) {
	case *clienterr.AuthenticationError,
		*clienterr.AuthorizationError,
		*clienterr.ConnectionError,
		*clienterr.APIError,
		*clienterr.RuntimeError:
		return ExitFailure
	default:
		return ExitInternal
	}
}

func fail(err error) int {
	fmt.Fprintf(rootStderr, "tmcli: %v\n", err)
	return exitCodeFor(err)
}

func usage(msg string) int {
	fmt.Fprintf(rootStderr, "tmcli: %s\n", msg)
	return ExitUsageErr
}

func printRootHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  tmcli login --email <address>")
	fmt.Fprintln(out, "  tmcli logout | status")
	fmt.Fprintln(out, "  tmcli organizations [--no-cache]")
	fmt.Fprintln(out, "  tmcli courses <org> [--no-cache]")
	fmt.Fprintln(out, "  tmcli exercises <course-id> [--no-cache]")
	fmt.Fprintln(out, "  tmcli download <org> <exercise-id>")
	fmt.Fprintln(out, "  tmcli reset <exercise-id> [--save-old]")
	fmt.Fprintln(out, "  tmcli test <exercise-id>")
	fmt.Fprintln(out, "  tmcli submit <exercise-id> [--wait]")
	fmt.Fprintln(out, "  tmcli paste <exercise-id> [--message <text>]")
	fmt.Fprintln(out, "  tmcli feedback <url> --answer <id>=<text> ...")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Global flags:")
	fmt.Fprintln(out, "  --help, -h       Show help")
	fmt.Fprintln(out, "  --version, -V    Show version")
}
