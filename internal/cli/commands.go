package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jkorri/tmcli/internal/backend"
)

var rootStdin io.Reader = os.Stdin

func cmdLogin(ctx context.Context, b backend.Backend, args []string) int {
	var email string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--email":
			if i+1 >= len(args) {
				return usage("--email requires a value")
			}
			i++
			email = args[i]
		default:
			return usage("unknown flag for login: " + args[i])
		}
	}
	if email == "" {
		return usage("login requires --email")
	}

	fmt.Fprint(rootStderr, "Password: ")
	password, err := readLine(rootStdin)
	if err != nil {
		fmt.Fprintf(rootStderr, "tmcli: reading password: %v\n", err)
		return ExitInternal
	}
	fmt.Fprintln(rootStderr)

	if err := b.Authenticate(ctx, email, password); err != nil {
		return fail(err)
	}
	fmt.Fprintln(rootStdout, "Logged in.")
	return ExitOK
}

func cmdLogout(ctx context.Context, b backend.Backend) int {
	if err := b.Deauthenticate(ctx); err != nil {
		return fail(err)
	}
	fmt.Fprintln(rootStdout, "Logged out.")
	return ExitOK
}

func cmdStatus(ctx context.Context, b backend.Backend) int {
	authed, err := b.IsAuthenticated(ctx)
	if err != nil {
		return fail(err)
	}
	if authed {
		fmt.Fprintln(rootStdout, "Logged in.")
	} else {
		fmt.Fprintln(rootStdout, "Not logged in.")
	}
	return ExitOK
}

func cmdOrganizations(ctx context.Context, b backend.Backend, args []string) int {
	useCache, rest := popNoCache(args)
	if len(rest) != 0 {
		return usage("unexpected arguments for organizations")
	}

	orgs, err := b.Organizations(ctx, useCache)
	if err != nil {
		return fail(err)
	}
	for _, o := range orgs {
		fmt.Fprintf(rootStdout, "%s\t%s\n", o.Slug, o.Name)
	}
	return ExitOK
}

func cmdCourses(ctx context.Context, b backend.Backend, args []string) int {
	useCache, rest := popNoCache(args)
	if len(rest) != 1 {
		return usage("courses requires an organization slug")
	}

	courses, err := b.Courses(ctx, rest[0], useCache)
	if err != nil {
		return fail(err)
	}
	for _, c := range courses {
		fmt.Fprintf(rootStdout, "%d\t%s\n", c.ID, c.Name)
	}
	return ExitOK
}

func cmdExercises(ctx context.Context, b backend.Backend, args []string) int {
	useCache, rest := popNoCache(args)
	if len(rest) != 1 {
		return usage("exercises requires a course id")
	}
	courseID, err := strconv.Atoi(rest[0])
	if err != nil {
		return usage("invalid course id: " + rest[0])
	}

	details, err := b.CourseDetails(ctx, courseID, useCache)
	if err != nil {
		return fail(err)
	}
	for _, e := range details.Exercises {
		fmt.Fprintf(rootStdout, "%d\t%s\n", e.ID, e.Name)
	}
	return ExitOK
}

func cmdDownload(ctx context.Context, b backend.Backend, args []string) int {
	if len(args) != 2 {
		return usage("download requires an organization slug and an exercise id")
	}
	exerciseID, err := strconv.Atoi(args[1])
	if err != nil {
		return usage("invalid exercise id: " + args[1])
	}

	path, err := b.DownloadExercise(ctx, exerciseID, args[0], func(pct float64, msg string) {
		fmt.Fprintf(rootStderr, "%3.0f%% %s\n", pct*100, msg)
	})
	if err != nil {
		return fail(err)
	}
	fmt.Fprintln(rootStdout, path)
	return ExitOK
}

func cmdReset(ctx context.Context, b backend.Backend, args []string) int {
	saveOld := false
	var rest []string
	for _, a := range args {
		if a == "--save-old" {
			saveOld = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) != 1 {
		return usage("reset requires an exercise id")
	}
	exerciseID, err := strconv.Atoi(rest[0])
	if err != nil {
		return usage("invalid exercise id: " + rest[0])
	}

	if err := b.ResetExercise(ctx, exerciseID, saveOld); err != nil {
		return fail(err)
	}
	fmt.Fprintln(rootStdout, "Exercise reset.")
	return ExitOK
}

func cmdTest(ctx context.Context, b backend.Backend, args []string) int {
	if len(args) != 1 {
		return usage("test requires an exercise id")
	}
	exerciseID, err := strconv.Atoi(args[0])
	if err != nil {
		return usage("invalid exercise id: " + args[0])
	}

	run, err := b.RunTests(ctx, exerciseID)
	if err != nil {
		return fail(err)
	}
	// Ctrl-C kills the run instead of orphaning it.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			run.Interrupt()
		case <-stop:
		}
	}()

	result, err := run.Result()
	if err != nil {
		return fail(err)
	}
	return printRunResult(result)
}

func printRunResult(result *backend.RunResult) int {
	failed := 0
	for _, tc := range result.TestResults {
		mark := "PASS"
		if !tc.Successful {
			mark = "FAIL"
			failed++
		}
		fmt.Fprintf(rootStdout, "%s  %s\n", mark, tc.Name)
		if !tc.Successful && tc.Message != "" {
			fmt.Fprintf(rootStdout, "      %s\n", tc.Message)
		}
	}
	fmt.Fprintf(rootStdout, "%s: %d/%d tests passed\n",
		result.Status, len(result.TestResults)-failed, len(result.TestResults))
	if failed > 0 {
		return ExitFailure
	}
	return ExitOK
}

func cmdSubmit(ctx context.Context, b backend.Backend, args []string) int {
	wait := false
	var rest []string
	for _, a := range args {
		if a == "--wait" {
			wait = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) != 1 {
		return usage("submit requires an exercise id")
	}
	exerciseID, err := strconv.Atoi(rest[0])
	if err != nil {
		return usage("invalid exercise id: " + rest[0])
	}

	resp, err := b.SubmitExercise(ctx, exerciseID, backend.SubmitOptions{})
	if err != nil {
		return fail(err)
	}
	fmt.Fprintln(rootStdout, resp.ShowSubmissionURL)
	if !wait {
		return ExitOK
	}

	pollURL := resp.SubmissionURL
	if pollURL == "" {
		pollURL = resp.ShowSubmissionURL
	}
	status, err := b.WaitForSubmissionResult(ctx, pollURL)
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(rootStdout, "%s\n", status.Status)
	if len(status.Points) > 0 {
		fmt.Fprintf(rootStdout, "points: %s\n", strings.Join(status.Points, ", "))
	}
	for _, tc := range status.TestCases {
		if !tc.Successful {
			fmt.Fprintf(rootStdout, "FAIL  %s\n", tc.Name)
		}
	}
	return ExitOK
}

func cmdPaste(ctx context.Context, b backend.Backend, args []string) int {
	opts := backend.SubmitOptions{Paste: true}
	var rest []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--message" {
			if i+1 >= len(args) {
				return usage("--message requires a value")
			}
			i++
			opts.PasteMessage = args[i]
			continue
		}
		rest = append(rest, args[i])
	}
	if len(rest) != 1 {
		return usage("paste requires an exercise id")
	}
	exerciseID, err := strconv.Atoi(rest[0])
	if err != nil {
		return usage("invalid exercise id: " + rest[0])
	}

	resp, err := b.SubmitExercise(ctx, exerciseID, opts)
	if err != nil {
		return fail(err)
	}
	fmt.Fprintln(rootStdout, resp.PasteURL)
	return ExitOK
}

func cmdFeedback(ctx context.Context, b backend.Backend, args []string) int {
	var feedbackURL string
	var answers []backend.FeedbackAnswer
	for i := 0; i < len(args); i++ {
		if args[i] == "--answer" {
			if i+1 >= len(args) {
				return usage("--answer requires a value")
			}
			i++
			id, text, ok := strings.Cut(args[i], "=")
			questionID, err := strconv.Atoi(id)
			if !ok || err != nil {
				return usage("invalid answer, expected <id>=<text>: " + args[i])
			}
			answers = append(answers, backend.FeedbackAnswer{QuestionID: questionID, Answer: text})
			continue
		}
		if feedbackURL != "" {
			return usage("unexpected argument: " + args[i])
		}
		feedbackURL = args[i]
	}
	if feedbackURL == "" {
		return usage("feedback requires a feedback url")
	}
	if len(answers) == 0 {
		return usage("feedback requires at least one --answer")
	}

	if err := b.SubmitFeedback(ctx, feedbackURL, answers); err != nil {
		return fail(err)
	}
	fmt.Fprintln(rootStdout, "Feedback sent.")
	return ExitOK
}

// popNoCache strips a --no-cache flag and reports whether the cache may be
// used (the default).
func popNoCache(args []string) (bool, []string) {
	useCache := true
	var rest []string
	for _, a := range args {
		if a == "--no-cache" {
			useCache = false
			continue
		}
		rest = append(rest, a)
	}
	return useCache, rest
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
