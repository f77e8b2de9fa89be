package backend

import "encoding/json"

// Organization is a course-hosting organization on the server.
type Organization struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Information string `json:"information"`
	LogoPath    string `json:"logo_path"`
	Pinned      bool   `json:"pinned"`
}

// Course is one course inside an organization.
type Course struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Exercise is one exercise as listed in course details.
type Exercise struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
	Deadline string `json:"deadline"`
}

// CourseDetails is a course plus its exercise listing.
type CourseDetails struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Title     string     `json:"title"`
	Exercises []Exercise `json:"exercises"`
}

// ExerciseDetails describes a single exercise. Checksum and Deadline
// identify the exact published revision.
type ExerciseDetails struct {
	ID         int    `json:"id"`
	Name       string `json:"exercise_name"`
	CourseName string `json:"course_name"`
	Checksum   string `json:"checksum"`
	Deadline   string `json:"deadline"`
}

// TestCase is one test's verdict in a local run or a graded submission.
type TestCase struct {
	Name       string   `json:"name"`
	Successful bool     `json:"successful"`
	Points     []string `json:"points"`
	Message    string   `json:"message"`
}

// RunResult is the outcome of a local test run.
type RunResult struct {
	Status      string          `json:"status"`
	TestResults []TestCase      `json:"testResults"`
	Logs        json.RawMessage `json:"logs"`
}

// SubmissionResponse is the server's acknowledgement of an uploaded
// submission. PasteURL is set only for paste submissions.
type SubmissionResponse struct {
	ShowSubmissionURL string `json:"show_submission_url"`
	PasteURL          string `json:"paste_url"`
	SubmissionURL     string `json:"submission_url"`
}

// SubmissionStatus is the grading state of a submission. Status stays
// "processing" until the server has run the tests.
type SubmissionStatus struct {
	Status      string     `json:"status"`
	Points      []string   `json:"points"`
	TestCases   []TestCase `json:"test_cases"`
	SolutionURL string     `json:"solution_url"`
}

// Processing reports whether the server is still grading.
func (s *SubmissionStatus) Processing() bool {
	return s.Status == "processing"
}

// SubmitOptions tunes a submission upload.
type SubmitOptions struct {
	// Paste publishes the submission as a public paste instead of
	// grading it.
	Paste bool
	// PasteMessage is an optional comment attached to a paste.
	PasteMessage string
}

// FeedbackAnswer is one answered feedback question.
type FeedbackAnswer struct {
	QuestionID int
	Answer     string
}

// ProgressFunc receives progress for long-running operations. percentDone
// is in [0, 1].
type ProgressFunc func(percentDone float64, message string)
