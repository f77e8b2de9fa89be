// Package protocol defines the helper's newline-delimited JSON record
// format and the classification of a finished invocation into a typed
// result or a typed error.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Status is the per-record process state reported by the helper.
type Status string

const (
	StatusFinished   Status = "finished"
	StatusCrashed    Status = "crashed"
	StatusInProgress Status = "in-progress"
)

func (s Status) valid() bool {
	switch s {
	case StatusFinished, StatusCrashed, StatusInProgress:
		return true
	}
	return false
}

// Result tags what a record is about. The set is closed; records carrying
// an unknown tag are dropped at the decode boundary.
type Result string

const (
	ResultLoggedIn          Result = "logged-in"
	ResultLoggedOut         Result = "logged-out"
	ResultNotLoggedIn       Result = "not-logged-in"
	ResultError             Result = "error"
	ResultSentData          Result = "sent-data"
	ResultRetrievedData     Result = "retrieved-data"
	ResultExecutedCommand   Result = "executed-command"
	ResultDownloading       Result = "downloading"
	ResultCompressing       Result = "compressing"
	ResultExtracting        Result = "extracting"
	ResultProcessing        Result = "processing"
	ResultSending           Result = "sending"
	ResultWaitingForResults Result = "waiting-for-results"
	ResultFinished          Result = "finished"
)

func (r Result) valid() bool {
	switch r {
	case ResultLoggedIn, ResultLoggedOut, ResultNotLoggedIn, ResultError,
		ResultSentData, ResultRetrievedData, ResultExecutedCommand,
		ResultDownloading, ResultCompressing, ResultExtracting,
		ResultProcessing, ResultSending, ResultWaitingForResults,
		ResultFinished:
		return true
	}
	return false
}

// Record is one line of helper output. A single invocation usually emits
// several records; only the last one is authoritative for the outcome.
type Record struct {
	Data        json.RawMessage `json:"data"`
	Message     *string         `json:"message"`
	PercentDone float64         `json:"percent-done"`
	Result      Result          `json:"result"`
	Status      Status          `json:"status"`
}

// MessageText returns the record message, or the literal "null" when the
// helper sent none.
func (r Record) MessageText() string {
	if r.Message == nil {
		return "null"
	}
	return *r.Message
}

// DecodeLine parses one stdout line into a Record. Lines that are not JSON
// objects or carry tags outside the closed enumerations are rejected; the
// runner logs and drops them without failing the invocation.
func DecodeLine(line []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding helper line: %w", err)
	}
	if !rec.Status.valid() {
		return Record{}, fmt.Errorf("unknown status %q", rec.Status)
	}
	if !rec.Result.valid() {
		return Record{}, fmt.Errorf("unknown result %q", rec.Result)
	}
	return rec, nil
}
