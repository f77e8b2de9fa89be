package protocol

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jkorri/tmcli/internal/clienterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenData struct {
	AccessToken string `json:"access_token"`
}

func strPtr(s string) *string { return &s }

func TestValidateCrashedAlwaysErrors(t *testing.T) {
	rec := Record{
		Status: StatusCrashed,
		Result: ResultLoggedIn, // a benign result tag must not rescue a crash
		Data:   json.RawMessage(`["thread panicked","stack line 1","stack line 2"]`),
	}

	_, err := Validate[tokenData](rec, nil)
	require.Error(t, err)
	var re *clienterr.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, clienterr.KindProcess, re.Kind)
	assert.Contains(t, re.Msg, "thread panicked\nstack line 1\nstack line 2")
}

func TestValidateCrashedFallsBackToMessage(t *testing.T) {
	rec := Record{
		Status:  StatusCrashed,
		Result:  ResultError,
		Message: strPtr("segfault"),
		Data:    json.RawMessage(`{"not":"a string list"}`),
	}

	_, err := Validate[tokenData](rec, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segfault")
}

func TestValidateErrorResult(t *testing.T) {
	rec := Record{
		Status:  StatusFinished,
		Result:  ResultError,
		Message: strPtr("bad course id"),
	}

	_, err := Validate[tokenData](rec, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad course id")
}

func TestValidateErrorResultNullMessage(t *testing.T) {
	rec := Record{Status: StatusFinished, Result: ResultError}

	_, err := Validate[tokenData](rec, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null")
}

func TestValidateShapeMismatch(t *testing.T) {
	rec := Record{
		Status: StatusFinished,
		Result: ResultLoggedIn,
		Data:   json.RawMessage(`"just a string"`),
	}

	_, err := Validate[tokenData](rec, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected response data type")
}

func TestValidateCheckerRejection(t *testing.T) {
	rec := Record{
		Status: StatusFinished,
		Result: ResultLoggedIn,
		Data:   json.RawMessage(`{"access_token":""}`),
	}

	_, err := Validate[tokenData](rec, func(d tokenData) error {
		if d.AccessToken == "" {
			return fmt.Errorf("empty token")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected response data type")
}

func TestValidateSuccessNarrows(t *testing.T) {
	rec := Record{
		Status:      StatusFinished,
		Result:      ResultLoggedIn,
		PercentDone: 1,
		Data:        json.RawMessage(`{"access_token":"abc"}`),
	}

	v, err := Validate[tokenData](rec, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", v.Data.AccessToken)
	assert.Equal(t, StatusFinished, v.Status)
	assert.Equal(t, ResultLoggedIn, v.Result)
	assert.Equal(t, "null", v.Message)
}

// Crash classification must run before the shape check: a crashed record
// with conforming data is still an error.
func TestValidateOrderingCrashBeatsShape(t *testing.T) {
	rec := Record{
		Status: StatusCrashed,
		Result: ResultFinished,
		Data:   json.RawMessage(`{"access_token":"abc"}`),
	}
	_, err := Validate[tokenData](rec, nil)
	require.Error(t, err)
}

// A logical error must be reported as such even when the payload would
// fail the shape check too.
func TestValidateOrderingErrorBeatsShape(t *testing.T) {
	rec := Record{
		Status:  StatusFinished,
		Result:  ResultError,
		Message: strPtr("no such exercise"),
		Data:    json.RawMessage(`12345`),
	}
	_, err := Validate[tokenData](rec, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such exercise")
}
