package protocol

import (
	"encoding/json"
	"strings"

	"github.com/jkorri/tmcli/internal/clienterr"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Validated is a record whose data payload decoded as T and whose status
// and result have been narrowed away from the crashed/error variants.
type Validated[T any] struct {
	Data        T
	Message     string
	PercentDone float64
	Result      Result
	Status      Status
}

// Validate classifies the authoritative record of a finished invocation.
// The ordering is a hard invariant: a crashed process beats a reported
// logical error, which beats a payload shape mismatch.
//
// check may be nil; when set it runs after decoding and can reject payloads
// that are structurally valid JSON but semantically empty.
func Validate[T any](rec Record, check func(T) error) (*Validated[T], error) {
	if rec.Status == StatusCrashed {
		return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: crashDetail(rec)}
	}

	if rec.Result == ResultError {
		if lines, ok := stringSlice(rec.Data); ok {
			log.WithField("result", rec.Result).Debugf("helper error detail: %s", strings.Join(lines, "; "))
		}
		return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: rec.MessageText()}
	}

	var data T
	if len(rec.Data) > 0 {
		if err := json.Unmarshal(rec.Data, &data); err != nil {
			return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: "unexpected response data type"}
		}
	}
	if check != nil {
		if err := check(data); err != nil {
			return nil, &clienterr.RuntimeError{Kind: clienterr.KindProcess, Msg: "unexpected response data type"}
		}
	}

	return &Validated[T]{
		Data:        data,
		Message:     rec.MessageText(),
		PercentDone: rec.PercentDone,
		Result:      rec.Result,
		Status:      rec.Status,
	}, nil
}

// crashDetail joins a sequence-of-strings data payload into one diagnostic,
// falling back to the record message.
func crashDetail(rec Record) string {
	if lines, ok := stringSlice(rec.Data); ok && len(lines) > 0 {
		return strings.Join(lines, "\n")
	}
	return rec.MessageText()
}

func stringSlice(data json.RawMessage) ([]string, bool) {
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, false
	}
	var out []string
	for _, v := range parsed.Array() {
		if v.Type != gjson.String {
			return nil, false
		}
		out = append(out, v.String())
	}
	return out, true
}
