package fetcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazz-dev/statusrelay/internal/registry"
)

// State is the reported state of one service or container. Only StateOK is healthy.
type State string

const StateOK State = "ok"

// UnmarshalJSON accepts any JSON value; non-string values keep their raw text.
func (s *State) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = State(str)
		return nil
	}
	*s = State(bytes.TrimSpace(b))
	return nil
}

// Diskspace holds the untyped diskspace value of a health document.
type Diskspace struct {
	raw json.RawMessage
}

// String returns the raw textual form: strings unquoted, other values as
// compact JSON, missing or null as "".
func (d Diskspace) String() string {
	raw := bytes.TrimSpace(d.raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func (d Diskspace) MarshalJSON() ([]byte, error) {
	raw := bytes.TrimSpace(d.raw)
	if len(raw) == 0 {
		return []byte("null"), nil
	}
	return raw, nil
}

// HealthReport is the parsed health document of one endpoint.
type HealthReport struct {
	Services   map[string]State `json:"services"`
	Containers map[string]State `json:"containers"`
	Diskspace  Diskspace        `json:"diskspace"`
}

// ParseReport decodes a health document. The body must be a JSON object;
// missing services/containers default to empty maps.
func ParseReport(data []byte) (*HealthReport, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding health document: %w", err)
	}
	if fields == nil {
		return nil, errors.New("health document is not a JSON object")
	}

	r := &HealthReport{
		Services:   map[string]State{},
		Containers: map[string]State{},
		Diskspace:  Diskspace{raw: fields["diskspace"]},
	}
	if err := decodeStates(fields["services"], r.Services); err != nil {
		return nil, fmt.Errorf("decoding services: %w", err)
	}
	if err := decodeStates(fields["containers"], r.Containers); err != nil {
		return nil, fmt.Errorf("decoding containers: %w", err)
	}
	return r, nil
}

func decodeStates(raw json.RawMessage, dst map[string]State) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, &dst)
}

// ErrorKind classifies a failed fetch.
type ErrorKind string

const (
	KindUnreachable ErrorKind = "unreachable"
	KindTimeout     ErrorKind = "timeout"
	KindHTTPStatus  ErrorKind = "http_status"
	KindParse       ErrorKind = "parse_error"
	// KindCanceled means the caller's context ended before the fetch completed.
	KindCanceled ErrorKind = "canceled"
)

// Outcome is the result of one fetch: a report on success, or a Kind and
// the underlying error on failure. Err is for logs only.
type Outcome struct {
	Endpoint   registry.Endpoint
	Report     *HealthReport
	Kind       ErrorKind
	StatusCode int
	Err        error
	Duration   time.Duration
}

// OK reports whether the fetch produced a report.
func (o Outcome) OK() bool {
	return o.Kind == "" && o.Report != nil
}

// Label returns "ok" for successes and the error kind otherwise.
func (o Outcome) Label() string {
	if o.OK() {
		return "ok"
	}
	return string(o.Kind)
}

// Success builds a successful Outcome.
func Success(ep registry.Endpoint, r *HealthReport) Outcome {
	return Outcome{Endpoint: ep, Report: r}
}

// Failure builds a failed Outcome.
func Failure(ep registry.Endpoint, kind ErrorKind, err error) Outcome {
	return Outcome{Endpoint: ep, Kind: kind, Err: err}
}
