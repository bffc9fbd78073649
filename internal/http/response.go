package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"flowload/internal/template"
)

// Response is what the pipeline keeps of one HTTP call. Err is set, and
// StatusCode is zero, when the call failed below the HTTP layer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
	Err        error

	parsed   any
	parseErr bool
	parsedOK bool
}

func (r *Response) Text() string {
	return string(r.Body)
}

// JSON returns the decoded body, or false when it is not JSON.
func (r *Response) JSON() (any, bool) {
	if r.parsedOK {
		return r.parsed, true
	}
	if r.parseErr || len(r.Body) == 0 {
		return nil, false
	}
	if err := json.Unmarshal(r.Body, &r.parsed); err != nil {
		r.parseErr = true
		return nil, false
	}
	r.parsedOK = true
	return r.parsed, true
}

// Path looks up a dotted path in the JSON body.
func (r *Response) Path(path string) (any, bool) {
	v, ok := template.JSONPath(r.Body, path)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// HeaderMap flattens the headers to one string per canonical name.
func (r *Response) HeaderMap() map[string]any {
	out := make(map[string]any, len(r.Header))
	for k, v := range r.Header {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// lastResponse is the context value recorded after every call.
func (r *Response) lastResponse() map[string]any {
	if r.Err != nil {
		return map[string]any{
			"status_code": 0,
			"headers":     map[string]any{},
			"text":        "",
			"error":       r.Err.Error(),
			"elapsed_ms":  r.Elapsed.Milliseconds(),
		}
	}
	m := map[string]any{
		"status_code": r.StatusCode,
		"headers":     r.HeaderMap(),
		"text":        r.Text(),
		"elapsed_ms":  r.Elapsed.Milliseconds(),
	}
	if v, ok := r.JSON(); ok {
		m["json"] = v
	}
	return m
}

// retryView is the smaller value retry conditions see as "response".
func (r *Response) retryView() map[string]any {
	m := map[string]any{
		"status_code": r.StatusCode,
		"text":        r.Text(),
		"headers":     r.HeaderMap(),
	}
	if r.Err != nil {
		m["error"] = r.Err.Error()
	}
	return m
}
