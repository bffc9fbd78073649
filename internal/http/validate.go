package http

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"flowload/internal/condition"
	"flowload/internal/config"
	"flowload/internal/core"
	"flowload/internal/template"
)

// ValidationError reports the first failed assertion of a step.
type ValidationError struct {
	Field     string
	Condition string
	Expected  any
	Actual    any
	Message   string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Validation failed for field '%s': expected %s %v, got %v",
		e.Field, e.Condition, e.Expected, e.Actual)
}

// validateResponse checks every entry in order and returns the first failure.
func validateResponse(rules config.Validations, resp *Response, vars core.Context) error {
	for i := range rules {
		v := &rules[i]
		var err error
		if v.IsField() {
			err = validateField(v, resp, vars)
		} else {
			err = validateLegacy(v, resp, vars)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func validateLegacy(v *config.Validation, resp *Response, vars core.Context) error {
	if codes := v.StatusCode; len(codes) > 0 && !codes.Contains(resp.StatusCode) {
		if len(codes) == 1 {
			return &ValidationError{
				Field: "status_code", Condition: string(condition.Equals), Expected: codes[0], Actual: resp.StatusCode,
				Message: fmt.Sprintf("expected status %d, got %d", codes[0], resp.StatusCode),
			}
		}
		return &ValidationError{
			Field: "status_code", Condition: "in", Expected: []int(codes), Actual: resp.StatusCode,
			Message: fmt.Sprintf("expected status in %v, got %d", []int(codes), resp.StatusCode),
		}
	}

	if limit := v.MaxResponseTime; limit > 0 {
		ms := float64(resp.Elapsed) / float64(time.Millisecond)
		if ms > limit {
			return &ValidationError{
				Field: "max_response_time", Condition: string(condition.LessThan), Expected: limit, Actual: ms,
				Message: fmt.Sprintf("response time %.0fms exceeded limit %vms", ms, limit),
			}
		}
	}

	if len(v.JSON) > 0 {
		if _, ok := resp.JSON(); !ok {
			return &ValidationError{Field: "json", Message: "response is not valid JSON"}
		}
		paths := make([]string, 0, len(v.JSON))
		for p := range v.JSON {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			expected := normalize(template.Resolve(v.JSON[p], vars))
			actual, _ := resp.Path(p)
			if !reflect.DeepEqual(actual, expected) {
				return &ValidationError{
					Field: p, Condition: string(condition.Equals), Expected: expected, Actual: actual,
					Message: fmt.Sprintf("JSON validation failed for '%s': expected %v, got %v", p, expected, actual),
				}
			}
		}
	}
	return nil
}

func validateField(v *config.Validation, resp *Response, vars core.Context) error {
	actual, _ := responseField(v.Field, resp)
	expected := template.Resolve(v.Expected, vars)
	if condition.Evaluate(condition.Type(v.Condition), actual, expected) {
		return nil
	}
	return &ValidationError{Field: v.Field, Condition: v.Condition, Expected: expected, Actual: actual}
}

// responseField resolves a validation field. The "response." prefix is
// optional; anything that is not a known prefix form is read as a JSON path.
func responseField(field string, resp *Response) (any, bool) {
	path := strings.TrimPrefix(field, "response.")
	if v, ok := lookupResponse(path, resp); ok {
		return v, true
	}
	switch {
	case path == "json" || path == "text" || path == "status_code" ||
		strings.HasPrefix(path, "json.") || strings.HasPrefix(path, "header.") || strings.HasPrefix(path, "headers."):
		return nil, false
	}
	return resp.Path(path)
}

// normalize gives a YAML value the shape encoding/json would decode it to,
// so it can be compared with a value read from a response body.
func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
