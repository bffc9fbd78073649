package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"flowload/internal/config"
	"flowload/internal/core"
	"flowload/internal/template"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// ErrInvalidStep marks a step that cannot be turned into a request.
var ErrInvalidStep = errors.New("invalid step")

// buildRequest renders the step's method, URL, headers, query and body
// against vars. Step headers override default headers with the same name.
func buildRequest(ctx context.Context, cfg *config.Config, step *config.Step, vars core.Context) (*http.Request, []byte, error) {
	method := strings.ToUpper(strings.TrimSpace(step.Method))
	if method == "" {
		return nil, nil, fmt.Errorf("%w: step %q has no method", ErrInvalidStep, step.Name)
	}
	if step.Endpoint == "" {
		return nil, nil, fmt.Errorf("%w: step %q has no endpoint", ErrInvalidStep, step.Name)
	}

	rawURL := step.Endpoint
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = cfg.BaseURL + rawURL
	}
	rawURL = template.ResolveString(rawURL, vars)

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parsing url %q: %v", ErrInvalidStep, rawURL, err)
	}
	if len(step.Params) > 0 {
		q := u.Query()
		params := template.Resolve(step.Params, vars).(map[string]any)
		for _, k := range sortedKeys(params) {
			switch v := params[k].(type) {
			case []any:
				for _, item := range v {
					q.Add(k, template.Stringify(item))
				}
			default:
				q.Set(k, template.Stringify(v))
			}
		}
		u.RawQuery = q.Encode()
	}

	header := make(http.Header)
	for k, v := range cfg.Headers {
		header.Set(k, template.ResolveString(v, vars))
	}
	for k, v := range step.Headers {
		header.Set(k, template.ResolveString(v, vars))
	}

	body, err := encodeBody(step, header, vars)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: step %q: %v", ErrInvalidStep, step.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidStep, err)
	}
	if body == nil {
		req.Body = http.NoBody
		req.ContentLength = 0
	}
	req.Header = header
	return req, body, nil
}

// encodeBody renders step.JSON as JSON, or step.Data as JSON or a form
// depending on the resolved Content-Type. A body without a JSON content type
// is form encoded, and the form content type is set when none was given.
func encodeBody(step *config.Step, header http.Header, vars core.Context) ([]byte, error) {
	if step.JSON != nil {
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", contentTypeJSON)
		}
		return json.Marshal(template.Resolve(step.JSON, vars))
	}
	if step.Data == nil {
		return nil, nil
	}

	data := template.Resolve(step.Data, vars)
	ct := header.Get("Content-Type")
	if strings.Contains(ct, contentTypeJSON) {
		if s, ok := data.(string); ok {
			return []byte(s), nil
		}
		return json.Marshal(data)
	}

	if ct == "" {
		header.Set("Content-Type", contentTypeForm)
	}
	switch d := data.(type) {
	case string:
		return []byte(d), nil
	case map[string]any:
		form := url.Values{}
		for _, k := range sortedKeys(d) {
			if list, ok := d[k].([]any); ok {
				for _, item := range list {
					form.Add(k, template.Stringify(item))
				}
				continue
			}
			form.Set(k, template.Stringify(d[k]))
		}
		return []byte(form.Encode()), nil
	default:
		return []byte(template.Stringify(d)), nil
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
