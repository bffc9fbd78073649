package http

import (
	"context"
	"io"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowload/internal/config"
	"flowload/internal/core"
)

func TestBuildRequest(t *testing.T) {
	cfg := &config.Config{
		BaseURL: "http://api.test",
		Headers: map[string]string{"Accept": "application/json", "X-Env": "default"},
	}
	vars := core.Context{"id": 7, "token": "abc", "env": "qa"}

	tests := []struct {
		name       string
		step       config.Step
		wantMethod string
		wantURL    string
		wantHeader map[string]string
		wantBody   string
	}{
		{
			name:       "relative endpoint",
			step:       config.Step{Method: "get", Endpoint: "/users/{{ id }}"},
			wantMethod: "GET",
			wantURL:    "http://api.test/users/7",
		},
		{
			name:       "absolute endpoint",
			step:       config.Step{Method: "GET", Endpoint: "https://other.test/x/{{id}}"},
			wantMethod: "GET",
			wantURL:    "https://other.test/x/7",
		},
		{
			name: "query params",
			step: config.Step{Method: "GET", Endpoint: "/search", Params: map[string]any{
				"q":   "{{ env }}",
				"tag": []any{"a", "b"},
			}},
			wantMethod: "GET",
			wantURL:    "http://api.test/search?q=qa&tag=a&tag=b",
		},
		{
			name: "step headers override defaults",
			step: config.Step{Method: "GET", Endpoint: "/", Headers: map[string]string{
				"X-Env":         "{{ env }}",
				"Authorization": "Bearer {{ token }}",
			}},
			wantMethod: "GET",
			wantURL:    "http://api.test/",
			wantHeader: map[string]string{"X-Env": "qa", "Authorization": "Bearer abc", "Accept": "application/json"},
		},
		{
			name:       "json body",
			step:       config.Step{Method: "POST", Endpoint: "/u", JSON: map[string]any{"id": "{{ id }}"}},
			wantMethod: "POST",
			wantURL:    "http://api.test/u",
			wantHeader: map[string]string{"Content-Type": "application/json"},
			wantBody:   `{"id":"7"}`,
		},
		{
			name: "data with json content type",
			step: config.Step{Method: "POST", Endpoint: "/u",
				Headers: map[string]string{"Content-Type": "application/json; charset=utf-8"},
				Data:    map[string]any{"name": "n-{{ id }}"}},
			wantMethod: "POST",
			wantURL:    "http://api.test/u",
			wantBody:   `{"name":"n-7"}`,
		},
		{
			name: "raw json string",
			step: config.Step{Method: "POST", Endpoint: "/u",
				Headers: map[string]string{"Content-Type": "application/json"},
				Data:    `{"id": {{ id }}}`},
			wantMethod: "POST",
			wantURL:    "http://api.test/u",
			wantBody:   `{"id": 7}`,
		},
		{
			name:       "data defaults to form",
			step:       config.Step{Method: "POST", Endpoint: "/f", Data: map[string]any{"b": "{{ env }}", "a": 1}},
			wantMethod: "POST",
			wantURL:    "http://api.test/f",
			wantHeader: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
			wantBody:   "a=1&b=qa",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, body, err := buildRequest(context.Background(), cfg, &tt.step, vars)
			require.NoError(t, err)

			assert.Equal(t, tt.wantMethod, req.Method)
			assert.Equal(t, tt.wantURL, req.URL.String())
			for k, v := range tt.wantHeader {
				assert.Equal(t, v, req.Header.Get(k), "header %s", k)
			}
			assert.Equal(t, tt.wantBody, string(body))

			sent, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, string(sent))
		})
	}
}

func TestBuildRequest_FormListValues(t *testing.T) {
	step := config.Step{Method: "POST", Endpoint: "/f", Data: map[string]any{"k": []any{"x", "y"}}}

	_, body, err := buildRequest(context.Background(), &config.Config{BaseURL: "http://h"}, &step, core.Context{})
	require.NoError(t, err)

	form, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, form["k"])
}

func TestBuildRequest_Invalid(t *testing.T) {
	cfg := &config.Config{BaseURL: "http://h"}
	for name, step := range map[string]config.Step{
		"no method":   {Name: "s", Endpoint: "/"},
		"no endpoint": {Name: "s", Method: "GET"},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := buildRequest(context.Background(), cfg, &step, core.Context{})
			assert.ErrorIs(t, err, ErrInvalidStep)
		})
	}
}
