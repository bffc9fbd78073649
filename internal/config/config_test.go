package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
service_name: Wallet API
base_url: http://localhost:8080
timeout: 10
verify: false
headers:
  Accept: application/json
variables:
  msisdns: ["27820000001", "27820000002"]
  pin: 1234
run_init_once: true
init_list_var: msisdns
locust:
  wait_time: between
  min_wait: 1
  max_wait: 3
flow_init:
  - type: uuid
    output: request_id
init:
  - name: Login
    method: POST
    endpoint: /auth/login
    headers:
      Content-Type: application/json
    data:
      username: "{{ msisdn }}"
      pin: "{{ pin }}"
    extract:
      token: json.token
      session:
        type: header
        path: X-Session
      code:
        type: regex
        path: text
        pattern: 'code=(\d+)'
    validate:
      status_code: 200
steps:
  - name: Balance
    method: GET
    endpoint: /balance
    pre_request: Login
    params:
      currency: ZAR
    retry_on:
      condition: equals
      left: "{{ response.status_code }}"
      right: 401
      action: Login
      max_retries: 2
    skip_if:
      condition: equals
      left: "{{ skip }}"
      right: "yes"
    weight: 0.5
    timeout: 2.5
    allow_redirects: false
    fail_fast: true
    validate:
      - status_code: [200, 201]
      - field: response.json.balance
        condition: greater_than
        expected: 0
  - name: Inline
    method: GET
    endpoint: /x
    pre_request:
      - Balance
      - name: Ping
        method: GET
        endpoint: /ping
cleanup:
  - name: Logout
    method: POST
    endpoint: /auth/logout
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "Wallet API", cfg.ServiceName)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, map[string]string{"Accept": "application/json"}, cfg.Headers)
	assert.Equal(t, []any{"27820000001", "27820000002"}, cfg.Variables["msisdns"])
	assert.Equal(t, 1234, cfg.Variables["pin"])
	assert.True(t, cfg.RunInitOnce)
	assert.Equal(t, "msisdns", cfg.InitListVar)
	assert.False(t, cfg.VerifyTLS())
	require.Len(t, cfg.FlowInit, 1)
	assert.Equal(t, "uuid", cfg.FlowInit[0].Type)

	require.NotNil(t, cfg.Locust)
	assert.Equal(t, WaitBetween, cfg.Locust.WaitTime)
	assert.Equal(t, 3.0, *cfg.Locust.MaxWait)

	login := cfg.Init[0]
	assert.Equal(t, ExtractRule{Path: "json.token"}, login.Extract["token"])
	assert.Equal(t, ExtractRule{Type: "header", Path: "X-Session"}, login.Extract["session"])
	assert.Equal(t, ExtractRule{Type: "regex", Path: "text", Pattern: `code=(\d+)`}, login.Extract["code"])
	require.Len(t, login.Validate, 1)
	assert.Equal(t, Codes{200}, login.Validate[0].StatusCode)
	assert.True(t, login.Validate[0].IsLegacy())
	assert.Equal(t, map[string]any{"username": "{{ msisdn }}", "pin": "{{ pin }}"}, login.Data)

	bal := cfg.Steps[0]
	assert.Equal(t, PreRequests{{Name: "Login"}}, bal.PreRequest)
	assert.Equal(t, "401", bal.RetryOn.Right)
	assert.Equal(t, 2, bal.RetryOn.Attempts())
	assert.Equal(t, "yes", bal.SkipIf.Right)
	assert.Equal(t, 0.5, bal.Weight)
	assert.False(t, bal.FollowRedirects())
	assert.True(t, bal.IsFailFast(false))
	assert.Equal(t, 2500*time.Millisecond, cfg.RequestTimeout(&bal))
	require.Len(t, bal.Validate, 2)
	assert.Equal(t, Codes{200, 201}, bal.Validate.StatusCodes())
	assert.True(t, bal.Validate[1].IsField())
	assert.Equal(t, 0, bal.Validate[1].Expected)

	inline := cfg.Steps[1]
	require.Len(t, inline.PreRequest, 2)
	assert.Equal(t, "Balance", inline.PreRequest[0].Name)
	require.NotNil(t, inline.PreRequest[1].Inline)
	assert.Equal(t, "/ping", inline.PreRequest[1].Inline.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout(&inline))

	step, ok := cfg.FindStep("Logout")
	require.True(t, ok)
	assert.Equal(t, "/auth/logout", step.Endpoint)
	_, ok = cfg.FindStep("Nope")
	assert.False(t, ok)
}

func TestParse_JSON(t *testing.T) {
	doc := `{
  "service_name": "svc",
  "base_url": "http://api",
  "steps": [
    {"name": "Get", "method": "GET", "endpoint": "/x",
     "extract": {"id": "json.data.id"},
     "validate": [{"field": "response.status_code", "condition": "equals", "expected": "200"}]}
  ]
}`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "svc", cfg.ServiceName)
	assert.Equal(t, ExtractRule{Path: "json.data.id"}, cfg.Steps[0].Extract["id"])
	assert.Equal(t, "response.status_code", cfg.Steps[0].Validate[0].Field)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("service_name: s\nbase_url: http://x\nsteps:\n  - name: a\n    method: GET\n    endpoint: /\n"))
	require.NoError(t, err)
	s := cfg.Steps[0]

	assert.True(t, cfg.VerifyTLS())
	assert.True(t, s.FollowRedirects())
	assert.False(t, s.IsFailFast(false))
	assert.True(t, s.IsFailFast(true))
	assert.Equal(t, DefaultTimeout, cfg.RequestTimeout(&s))
	assert.Equal(t, 1, s.RetryOn.Attempts())

	var rule RetryRule
	assert.Equal(t, DefaultMaxRetries, rule.Attempts())
	zero := 0
	rule.MaxRetries = &zero
	assert.Equal(t, 1, rule.Attempts())
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"bad yaml":         "service_name: [",
		"bad extract":      "steps:\n  - name: a\n    extract:\n      x: [1]\n",
		"bad validate":     "steps:\n  - name: a\n    validate: 5\n",
		"bad status code":  "steps:\n  - name: a\n    validate:\n      status_code: abc\n",
		"bad pre_request":  "steps:\n  - name: a\n    pre_request: [[1]]\n",
		"bad max_retries":  "steps:\n  - name: a\n    retry_on:\n      max_retries: lots\n",
		"validation entry": "steps:\n  - name: a\n    validate: [abc]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Wallet API", cfg.ServiceName)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseWeight(t *testing.T) {
	tests := []struct {
		in      any
		want    float64
		wantErr bool
	}{
		{nil, 1, false},
		{1, 1, false},
		{0.25, 0.25, false},
		{"0.5", 0.5, false},
		{" 1 ", 1, false},
		{"heavy", 0, true},
		{[]any{1}, 0, true},
	}
	for _, tt := range tests {
		got, err := ParseWeight(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestLoad_DataFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "msisdns.txt"), []byte("27820000001\n27820000002\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.csv"), []byte("name,pin\nalice,1111\n"), 0o644))
	doc := `
service_name: s
base_url: http://x
run_init_once: true
init_list_var: msisdns
data_files:
  msisdns: msisdns.txt
  users: users.csv
steps:
  - {name: a, method: GET, endpoint: /}
`
	path := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []any{"27820000001", "27820000002"}, cfg.Variables["msisdns"])
	assert.Equal(t, []any{map[string]any{"name": "alice", "pin": "1111"}}, cfg.Variables["users"])

	_, err = Validate(cfg)
	assert.NoError(t, err)
}

func TestLoadDataFiles_Errors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ids.txt"), []byte("a\n"), 0o644))

	cfg := &Config{
		Variables: map[string]any{"ids": []any{"inline"}},
		DataFiles: map[string]string{"ids": "ids.txt", "other": "missing.txt"},
	}
	err := cfg.LoadDataFiles(dir)
	require.Error(t, err)
	assert.ErrorContains(t, err, `"ids" is already defined in variables`)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, []any{"inline"}, cfg.Variables["ids"])
}

func TestValidate_DataFilesNotLoaded(t *testing.T) {
	cfg := mustParse(t, `
service_name: s
base_url: http://x
data_files:
  ids: ids.txt
steps:
  - {name: a, method: GET, endpoint: /}
`)
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	assert.Contains(t, strings.Join(warnings, "\n"), `data_files: "ids" has not been loaded`)
}
