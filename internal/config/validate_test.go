package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, doc string) *Config {
	t.Helper()
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	return cfg
}

func TestValidate_FullConfigIsValid(t *testing.T) {
	warnings, err := Validate(mustParse(t, fullConfig))
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestValidate_Errors(t *testing.T) {
	base := "service_name: s\nbase_url: http://x\nvariables:\n  ids: [a]\n  name: x\n"
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown top-level", base + "stepz: []\nsteps:\n  - {name: a, method: GET, endpoint: /}\n", `invalid top-level field "stepz"`},
		{"missing service_name", "base_url: http://x\nsteps:\n  - {name: a, method: GET, endpoint: /}\n", "service_name"},
		{"no steps or init", base, "at least 'steps' or 'init'"},
		{"missing method", base + "steps:\n  - {name: a, endpoint: /}\n", "'method'"},
		{"bad method", base + "steps:\n  - {name: a, method: FETCH, endpoint: /}\n", "invalid HTTP method"},
		{"missing endpoint", base + "steps:\n  - {name: a, method: GET}\n", "'endpoint'"},
		{"duplicate names", base + "init:\n  - {name: a, method: GET, endpoint: /}\nsteps:\n  - {name: a, method: GET, endpoint: /}\n", "already used"},
		{"data without content type", base + "steps:\n  - {name: a, method: POST, endpoint: /, data: {x: 1}}\n", "Content-Type"},
		{"weight out of range", base + "steps:\n  - {name: a, method: GET, endpoint: /, weight: 2}\n", "between 0 and 1"},
		{"weight not a number", base + "steps:\n  - {name: a, method: GET, endpoint: /, weight: heavy}\n", "must be a number"},
		{"retry mixed operators", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    retry_on: {condition: equals, left: x, right: '401 || 403 && 429'}\n", "mixes"},
		{"retry bad condition", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    retry_on: {condition: matches, left: x, right: y}\n", `invalid condition "matches"`},
		{"retry missing right", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    retry_on: {condition: equals, left: x}\n", "'right'"},
		{"retry negative", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    retry_on: {condition: equals, left: x, right: y, max_retries: -1}\n", "max_retries"},
		{"skip bad condition", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    skip_if: {condition: nope, left: x, right: y}\n", "skip_if"},
		{"validation format", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    validate:\n      - {foo: bar}\n", "invalid validation format"},
		{"field validation missing field", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    validate:\n      - {condition: equals, expected: 1}\n", "'field'"},
		{"transform missing type", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    pre_transforms:\n      - {output: x}\n", "'type'"},
		{"transform unknown type", base + "flow_init:\n  - {type: teleport}\nsteps:\n  - {name: a, method: GET, endpoint: /}\n", `"teleport"`},
		{"select missing var", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    pre_transforms:\n      - {type: select_from_list, config: {from: nope}, output: x}\n", `"nope" does not exist`},
		{"select var not list", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    pre_transforms:\n      - {type: select_from_list, config: {from: name}, output: x}\n", "must be a list"},
		{"select bad mode", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    pre_transforms:\n      - {type: select_from_list, config: {from: ids, mode: shuffle}, output: x}\n", "invalid mode"},
		{"random_number range", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    pre_transforms:\n      - {type: random_number, config: {min: 5, max: 5}}\n", "must be less than"},
		{"store_data values", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    post_transforms:\n      - {type: store_data, config: {key: k}}\n", "values"},
		{"rsa needs output", base + "steps:\n  - name: a\n    method: GET\n    endpoint: /\n    pre_transforms:\n      - {type: rsa_encrypt, input: x}\n", "'output'"},
		{"run_init_once without var", base + "run_init_once: true\ninit:\n  - {name: a, method: GET, endpoint: /}\n", "init_list_var"},
		{"run_init_once missing var", base + "run_init_once: true\ninit_list_var: nope\ninit:\n  - {name: a, method: GET, endpoint: /}\n", "doesn't exist"},
		{"run_init_once not list", base + "run_init_once: true\ninit_list_var: name\ninit:\n  - {name: a, method: GET, endpoint: /}\n", "must be a list"},
		{"locust bad wait", base + "locust: {wait_time: sometimes}\nsteps:\n  - {name: a, method: GET, endpoint: /}\n", "wait_time"},
		{"locust between order", base + "locust: {wait_time: between, min_wait: 5, max_wait: 1}\nsteps:\n  - {name: a, method: GET, endpoint: /}\n", "cannot be greater"},
		{"locust throughput required", base + "locust: {wait_time: constant_throughput}\nsteps:\n  - {name: a, method: GET, endpoint: /}\n", "'throughput'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(mustParse(t, tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	_, err := Validate(mustParse(t, "steps:\n  - {name: a}\n"))
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"service_name", "base_url", "'method'", "'endpoint'"} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_Warnings(t *testing.T) {
	doc := `
service_name: s
base_url: http://x
variables:
  ids: []
run_init_once: true
init_list_var: ids
init:
  - name: a
    method: GET
    endpoint: /
    colour: blue
    retry_on: {condition: equals, left: x, right: y, action: Missing, max_retries: 20}
    pre_transforms:
      - {type: select_from_list, config: {from: ids}}
`
	warnings, err := Validate(mustParse(t, doc))
	require.NoError(t, err)
	joined := strings.Join(warnings, "\n")
	assert.Contains(t, joined, "empty list")
	assert.Contains(t, joined, "no 'steps'")
	assert.Contains(t, joined, `unknown field "colour"`)
	assert.Contains(t, joined, "very high")
	assert.Contains(t, joined, `step "Missing" not found`)
	assert.Contains(t, joined, "missing 'output'")
}

func TestValidate_DynamicSelectSource(t *testing.T) {
	doc := `
service_name: s
base_url: http://x
variables: {x: 1}
steps:
  - name: a
    method: GET
    endpoint: /
    pre_transforms:
      - {type: get_store_keys, output: keys}
      - {type: select_from_list, config: {from: keys, mode: round_robin}, output: id}
      - {type: select_from_list, config: {items: [1, 2]}, output: n}
    weight: "{{ w }}"
    retry_on: {condition: is_empty, left: "{{ token }}"}
`
	_, err := Validate(mustParse(t, doc))
	assert.NoError(t, err)
}
