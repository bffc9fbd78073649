package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

var topLevelKeys = []string{
	"service_name", "base_url", "variables", "init", "flow_init", "steps",
	"cleanup", "run_init_once", "init_list_var", "headers", "timeout",
	"verify", "locust", "data_files",
}

var stepKeys = []string{
	"name", "method", "endpoint", "headers", "data", "params", "json",
	"pre_request", "pre_transforms", "post_transforms", "extract", "validate",
	"retry_on", "skip_if", "weight", "timeout", "allow_redirects", "fail_fast",
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type plain Config
	if err := node.Decode((*plain)(c)); err != nil {
		return err
	}
	c.unknown = unknownKeys(mappingKeys(node), topLevelKeys)
	return nil
}

func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	type plain Step
	if err := node.Decode((*plain)(s)); err != nil {
		return err
	}
	s.keys = mappingKeys(node)
	return nil
}

// ExtractRule is either a prefix path ("json.a.b", "header.X", "status_code",
// "text") or an object {type, path, pattern}. Type is empty for the prefix
// form.
type ExtractRule struct {
	Type    string `yaml:"type,omitempty"`
	Path    string `yaml:"path,omitempty"`
	Pattern string `yaml:"pattern,omitempty"`
}

func (e *ExtractRule) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*e = ExtractRule{Path: node.Value}
		return nil
	case yaml.MappingNode:
		type plain ExtractRule
		if err := node.Decode((*plain)(e)); err != nil {
			return err
		}
		if e.Type == "" {
			e.Type = "json"
		}
		return nil
	default:
		return fmt.Errorf("line %d: extract rule must be a string or a mapping", node.Line)
	}
}

// PreRequest names a step to run first, or holds an inline step.
type PreRequest struct {
	Name   string
	Inline *Step
}

type PreRequests []PreRequest

func (p *PreRequests) UnmarshalYAML(node *yaml.Node) error {
	items := []*yaml.Node{node}
	if node.Kind == yaml.SequenceNode {
		items = node.Content
	}
	out := make(PreRequests, 0, len(items))
	for _, n := range items {
		switch n.Kind {
		case yaml.ScalarNode:
			out = append(out, PreRequest{Name: n.Value})
		case yaml.MappingNode:
			var s Step
			if err := n.Decode(&s); err != nil {
				return err
			}
			out = append(out, PreRequest{Name: s.Name, Inline: &s})
		default:
			return fmt.Errorf("line %d: pre_request must be a step name or a step", n.Line)
		}
	}
	*p = out
	return nil
}

// Codes is a status_code expectation: one code or a list.
type Codes []int

func (c *Codes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var list []int
		if err := node.Decode(&list); err != nil {
			return err
		}
		*c = list
		return nil
	}
	var code int
	if err := node.Decode(&code); err != nil {
		return err
	}
	*c = Codes{code}
	return nil
}

// Contains reports whether code is listed.
func (c Codes) Contains(code int) bool {
	for _, v := range c {
		if v == code {
			return true
		}
	}
	return false
}

// Validation is one entry of a step's validate block. Legacy entries use
// StatusCode, MaxResponseTime (milliseconds), JSON and FailOnError;
// field entries use Field, Condition and Expected.
type Validation struct {
	StatusCode      Codes          `yaml:"status_code,omitempty"`
	MaxResponseTime float64        `yaml:"max_response_time,omitempty"`
	JSON            map[string]any `yaml:"json,omitempty"`
	FailOnError     bool           `yaml:"fail_on_error,omitempty"`

	Field     string `yaml:"field,omitempty"`
	Condition string `yaml:"condition,omitempty"`
	Expected  any    `yaml:"expected,omitempty"`

	keys []string
}

var (
	legacyValidationKeys = []string{"status_code", "max_response_time", "json", "fail_on_error"}
	fieldValidationKeys  = []string{"field", "condition", "expected"}
)

func (v *Validation) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: validation entry must be a mapping", node.Line)
	}
	type plain Validation
	if err := node.Decode((*plain)(v)); err != nil {
		return err
	}
	v.keys = mappingKeys(node)
	return nil
}

// IsField reports whether the entry is a field check.
func (v *Validation) IsField() bool {
	if v.keys == nil {
		return v.Field != "" || v.Condition != ""
	}
	return hasAny(v.keys, fieldValidationKeys)
}

// IsLegacy reports whether the entry uses the keyed legacy form.
func (v *Validation) IsLegacy() bool {
	if v.keys == nil {
		return !v.IsField()
	}
	return !v.IsField() && hasAny(v.keys, legacyValidationKeys)
}

// Validations accepts either a single legacy mapping or a list of entries.
type Validations []Validation

func (vs *Validations) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		var v Validation
		if err := node.Decode(&v); err != nil {
			return err
		}
		*vs = Validations{v}
		return nil
	case yaml.SequenceNode:
		var list []Validation
		if err := node.Decode(&list); err != nil {
			return err
		}
		*vs = list
		return nil
	default:
		return fmt.Errorf("line %d: validate must be a mapping or a list", node.Line)
	}
}

// StatusCodes returns the first legacy status_code expectation, if any.
func (vs Validations) StatusCodes() Codes {
	for _, v := range vs {
		if len(v.StatusCode) > 0 {
			return v.StatusCode
		}
	}
	return nil
}

func mappingKeys(node *yaml.Node) []string {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys = append(keys, node.Content[i].Value)
	}
	return keys
}

func unknownKeys(keys, allowed []string) []string {
	var out []string
	for _, k := range keys {
		if !contains(allowed, k) {
			out = append(out, k)
		}
	}
	return out
}

func hasAny(keys, want []string) bool {
	for _, k := range keys {
		if contains(want, k) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
