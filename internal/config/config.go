// Package config handles flow configuration parsing. Documents may be YAML or
// JSON; both are read with the YAML decoder.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"flowload/internal/data"
)

// ErrInvalidConfig wraps every problem reported by Validate.
var ErrInvalidConfig = errors.New("invalid config")

const DefaultTimeout = 30 * time.Second

// Config is the root configuration document.
type Config struct {
	ServiceName string            `yaml:"service_name"`
	BaseURL     string            `yaml:"base_url"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	Variables   map[string]any    `yaml:"variables,omitempty"`
	Init        []Step            `yaml:"init,omitempty"`
	FlowInit    []Transform       `yaml:"flow_init,omitempty"`
	Steps       []Step            `yaml:"steps,omitempty"`
	Cleanup     []Step            `yaml:"cleanup,omitempty"`
	RunInitOnce bool              `yaml:"run_init_once,omitempty"`
	InitListVar string            `yaml:"init_list_var,omitempty"`
	Timeout     float64           `yaml:"timeout,omitempty"` // seconds
	Verify      *bool             `yaml:"verify,omitempty"`
	Locust      *Locust           `yaml:"locust,omitempty"`
	// DataFiles maps a variable name to a file whose values become that
	// variable's list. Load reads them; Parse does not.
	DataFiles map[string]string `yaml:"data_files,omitempty"`

	unknown []string
}

// Step describes one HTTP interaction.
type Step struct {
	Name           string                 `yaml:"name"`
	Method         string                 `yaml:"method"`
	Endpoint       string                 `yaml:"endpoint"`
	Headers        map[string]string      `yaml:"headers,omitempty"`
	Data           any                    `yaml:"data,omitempty"`
	JSON           any                    `yaml:"json,omitempty"`
	Params         map[string]any         `yaml:"params,omitempty"`
	PreRequest     PreRequests            `yaml:"pre_request,omitempty"`
	PreTransforms  []Transform            `yaml:"pre_transforms,omitempty"`
	PostTransforms []Transform            `yaml:"post_transforms,omitempty"`
	Extract        map[string]ExtractRule `yaml:"extract,omitempty"`
	Validate       Validations            `yaml:"validate,omitempty"`
	RetryOn        *RetryRule             `yaml:"retry_on,omitempty"`
	SkipIf         *Condition             `yaml:"skip_if,omitempty"`
	Weight         any                    `yaml:"weight,omitempty"`
	Timeout        *float64               `yaml:"timeout,omitempty"` // seconds
	AllowRedirects *bool                  `yaml:"allow_redirects,omitempty"`
	FailFast       *bool                  `yaml:"fail_fast,omitempty"`

	keys []string
}

// Transform is a (type, config, input, output) tuple run before or after a
// request.
type Transform struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config,omitempty"`
	Input  any            `yaml:"input,omitempty"`
	Output string         `yaml:"output,omitempty"`
}

// RetryRule repeats a step while Condition(Left, Right) holds. Right may list
// alternatives joined by "||" or "&&".
type RetryRule struct {
	Condition  string `yaml:"condition"`
	Left       string `yaml:"left"`
	Right      string `yaml:"right"`
	Action     string `yaml:"action,omitempty"`
	MaxRetries *int   `yaml:"max_retries,omitempty"`
}

const DefaultMaxRetries = 3

// Attempts is the total number of requests the rule allows, at least one.
func (r *RetryRule) Attempts() int {
	if r == nil {
		return 1
	}
	n := DefaultMaxRetries
	if r.MaxRetries != nil {
		n = *r.MaxRetries
	}
	if n < 1 {
		return 1
	}
	return n
}

// Condition is a single predicate, used by skip_if.
type Condition struct {
	Condition string `yaml:"condition"`
	Left      string `yaml:"left"`
	Right     string `yaml:"right"`
}

// Locust holds the per-actor wait time between iterations.
type Locust struct {
	WaitTime   string   `yaml:"wait_time,omitempty"`
	Throughput *float64 `yaml:"throughput,omitempty"`
	MinWait    *float64 `yaml:"min_wait,omitempty"`
	MaxWait    *float64 `yaml:"max_wait,omitempty"`
	Pacing     *float64 `yaml:"pacing,omitempty"`
}

// Wait time modes.
const (
	WaitConstantThroughput = "constant_throughput"
	WaitConstant           = "constant"
	WaitBetween            = "between"
	WaitConstantPacing     = "constant_pacing"
)

// RequestTimeout returns the step timeout, else the document timeout, else
// DefaultTimeout.
func (c *Config) RequestTimeout(s *Step) time.Duration {
	if s != nil && s.Timeout != nil && *s.Timeout > 0 {
		return seconds(*s.Timeout)
	}
	if c.Timeout > 0 {
		return seconds(c.Timeout)
	}
	return DefaultTimeout
}

// VerifyTLS reports whether TLS certificates are checked (default true).
func (c *Config) VerifyTLS() bool {
	return c.Verify == nil || *c.Verify
}

// FindStep returns the first init, main or cleanup step named name.
func (c *Config) FindStep(name string) (*Step, bool) {
	for _, list := range [][]Step{c.Init, c.Steps, c.Cleanup} {
		for i := range list {
			if list[i].Name == name {
				return &list[i], true
			}
		}
	}
	return nil, false
}

// FollowRedirects reports whether redirects are followed (default true).
func (s *Step) FollowRedirects() bool {
	return s.AllowRedirects == nil || *s.AllowRedirects
}

// IsFailFast returns the step's fail_fast flag, or def when unset.
func (s *Step) IsFailFast(def bool) bool {
	if s.FailFast == nil {
		return def
	}
	return *s.FailFast
}

// ParseWeight converts a weight value to a number. Strings are parsed as
// floats; nil means 1.
func ParseWeight(v any) (float64, error) {
	switch w := v.(type) {
	case nil:
		return 1, nil
	case int:
		return float64(w), nil
	case int64:
		return float64(w), nil
	case float64:
		return w, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
		if err != nil {
			return 0, fmt.Errorf("weight must be a number, got %q", w)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("weight must be a number, got %T", v)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.LoadDataFiles(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDataFiles reads every data_files entry into Variables. A data file may
// not shadow a variable defined inline.
func (c *Config) LoadDataFiles(baseDir string) error {
	if len(c.DataFiles) == 0 {
		return nil
	}
	if c.Variables == nil {
		c.Variables = make(map[string]any)
	}
	var errs []error
	for _, name := range sortedKeys(c.DataFiles) {
		if _, exists := c.Variables[name]; exists {
			errs = append(errs, fmt.Errorf("data_files: %q is already defined in variables", name))
			continue
		}
		values, err := data.Load(c.DataFiles[name], baseDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("data_files: %s: %w", name, err))
			continue
		}
		c.Variables[name] = values
	}
	return errors.Join(errs...)
}

// Parse decodes a YAML or JSON document.
func Parse(doc []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(doc, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
