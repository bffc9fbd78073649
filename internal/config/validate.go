package config

import (
	"errors"
	"fmt"
	"strings"

	"flowload/internal/condition"
	"flowload/internal/transform"
)

var methods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

var selectModes = []string{"random", "round_robin", "sequential"}

var waitTimes = []string{WaitConstantThroughput, WaitConstant, WaitBetween, WaitConstantPacing}

const maxRetriesWarn = 10

type validator struct {
	cfg        *Config
	transforms *transform.Registry
	errs       []error
	warnings   []string
	outputs    map[string]bool
}

func (v *validator) errorf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) warnf(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

// Validate checks the document for the problems the engine cannot recover
// from at run time. It returns any warnings, and an error wrapping
// ErrInvalidConfig that joins every problem found.
func Validate(cfg *Config) ([]string, error) {
	v := &validator{
		cfg:        cfg,
		transforms: transform.NewRegistry(),
		outputs:    make(map[string]bool),
	}

	for _, k := range cfg.unknown {
		v.errorf("invalid top-level field %q, valid fields: %s", k, strings.Join(topLevelKeys, ", "))
	}
	if cfg.ServiceName == "" {
		v.errorf("missing required field 'service_name'")
	}
	if cfg.BaseURL == "" {
		v.errorf("missing required field 'base_url'")
	}
	if len(cfg.Steps) == 0 && len(cfg.Init) == 0 {
		v.errorf("config must have at least 'steps' or 'init'")
	} else if len(cfg.Steps) == 0 {
		v.warnf("no 'steps' defined, only init and cleanup will run")
	}
	if len(cfg.Variables) == 0 {
		v.warnf("no 'variables' defined")
	}

	for _, name := range sortedKeys(cfg.DataFiles) {
		if path := cfg.DataFiles[name]; path == "" {
			v.errorf("data_files: %q has an empty path", name)
		} else if _, ok := cfg.Variables[name]; !ok {
			v.warnf("data_files: %q has not been loaded", name)
		}
	}
	v.runInitOnce()
	v.transformList(cfg.FlowInit, "flow_init")

	seen := make(map[string]string)
	for _, group := range []struct {
		name  string
		steps []Step
	}{{"init", cfg.Init}, {"steps", cfg.Steps}, {"cleanup", cfg.Cleanup}} {
		for i := range group.steps {
			path := fmt.Sprintf("%s[%d]", group.name, i)
			s := &group.steps[i]
			if s.Name != "" {
				if prev, dup := seen[s.Name]; dup {
					v.errorf("%s: step name %q already used by %s", path, s.Name, prev)
				} else {
					seen[s.Name] = path
				}
			}
			v.step(s, path)
		}
	}

	v.locust()

	if len(v.errs) > 0 {
		return v.warnings, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(v.errs...))
	}
	return v.warnings, nil
}

func (v *validator) runInitOnce() {
	if !v.cfg.RunInitOnce {
		return
	}
	name := v.cfg.InitListVar
	if name == "" {
		v.errorf("'run_init_once' requires 'init_list_var'")
		return
	}
	val, ok := v.cfg.Variables[name]
	if !ok {
		v.errorf("'init_list_var: %s' references a variable that doesn't exist", name)
		return
	}
	list, ok := val.([]any)
	if !ok {
		v.errorf("variable %q must be a list for 'init_list_var', got %T", name, val)
		return
	}
	if len(list) == 0 {
		v.warnf("variable %q is an empty list, no identifiers will be initialized", name)
	}
}

func (v *validator) step(s *Step, path string) {
	for _, k := range unknownKeys(s.keys, stepKeys) {
		v.warnf("%s: unknown field %q", path, k)
	}
	if s.Name == "" {
		v.errorf("%s: missing required field 'name'", path)
	} else {
		path = fmt.Sprintf("%s (%s)", path, s.Name)
	}
	if s.Method == "" {
		v.errorf("%s: missing required field 'method'", path)
	} else if !contains(methods, strings.ToUpper(s.Method)) {
		v.errorf("%s: invalid HTTP method %q", path, s.Method)
	}
	if s.Endpoint == "" {
		v.errorf("%s: missing required field 'endpoint'", path)
	}

	for _, pre := range s.PreRequest {
		if pre.Inline == nil && pre.Name == "" {
			v.errorf("%s: 'pre_request' cannot be empty", path)
		}
		if pre.Inline != nil {
			v.step(pre.Inline, path+".pre_request")
		}
	}

	if s.Data != nil && !hasContentType(s.Headers) {
		v.errorf("%s: a 'Content-Type' header is required when using 'data'", path)
	}

	if s.Weight != nil {
		if ws, ok := s.Weight.(string); !ok || !strings.Contains(ws, "{{") {
			w, err := ParseWeight(s.Weight)
			switch {
			case err != nil:
				v.errorf("%s: %v", path, err)
			case w < 0 || w > 1:
				v.errorf("%s: 'weight' must be between 0 and 1, got %v", path, w)
			}
		}
	}

	if s.RetryOn != nil {
		v.retry(s.RetryOn, path+".retry_on")
	}
	if s.SkipIf != nil {
		if s.SkipIf.Condition == "" {
			v.errorf("%s.skip_if: missing required field 'condition'", path)
		} else if !condition.Known(condition.Type(s.SkipIf.Condition)) {
			v.errorf("%s.skip_if: invalid condition %q", path, s.SkipIf.Condition)
		}
	}
	for i := range s.Validate {
		v.validation(&s.Validate[i], fmt.Sprintf("%s.validate[%d]", path, i))
	}

	v.transformList(s.PreTransforms, path+".pre_transforms")
	v.transformList(s.PostTransforms, path+".post_transforms")
}

func (v *validator) retry(r *RetryRule, path string) {
	if r.Condition == "" {
		v.errorf("%s: missing required field 'condition'", path)
	} else if !condition.Known(condition.Type(r.Condition)) {
		v.errorf("%s: invalid condition %q", path, r.Condition)
	}
	if r.Left == "" {
		v.errorf("%s: missing required field 'left'", path)
	}
	emptiness := r.Condition == string(condition.IsEmpty) || r.Condition == string(condition.IsNotEmpty)
	if r.Right == "" && !emptiness {
		v.errorf("%s: missing required field 'right'", path)
	}
	if condition.Mixed(r.Right) {
		v.errorf("%s: 'right' mixes '||' and '&&', which is not supported", path)
	}
	if r.MaxRetries != nil {
		switch n := *r.MaxRetries; {
		case n < 0:
			v.errorf("%s.max_retries: must be a positive integer, got %d", path, n)
		case n > maxRetriesWarn:
			v.warnf("%s.max_retries: %d is very high", path, n)
		}
	}
	if r.Action != "" {
		if _, ok := v.cfg.FindStep(r.Action); !ok {
			v.warnf("%s.action: step %q not found", path, r.Action)
		}
	}
}

func (v *validator) validation(val *Validation, path string) {
	switch {
	case val.IsField():
		for _, k := range unknownKeys(val.keys, fieldValidationKeys) {
			v.warnf("%s: unknown field %q", path, k)
		}
		if val.Field == "" {
			v.errorf("%s: missing required field 'field'", path)
		}
		if val.Condition == "" {
			v.errorf("%s: missing required field 'condition'", path)
		} else if !condition.Known(condition.Type(val.Condition)) {
			v.errorf("%s: invalid condition %q", path, val.Condition)
		}
	case val.IsLegacy():
		for _, k := range unknownKeys(val.keys, legacyValidationKeys) {
			v.warnf("%s: unknown validation field %q", path, k)
		}
	default:
		v.errorf("%s: invalid validation format, found keys: %s", path, strings.Join(val.keys, ", "))
	}
}

func (v *validator) transformList(list []Transform, path string) {
	for i := range list {
		t := &list[i]
		p := fmt.Sprintf("%s[%d]", path, i)
		if t.Type == "" {
			v.errorf("%s: missing required field 'type'", p)
			continue
		}
		if !v.transforms.Has(t.Type) {
			v.errorf("%s: invalid transform type %q", p, t.Type)
			continue
		}

		switch t.Type {
		case "select_from_list":
			v.selectFromList(t, p)
		case "random_number":
			lo, okLo := t.Config["min"].(int)
			hi, okHi := t.Config["max"].(int)
			if okLo && okHi && lo >= hi {
				v.errorf("%s.config: 'min' (%d) must be less than 'max' (%d)", p, lo, hi)
			}
		case "random_string":
			if n, ok := t.Config["length"].(int); ok && n <= 0 {
				v.errorf("%s.config.length: must be a positive integer", p)
			}
		case "store_data":
			if _, ok := t.Config["key"]; !ok {
				v.errorf("%s.config: missing required field 'key'", p)
			}
			if _, ok := t.Config["values"].([]any); !ok {
				v.errorf("%s.config.values: must be a list", p)
			}
		case "rsa_encrypt":
			if t.Input == nil {
				v.errorf("%s: 'rsa_encrypt' requires 'input'", p)
			}
			if t.Output == "" {
				v.errorf("%s: 'rsa_encrypt' requires 'output'", p)
			}
		}

		if t.Output != "" {
			v.outputs[t.Output] = true
		}
	}
}

func (v *validator) selectFromList(t *Transform, path string) {
	if t.Config == nil {
		v.errorf("%s: 'select_from_list' requires 'config'", path)
		return
	}
	if mode, ok := t.Config["mode"].(string); ok && !contains(selectModes, mode) {
		v.errorf("%s.config.mode: invalid mode %q", path, mode)
	}
	if t.Output == "" {
		v.warnf("%s: missing 'output', the selection will not be stored", path)
	}

	from, hasFrom := t.Config["from"].(string)
	_, hasItems := t.Config["items"]
	switch {
	case !hasFrom && !hasItems:
		v.errorf("%s.config: one of 'from' or 'items' is required", path)
	case hasFrom && !strings.Contains(from, "{{") && !v.outputs[from]:
		val, ok := v.cfg.Variables[from]
		if !ok {
			v.errorf("%s.config.from: variable %q does not exist", path, from)
		} else if _, isList := val.([]any); !isList {
			v.errorf("%s.config.from: variable %q must be a list, got %T", path, from, val)
		}
	}
}

func (v *validator) locust() {
	l := v.cfg.Locust
	if l == nil || l.WaitTime == "" {
		return
	}
	if !contains(waitTimes, l.WaitTime) {
		v.errorf("locust.wait_time: invalid value %q, valid options: %s", l.WaitTime, strings.Join(waitTimes, ", "))
		return
	}
	switch l.WaitTime {
	case WaitConstantThroughput:
		if l.Throughput == nil {
			v.errorf("locust: 'throughput' is required when wait_time is %q", l.WaitTime)
		} else if *l.Throughput <= 0 {
			v.errorf("locust.throughput: must be positive")
		}
	case WaitConstant:
		if l.MinWait == nil {
			v.errorf("locust: 'min_wait' is required when wait_time is %q", l.WaitTime)
		} else if *l.MinWait < 0 {
			v.errorf("locust.min_wait: must be non-negative")
		}
	case WaitBetween:
		if l.MinWait == nil || l.MaxWait == nil {
			v.errorf("locust: both 'min_wait' and 'max_wait' are required when wait_time is %q", l.WaitTime)
			return
		}
		if *l.MinWait < 0 || *l.MaxWait < 0 {
			v.errorf("locust: wait times must be non-negative")
		}
		if *l.MinWait > *l.MaxWait {
			v.errorf("locust: 'min_wait' (%v) cannot be greater than 'max_wait' (%v)", *l.MinWait, *l.MaxWait)
		}
	case WaitConstantPacing:
		if l.Pacing == nil {
			v.errorf("locust: 'pacing' is required when wait_time is %q", l.WaitTime)
		} else if *l.Pacing <= 0 {
			v.errorf("locust.pacing: must be positive")
		}
	}
}

func hasContentType(h map[string]string) bool {
	for k := range h {
		if strings.EqualFold(k, "Content-Type") {
			return true
		}
	}
	return false
}
