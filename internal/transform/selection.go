package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"flowload/internal/core"
	"flowload/internal/log"
)

// Selection modes. Sequential has always behaved exactly like random and
// configs depend on that, so it is kept as an alias.
const (
	modeRandom     = "random"
	modeRoundRobin = "round_robin"
	modeSequential = "sequential"
)

// selector owns the round-robin positions shared by every actor using the
// same Registry. Positions only advance; they are never reset.
type selector struct {
	mu      sync.Mutex
	indexes map[string]int
	msisdn  int
}

func newSelector() *selector {
	return &selector{indexes: make(map[string]int)}
}

// next returns the current position for key modulo n, then advances it.
func (s *selector) next(key string, n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexes[key]
	s.indexes[key] = i + 1
	return i % n
}

func (s *selector) nextMSISDN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.msisdn
	s.msisdn++
	return i % n
}

// selectFromList picks one element from config.items, or from the context
// list named by config.from. If that variable holds a string rather than a
// list, the string is taken as the name of the list.
func (s *selector) selectFromList(_ any, cfg Config, ctx core.Context) (any, error) {
	var raw any
	if v, ok := cfg.Value("items"); ok && !emptyList(v) {
		raw = v
	} else if from := cfg.String("from", ""); from != "" {
		raw = ctx[from]
		if name, ok := raw.(string); ok && name != "" {
			raw = ctx[name]
		}
	}
	if raw == nil || emptyList(raw) {
		return nil, errors.New("no items provided, use 'items' or 'from'")
	}

	items, ok := toList(raw)
	if !ok {
		return nil, fmt.Errorf("items must be a list, got %T", raw)
	}

	switch mode := cfg.String("mode", modeRandom); mode {
	case modeRoundRobin:
		return items[s.next(counterKey(cfg), len(items))], nil
	case modeRandom, modeSequential:
		return pick(items)
	default:
		log.L().Warn("unknown selection mode, using random", zap.String("mode", mode))
		return pick(items)
	}
}

// selectMSISDN is the older spelling of selectFromList for subscriber
// numbers. All round-robin callers share one position.
func (s *selector) selectMSISDN(_ any, cfg Config, ctx core.Context) (any, error) {
	items := cfg.List("msisdns")
	if len(items) == 0 {
		if name := cfg.String("msisdns_var", ""); name != "" {
			items, _ = toList(ctx[name])
		}
	}
	if len(items) == 0 {
		return nil, errors.New("no msisdns provided")
	}

	if cfg.String("mode", modeRandom) == modeRoundRobin {
		return items[s.nextMSISDN(len(items))], nil
	}
	return pick(items)
}

// counterKey identifies a round-robin position: the source variable name, or
// the inline item list itself.
func counterKey(cfg Config) string {
	if from := cfg.String("from", ""); from != "" {
		return from
	}
	b, err := json.Marshal(cfg["items"])
	if err != nil {
		return "default"
	}
	return string(b)
}

func pick(items []any) (any, error) {
	n, err := randIndex(len(items))
	if err != nil {
		return nil, err
	}
	return items[n], nil
}

func emptyList(v any) bool {
	list, ok := toList(v)
	return ok && len(list) == 0
}

// appendToList appends config.value to the context list named by
// config.list_var, creating the list when absent.
func appendToList(_ any, cfg Config, ctx core.Context) (any, error) {
	name, err := cfg.Require("list_var")
	if err != nil {
		return nil, err
	}
	value, ok := cfg.Value("value")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingConfig, "value")
	}

	var list []any
	if current, exists := ctx[name]; exists && current != nil {
		list, ok = toList(current)
		if !ok {
			return nil, fmt.Errorf("variable %q is not a list, got %T", name, current)
		}
	}
	// The list may be shared with the data store or another actor; never
	// append into its backing array.
	list = append(list[:len(list):len(list)], value)
	ctx[name] = list

	log.L().Debug("appended to list", log.Variable(name), zap.Int("len", len(list)))
	return list, nil
}
