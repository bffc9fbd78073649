package transform

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"flowload/internal/core"
)

const (
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	alphaChars  = lowerChars + upperChars
	alnumChars  = alphaChars + digitChars
	maxStrLen   = 10000
	defaultSize = 10
)

var charsets = map[string]string{
	"alphanumeric": alnumChars,
	"alpha":        alphaChars,
	"alphabetic":   alphaChars,
	"numeric":      digitChars,
	"lower":        lowerChars,
	"lowercase":    lowerChars,
	"upper":        upperChars,
	"uppercase":    upperChars,
}

// randIndex returns a uniform random int in [0, n).
func randIndex(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("invalid range %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// uuidTransform returns a version 4 UUID, or version 1 when config.version is 1.
func uuidTransform(_ any, cfg Config, _ core.Context) (any, error) {
	if cfg.Int("version", 4) == 1 {
		id, err := uuid.NewUUID()
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	}
	return uuid.NewString(), nil
}

type timestampTransform struct {
	clock core.Clock
}

// Execute returns the current Unix time as an integer in config.unit
// (seconds by default, milliseconds or microseconds).
func (t timestampTransform) Execute(_ any, cfg Config, _ core.Context) (any, error) {
	now := t.clock.Now()
	switch cfg.String("unit", "seconds") {
	case "milliseconds":
		return now.UnixMilli(), nil
	case "microseconds":
		return now.UnixMicro(), nil
	default:
		return now.Unix(), nil
	}
}

// randomNumber returns an int in [min, max]. A max not above min yields min;
// rejecting that pair is left to config validation.
func randomNumber(_ any, cfg Config, _ core.Context) (any, error) {
	lo := cfg.Int("min", 0)
	hi := cfg.Int("max", 100)
	if hi <= lo {
		return lo, nil
	}
	n, err := randIndex(hi - lo + 1)
	if err != nil {
		return nil, err
	}
	return lo + n, nil
}

// randomString builds a string of config.length characters. config.charset
// names one of the built-in alphabets, "custom" (read from config.chars), or
// is used literally as the alphabet.
func randomString(_ any, cfg Config, _ core.Context) (any, error) {
	length := cfg.Int("length", defaultSize)
	if length < 0 || length > maxStrLen {
		return nil, fmt.Errorf("length must be between 0 and %d, got %d", maxStrLen, length)
	}

	name := cfg.String("charset", "alphanumeric")
	chars, ok := charsets[name]
	if !ok {
		chars = name
		if name == "custom" {
			chars = cfg.String("chars", "")
		}
	}
	if chars == "" {
		return nil, errors.New("empty charset")
	}

	alphabet := []rune(chars)
	out := make([]rune, length)
	for i := range out {
		n, err := randIndex(len(alphabet))
		if err != nil {
			return nil, err
		}
		out[i] = alphabet[n]
	}
	return string(out), nil
}

// randomChoice picks from config.choices, or from the list variable named by
// config.choices_var.
func randomChoice(_ any, cfg Config, ctx core.Context) (any, error) {
	choices := cfg.List("choices")
	if len(choices) == 0 {
		if name := cfg.String("choices_var", ""); name != "" {
			choices, _ = toList(ctx[name])
		}
	}
	if len(choices) == 0 {
		return nil, errors.New("no choices provided")
	}
	n, err := randIndex(len(choices))
	if err != nil {
		return nil, err
	}
	return choices[n], nil
}

// increment keeps one counter per config.key. The first call for a key
// returns config.start; later calls add config.step.
type increment struct {
	mu       sync.Mutex
	counters map[string]int
}

func newIncrement() *increment {
	return &increment{counters: make(map[string]int)}
}

func (h *increment) Execute(_ any, cfg Config, _ core.Context) (any, error) {
	key := cfg.String("key", "default")

	h.mu.Lock()
	defer h.mu.Unlock()

	v, ok := h.counters[key]
	if !ok {
		v = cfg.Int("start", 1)
	} else {
		v += cfg.Int("step", 1)
	}
	h.counters[key] = v
	return v, nil
}
