package log

import "go.uber.org/zap"

const (
	KeyActor     = "actor"
	KeyStep      = "step"
	KeyTransform = "transform"
	KeyStoreKey  = "store_key"
	KeyVariable  = "variable"
)

func Actor(id int) zap.Field {
	return zap.Int(KeyActor, id)
}

func Step(name string) zap.Field {
	return zap.String(KeyStep, name)
}

func Transform(name string) zap.Field {
	return zap.String(KeyTransform, name)
}

func StoreKey(key string) zap.Field {
	return zap.String(KeyStoreKey, key)
}

func Variable(name string) zap.Field {
	return zap.String(KeyVariable, name)
}

// Truncate shortens s to at most n bytes for log output.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
