package shared

import (
	"fmt"
	"os"
	"strconv"
)

// ParseEnvFunc converts the raw value of an environment variable into T.
type ParseEnvFunc[T any] func(raw string) (T, error)

func GetenvString(raw string) (string, error) {
	return raw, nil
}

func GetenvInt(raw string) (int, error) {
	return strconv.Atoi(raw)
}

func GetenvBool(raw string) (bool, error) {
	return strconv.ParseBool(raw)
}

// Getenv reads key from the environment and parses it with parse. When the
// variable is unset, required decides between an error and the fallback.
func Getenv[T any](parse ParseEnvFunc[T], key string, required bool, fallback T) (T, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		if required {
			var zero T
			return zero, fmt.Errorf("required environment variable %q is not set", key)
		}
		return fallback, nil
	}
	v, err := parse(raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("on parsing environment variable %q: %w", key, err)
	}
	return v, nil
}

// MustGetenv is Getenv that panics instead of returning an error.
func MustGetenv[T any](parse ParseEnvFunc[T], key string, required bool, fallback T) T {
	v, err := Getenv(parse, key, required, fallback)
	if err != nil {
		panic(err)
	}
	return v
}
