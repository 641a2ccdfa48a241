package layers

import (
	"os"
	"sort"
	"strings"
)

// EnvironmentLayer reads the live process environment.
type EnvironmentLayer struct{}

func NewEnvironmentLayer() EnvironmentLayer { return EnvironmentLayer{} }

func (EnvironmentLayer) Name() string { return "environment" }
func (EnvironmentLayer) Kind() Kind   { return KindEnvironment }

func (EnvironmentLayer) Get(key string) (any, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil, false
	}
	return v, true
}

// Keys are sorted so dumps are stable.
func (EnvironmentLayer) Keys() []string {
	env := os.Environ()
	keys := make([]string, 0, len(env))
	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		if key != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
