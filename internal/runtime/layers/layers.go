// Package layers is the layered configuration store behind the configuration
// endpoint. A Store holds an ordered list of layers; lookups walk the list in
// priority order and the first layer defining a key wins.
package layers

import (
	"context"
	"fmt"
	"strings"

	"github.com/drblury/actuator/internal/runtime/enum"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

// Kind is the closed set of layer sources.
type Kind string

const (
	KindRuntime     Kind = "runtime"
	KindSystem      Kind = "system"
	KindEnvironment Kind = "environment"
	KindApplication Kind = "application"
	KindDynamic     Kind = "dynamic"
	KindDatabase    Kind = "database"
)

var Kinds = []Kind{KindRuntime, KindSystem, KindEnvironment, KindApplication, KindDynamic, KindDatabase}

// ParseKind matches s against Kinds. "env" is accepted for environment.
func ParseKind(s string) (Kind, error) {
	if strings.EqualFold(strings.TrimSpace(s), "env") {
		return KindEnvironment, nil
	}
	k, ok := enum.Parse(s, Kinds...)
	if !ok {
		return "", fmt.Errorf("%w: %q", errspkg.ErrUnknownLayer, s)
	}
	return k, nil
}

// Layer is one configuration source.
type Layer interface {
	Name() string
	Kind() Kind
	Get(key string) (any, bool)
}

// Enumerable layers can list their keys, in the order they are dumped.
type Enumerable interface {
	Keys() []string
}

// Reloader layers re-read their backing source.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Entry is one key found in a layer.
type Entry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	Layer string `json:"layer"`
}

// Operator selects how Search compares keys with the pattern.
type Operator string

const (
	OperatorEquals     Operator = "equals"
	OperatorContains   Operator = "contains"
	OperatorStartsWith Operator = "startsWith"
	OperatorEndsWith   Operator = "endsWith"
)

var Operators = []Operator{OperatorEquals, OperatorContains, OperatorStartsWith, OperatorEndsWith}

// ParseOperator matches s against Operators.
func ParseOperator(s string) (Operator, error) {
	op, ok := enum.Parse(s, Operators...)
	if !ok {
		return "", fmt.Errorf("%w: %q", errspkg.ErrUnknownOperator, s)
	}
	return op, nil
}

// Match reports whether key matches pattern under op.
func (op Operator) Match(key, pattern string) bool {
	switch op {
	case OperatorEquals:
		return key == pattern
	case OperatorContains:
		return strings.Contains(key, pattern)
	case OperatorStartsWith:
		return strings.HasPrefix(key, pattern)
	case OperatorEndsWith:
		return strings.HasSuffix(key, pattern)
	default:
		return false
	}
}

// ordered is an insertion-ordered map. Re-setting a key keeps its position.
type ordered struct {
	keys   []string
	values map[string]any
}

func newOrdered() *ordered {
	return &ordered{values: map[string]any{}}
}

func (o *ordered) set(key string, value any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

func (o *ordered) get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *ordered) remove(key string) bool {
	if _, ok := o.values[key]; !ok {
		return false
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

func (o *ordered) names() []string {
	return append([]string(nil), o.keys...)
}

func (o *ordered) len() int { return len(o.keys) }
