// Package params reads sparse write-operation parameters. Values come either
// from a decoded JSON object or from form/query parameters; absent keys stay
// nil so that patches only carry what the caller supplied.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

// Values holds raw parameter values keyed by name.
type Values map[string]any

// FromForm keeps the first value of each form key.
func FromForm(form url.Values) Values {
	v := make(Values, len(form))
	for key, vals := range form {
		if len(vals) > 0 {
			v[key] = vals[0]
		}
	}
	return v
}

// Has reports whether key was supplied.
func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// Reader converts values and collects conversion errors.
type Reader struct {
	values Values
	errs   []error
}

// NewReader wraps values.
func NewReader(values Values) *Reader {
	return &Reader{values: values}
}

// Err joins every conversion error, each wrapping ErrInvalidParameter.
func (r *Reader) Err() error {
	return errors.Join(r.errs...)
}

func (r *Reader) fail(key string, raw any, err error) {
	r.errs = append(r.errs, fmt.Errorf("%w: %s=%v: %v", errspkg.ErrInvalidParameter, key, raw, err))
}

func (r *Reader) lookup(key string) (any, bool) {
	raw, ok := r.values[key]
	if !ok || raw == nil {
		return nil, false
	}
	return raw, true
}

// String returns the value as text.
func (r *Reader) String(key string) *string {
	raw, ok := r.lookup(key)
	if !ok {
		return nil
	}
	s := fmt.Sprint(raw)
	return &s
}

// Bool accepts JSON booleans and strconv.ParseBool spellings.
func (r *Reader) Bool(key string) *bool {
	raw, ok := r.lookup(key)
	if !ok {
		return nil
	}
	if b, ok := raw.(bool); ok {
		return &b
	}
	b, err := strconv.ParseBool(strings.TrimSpace(fmt.Sprint(raw)))
	if err != nil {
		r.fail(key, raw, err)
		return nil
	}
	return &b
}

// Int64 accepts JSON numbers and decimal strings.
func (r *Reader) Int64(key string) *int64 {
	raw, ok := r.lookup(key)
	if !ok {
		return nil
	}
	n, err := toInt64(raw)
	if err != nil {
		r.fail(key, raw, err)
		return nil
	}
	return &n
}

// Int is Int64 narrowed to int.
func (r *Reader) Int(key string) *int {
	n := r.Int64(key)
	if n == nil {
		return nil
	}
	i := int(*n)
	return &i
}

// Duration reads a bare number as a count of unit, or a Go duration string
// such as "1m30s".
func (r *Reader) Duration(key string, unit time.Duration) *time.Duration {
	raw, ok := r.lookup(key)
	if !ok {
		return nil
	}
	if n, err := toInt64(raw); err == nil {
		d := time.Duration(n) * unit
		return &d
	}
	d, err := time.ParseDuration(strings.TrimSpace(fmt.Sprint(raw)))
	if err != nil {
		r.fail(key, raw, err)
		return nil
	}
	return &d
}

// List accepts a JSON array or a comma separated string. Blank items are
// dropped.
func (r *Reader) List(key string) *[]string {
	raw, ok := r.lookup(key)
	if !ok {
		return nil
	}
	var items []string
	switch t := raw.(type) {
	case []any:
		for _, item := range t {
			items = append(items, fmt.Sprint(item))
		}
	case []string:
		items = append(items, t...)
	default:
		items = strings.Split(fmt.Sprint(raw), ",")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return &out
}

func toInt64(raw any) (int64, error) {
	switch t := raw.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("not an integer")
		}
		return int64(t), nil
	case json.Number:
		return t.Int64()
	default:
		return strconv.ParseInt(strings.TrimSpace(fmt.Sprint(raw)), 10, 64)
	}
}
