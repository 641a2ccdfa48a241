package params

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

func TestReaderFromForm(t *testing.T) {
	form := url.Values{
		"name":      {"pool-a", "ignored"},
		"enabled":   {"true"},
		"size":      {"12"},
		"keepAlive": {"30"},
		"timeout":   {"1m30s"},
		"cookies":   {"JSESSIONID, XSRF-TOKEN,,"},
	}
	r := NewReader(FromForm(form))

	assert.Equal(t, "pool-a", *r.String("name"))
	assert.True(t, *r.Bool("enabled"))
	assert.Equal(t, 12, *r.Int("size"))
	assert.Equal(t, 30*time.Second, *r.Duration("keepAlive", time.Second))
	assert.Equal(t, 90*time.Second, *r.Duration("timeout", time.Millisecond))
	assert.Equal(t, []string{"JSESSIONID", "XSRF-TOKEN"}, *r.List("cookies"))
	assert.Nil(t, r.String("missing"))
	assert.Nil(t, r.Int("missing"))
	require.NoError(t, r.Err())
}

func TestReaderFromJSON(t *testing.T) {
	r := NewReader(Values{
		"size":    json.Number("8"),
		"ratio":   float64(4),
		"flag":    false,
		"names":   []any{"a", "b"},
		"nothing": nil,
	})

	assert.Equal(t, int64(8), *r.Int64("size"))
	assert.Equal(t, 4, *r.Int("ratio"))
	assert.False(t, *r.Bool("flag"))
	assert.Equal(t, []string{"a", "b"}, *r.List("names"))
	assert.Nil(t, r.String("nothing"))
	require.NoError(t, r.Err())
}

func TestReaderCollectsErrors(t *testing.T) {
	r := NewReader(Values{"size": "big", "flag": "maybe", "d": "soon", "f": 1.5})

	assert.Nil(t, r.Int("size"))
	assert.Nil(t, r.Bool("flag"))
	assert.Nil(t, r.Duration("d", time.Second))
	assert.Nil(t, r.Int("f"))

	err := r.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, errspkg.ErrInvalidParameter)
	assert.Contains(t, err.Error(), "size=big")
	assert.Contains(t, err.Error(), "flag=maybe")
}

func TestHas(t *testing.T) {
	v := Values{"a": nil}
	assert.True(t, v.Has("a"))
	assert.False(t, v.Has("b"))
}
