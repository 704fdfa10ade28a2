// ABOUTME: Tests for the tool registry and argument helpers
// ABOUTME: Covers lookups, collision rejection and schema validation

package tools

import (
	"context"
	"math"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, env *Env, args Arguments) (string, error) {
	return "ok", nil
}

func tool(id, name string) *Tool {
	return &Tool{ID: id, Name: name, Description: name + " tool", Handler: noop}
}

func TestNewRegistry_Lookups(t *testing.T) {
	r, err := NewRegistry(tool("t1", "alpha"), tool("t2", "beta"), tool("t3", "gamma"))
	require.NoError(t, err)

	assert.Equal(t, 3, r.Len())
	names := []string{}
	for _, tl := range r.All() {
		names = append(names, tl.Name)
	}
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, names)

	require.NotNil(t, r.ByName("beta"))
	assert.Equal(t, "t2", r.ByName("beta").ID)
	require.NotNil(t, r.ByID("t3"))
	assert.Equal(t, "gamma", r.ByID("t3").Name)

	assert.Nil(t, r.ByName("delta"))
	assert.Nil(t, r.ByID("t9"))
}

func TestNewRegistry_RejectsCollisions(t *testing.T) {
	_, err := NewRegistry(tool("t1", "alpha"), tool("t2", "alpha"))
	assert.ErrorIs(t, err, ErrToolCollision)

	_, err = NewRegistry(tool("t1", "alpha"), tool("t1", "beta"))
	assert.ErrorIs(t, err, ErrToolCollision)
}

func TestNewRegistry_RejectsIncompleteTools(t *testing.T) {
	_, err := NewRegistry(&Tool{ID: "t1", Handler: noop})
	assert.ErrorIs(t, err, ErrInvalidTool)

	_, err = NewRegistry(&Tool{ID: "t1", Name: "alpha"})
	assert.ErrorIs(t, err, ErrInvalidTool)

	_, err = NewRegistry(nil)
	assert.ErrorIs(t, err, ErrInvalidTool)
}

func TestRegistry_AllReturnsCopy(t *testing.T) {
	r, err := NewRegistry(tool("t1", "alpha"))
	require.NoError(t, err)

	all := r.All()
	all[0] = tool("x", "mutated")
	assert.Equal(t, "alpha", r.All()[0].Name)
}

func TestRegistry_Validate(t *testing.T) {
	withSchema := &Tool{
		ID:      "t1",
		Name:    "open_file",
		Handler: noop,
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":    {Type: "string"},
				"preview": {Type: "boolean"},
			},
			Required: []string{"path"},
		},
	}
	r, err := NewRegistry(withSchema, tool("t2", "ping"))
	require.NoError(t, err)

	assert.NoError(t, r.Validate(withSchema, Arguments{"path": "/tmp/a.go"}))
	assert.NoError(t, r.Validate(withSchema, Arguments{"path": "/tmp/a.go", "preview": true}))
	assert.ErrorIs(t, r.Validate(withSchema, Arguments{}), ErrInvalidArguments)
	assert.ErrorIs(t, r.Validate(withSchema, Arguments{"path": true}), ErrInvalidArguments)

	// A tool without a schema accepts any object.
	assert.NoError(t, r.Validate(r.ByName("ping"), nil))
	assert.NoError(t, r.Validate(r.ByName("ping"), Arguments{"anything": "goes"}))
}

func TestArguments(t *testing.T) {
	args := Arguments{
		"name":    "x",
		"flag":    true,
		"count":   float64(3),
		"ratio":   1.5,
		"literal": 7,
		"huge":    1e300,
		"tiny":    -1e300,
		"inf":     math.Inf(1),
		"nan":     math.NaN(),
		"neg":     float64(-42),
	}

	assert.Equal(t, "x", args.String("name", "d"))
	assert.Equal(t, "d", args.String("missing", "d"))
	assert.Equal(t, "d", args.String("flag", "d"))

	assert.True(t, args.Bool("flag", false))
	assert.True(t, args.Bool("missing", true))

	assert.Equal(t, 3, args.Int("count", 0))
	assert.Equal(t, 7, args.Int("literal", 0))
	assert.Equal(t, -1, args.Int("ratio", -1))
	assert.Equal(t, -1, args.Int("name", -1))
	assert.Equal(t, -42, args.Int("neg", 0))
	for _, key := range []string{"huge", "tiny", "inf", "nan"} {
		assert.Equal(t, -1, args.Int(key, -1), key)
	}

	assert.True(t, args.Has("name"))
	assert.False(t, args.Has("missing"))

	var nilArgs Arguments
	assert.Equal(t, "d", nilArgs.String("x", "d"))
}
