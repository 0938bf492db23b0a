package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
)

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func TestSchemaRendering(t *testing.T) {
	s := Object(
		Prop("command", String("The shell command to execute")),
		Prop("cwd", String("Working directory for the command (optional)")),
		Prop("tags", Array(String(""), "labels")),
	).Require("command")

	assert.JSONEq(t, `{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "The shell command to execute"},
			"cwd": {"type": "string", "description": "Working directory for the command (optional)"},
			"tags": {"type": "array", "description": "labels", "items": {"type": "string"}}
		},
		"required": ["command"]
	}`, string(mustJSON(s)))
}

func TestInputSchema(t *testing.T) {
	in := Object(Prop("a", Integer("")), Prop("b", Integer(""))).Require("a", "b").InputSchema()
	assert.Equal(t, "object", in.Type)
	assert.Equal(t, []string{"a", "b"}, in.Required)
	require.Contains(t, in.Properties, "a")
	assert.Equal(t, map[string]interface{}{"type": "integer"}, in.Properties["a"])

	empty := (*Schema)(nil).InputSchema()
	assert.Equal(t, "object", empty.Type)
	assert.Empty(t, empty.Properties)
}

func TestArgs(t *testing.T) {
	args := Args{"n": json.Number("7"), "f": json.Number("1.5"), "s": "x", "ok": true}

	n, err := args.Int("n")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = args.Int("f")
	assert.Error(t, err)

	f, err := args.Float("f")
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	s, ok := args.String("s")
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = args.String("missing")
	assert.False(t, ok)
	assert.True(t, args.Bool("ok"))

	_, err = args.Int("missing")
	assert.Error(t, err)
}

func TestBigIntArgs(t *testing.T) {
	args := Args{
		"huge":    json.Number("123456789012345678901234567890"),
		"whole":   json.Number("2.0"),
		"frac":    json.Number("2.5"),
		"small":   float64(42),
		"inexact": float64(1 << 60),
	}

	huge, err := args.BigInt("huge")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", huge.String())

	whole, err := args.BigInt("whole")
	require.NoError(t, err)
	assert.Equal(t, "2", whole.String())

	small, err := args.BigInt("small")
	require.NoError(t, err)
	assert.Equal(t, "42", small.String())

	for _, name := range []string{"frac", "inexact", "missing"} {
		_, err := args.BigInt(name)
		assert.True(t, customErrors.IsKind(err, customErrors.KindInvalidArguments), "%s: got %v", name, err)
	}
}
