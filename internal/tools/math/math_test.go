package math

import (
	"context"
	"encoding/json"
	gomath "math"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/tools"
)

func TestArithmetic(t *testing.T) {
	reg := tools.NewRegistry("math_server", 0, nil)
	require.NoError(t, Register(reg))

	tests := []struct {
		tool string
		a, b int
		want string
	}{
		{"add", 2, 3, "5"},
		{"subtract", 2, 3, "-1"},
		{"multiply", 4, 5, "20"},
		{"add", -7, 7, "0"},
	}
	for _, tt := range tests {
		res, err := reg.Invoke(context.Background(), tt.tool, map[string]interface{}{"a": tt.a, "b": tt.b})
		require.NoError(t, err, tt.tool)
		assert.Equal(t, tt.want, res.Content[0].(mcp.TextContent).Text, tt.tool)
	}
}

func TestRejectsNonIntegers(t *testing.T) {
	reg := tools.NewRegistry("math_server", 0, nil)
	require.NoError(t, Register(reg))

	_, err := reg.Invoke(context.Background(), "add", map[string]interface{}{"a": "x", "b": 3})
	assert.True(t, customErrors.IsKind(err, customErrors.KindInvalidArguments))
}

func TestResultsDoNotWrapAround(t *testing.T) {
	reg := tools.NewRegistry("math_server", 0, nil)
	require.NoError(t, Register(reg))

	tests := []struct {
		tool string
		a, b int64
		want string
	}{
		{"add", gomath.MaxInt64, 1, "9223372036854775808"},
		{"subtract", gomath.MinInt64, 1, "-9223372036854775809"},
		{"multiply", 4294967296, 4294967296, "18446744073709551616"},
		{"multiply", gomath.MinInt64, -1, "9223372036854775808"},
	}
	for _, tt := range tests {
		res, err := reg.Invoke(context.Background(), tt.tool, map[string]interface{}{"a": tt.a, "b": tt.b})
		require.NoError(t, err, tt.tool)
		assert.Equal(t, tt.want, res.Content[0].(mcp.TextContent).Text, tt.tool)
	}
}

func TestOperandsBeyondSixtyFourBits(t *testing.T) {
	reg := tools.NewRegistry("math_server", 0, nil)
	require.NoError(t, Register(reg))

	res, err := reg.Invoke(context.Background(), "add", map[string]interface{}{
		"a": json.Number("100000000000000000000"),
		"b": 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000001", res.Content[0].(mcp.TextContent).Text)
}
