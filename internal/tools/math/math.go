// Package math provides integer arithmetic tools
package math

import (
	"context"
	"math/big"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/YongpengFu/mcp-server/internal/tools"
)

// binaryOp results are exact; operands and results are not bounded to 64 bits
type binaryOp struct {
	name string
	fn   func(z, a, b *big.Int) *big.Int
}

var ops = []binaryOp{
	{"add", (*big.Int).Add},
	{"subtract", (*big.Int).Sub},
	{"multiply", (*big.Int).Mul},
}

// Register adds add, subtract and multiply to reg
func Register(reg *tools.Registry) error {
	for _, op := range ops {
		if err := reg.Register(op.name, "", operands(), handler(op.fn)); err != nil {
			return err
		}
	}
	return nil
}

func operands() *tools.Schema {
	return tools.Object(
		tools.Prop("a", tools.Integer("")),
		tools.Prop("b", tools.Integer("")),
	).Require("a", "b")
}

func handler(fn func(z, a, b *big.Int) *big.Int) tools.HandlerFunc {
	return func(_ context.Context, args tools.Args) (*mcp.CallToolResult, error) {
		a, err := args.BigInt("a")
		if err != nil {
			return nil, err
		}
		b, err := args.BigInt("b")
		if err != nil {
			return nil, err
		}
		return tools.Text(fn(new(big.Int), a, b).String()), nil
	}
}
