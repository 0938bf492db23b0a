package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
)

// Args are validated tool arguments. Numbers arrive as json.Number.
type Args map[string]interface{}

// String returns a string argument and whether it was present
func (a Args) String(name string) (string, bool) {
	v, ok := a[name].(string)
	return v, ok
}

// Int returns an integer argument
func (a Args) Int(name string) (int64, error) {
	switch v := a[name].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, invalidArg(name, "integer", v)
		}
		return n, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, invalidArg(name, "integer", v)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case nil:
		return 0, customErrors.NewToolErrorf(customErrors.KindInvalidArguments, "missing argument %q", name)
	default:
		return 0, invalidArg(name, "integer", v)
	}
}

// maxExactFloat is the largest magnitude below which every integer has an exact float64
const maxExactFloat = 1 << 53

// BigInt returns an integer argument of any size. Arguments already decoded as float64
// are accepted only while they are exactly representable.
func (a Args) BigInt(name string) (*big.Int, error) {
	switch v := a[name].(type) {
	case json.Number:
		r, ok := new(big.Rat).SetString(v.String())
		if !ok || !r.IsInt() {
			return nil, invalidArg(name, "integer", v)
		}
		return new(big.Int).Set(r.Num()), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return nil, invalidArg(name, "integer", v)
		}
		if math.Abs(v) > maxExactFloat {
			return nil, customErrors.NewToolErrorf(customErrors.KindInvalidArguments,
				"argument %q is too large to be represented exactly, got %v", name, v)
		}
		return big.NewInt(int64(v)), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case nil:
		return nil, customErrors.NewToolErrorf(customErrors.KindInvalidArguments, "missing argument %q", name)
	default:
		return nil, invalidArg(name, "integer", v)
	}
}

// Float returns a numeric argument
func (a Args) Float(name string) (float64, error) {
	switch v := a[name].(type) {
	case json.Number:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0, invalidArg(name, "number", v)
		}
		return f, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case nil:
		return 0, customErrors.NewToolErrorf(customErrors.KindInvalidArguments, "missing argument %q", name)
	default:
		return 0, invalidArg(name, "number", v)
	}
}

// Bool returns a boolean argument, false when absent
func (a Args) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

func invalidArg(name, want string, got interface{}) error {
	return customErrors.NewToolError(customErrors.KindInvalidArguments,
		fmt.Sprintf("argument %q must be an %s, got %v", name, want, got))
}
