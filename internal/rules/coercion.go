// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/types"
)

/*
 * Type coercion for attribute values.
 *
 * Attribute maps hold whatever encoding/json (or a caller) produced. Numeric
 * comparisons need decimals; text comparisons need strings.
 *
 * Modes:
 *   - ToDecimal: strict. Numbers and numeric strings only, booleans rejected,
 *     whitespace-only strings rejected.
 *   - ToText: lenient. Every scalar has a canonical string form; floats use
 *     the shortest representation so 10.0 and "10" compare equal.
 *
 * nil is reported separately (ErrFieldNotFound) from an impossible
 * conversion (ErrCoercionFailed) so logs can tell a missing attribute from
 * a malformed one.
 */

// ToDecimal converts v to a decimal.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, types.ErrFieldNotFound
	case decimal.Decimal:
		return n, nil
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, types.ErrFieldNotFound
		}
		return *n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return decimal.Zero, types.ErrCoercionFailed
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, types.ErrCoercionFailed
		}
		return d, nil
	default:
		// booleans, collections
		return decimal.Zero, types.ErrCoercionFailed
	}
}

// ToText converts a scalar to its canonical string form.
// Collections are rejected; callers expand them before comparing.
func ToText(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", types.ErrFieldNotFound
	case string:
		return s, nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case int32:
		return strconv.FormatInt(int64(s), 10), nil
	case json.Number:
		return s.String(), nil
	case decimal.Decimal:
		return s.String(), nil
	case bool:
		return strconv.FormatBool(s), nil
	case map[string]any, []any, types.Attributes:
		return "", types.ErrCoercionFailed
	default:
		return fmt.Sprintf("%v", s), nil
	}
}

// ToTexts converts a JSON scalar or array into a list of strings.
func ToTexts(v any) ([]string, error) {
	arr, ok := v.([]any)
	if !ok {
		s, err := ToText(v)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	out := make([]string, 0, len(arr))
	for _, elem := range arr {
		s, err := ToText(elem)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
