// internal/rules/fieldpath.go
package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/pricekeeper/internal/types"
)

/*
 * Attribute path parsing and resolution.
 *
 * Product and category attributes arrive as decoded JSON (map[string]any,
 * []any, scalars). Attribute conditions address them with dotted paths:
 *
 *   "color"               -> {Key: color}
 *   "dimensions.width"    -> {Key: dimensions} {Key: width}
 *   "variants[0].sku"     -> {Key: variants} {Index: 0} {Key: sku}
 *   "tags[*]"             -> {Key: tags} {Wildcard}
 *
 * Wildcards use ANY semantics: the first element whose remaining path
 * resolves wins. Object wildcards iterate keys in sorted order so the same
 * input always resolves the same way. Depth and wildcard limits are
 * enforced in ParsePath, so a compiled path can always be resolved.
 */

// ResolveResult contains the resolved value and the concrete path taken.
type ResolveResult struct {
	Value        any                 // resolved value (nil if not found)
	ResolvedPath []types.PathSegment // path with wildcards replaced by actual indices
	Found        bool
}

// ParsePath converts a dotted attribute path into segments.
// Returns ErrPathTooDeep or ErrTooManyWildcards when limits are exceeded.
func ParsePath(s string) ([]types.PathSegment, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty attribute path", types.ErrInvalidParameters)
	}

	var path []types.PathSegment
	for _, part := range strings.Split(s, ".") {
		key, rest, _ := strings.Cut(part, "[")
		if key != "" {
			path = append(path, types.PathSegment{Key: key})
		} else if rest == "" {
			return nil, fmt.Errorf("%w: empty segment in path %q", types.ErrInvalidParameters, s)
		}
		for rest != "" {
			idx, after, ok := strings.Cut(rest, "]")
			if !ok {
				return nil, fmt.Errorf("%w: unterminated index in path %q", types.ErrInvalidParameters, s)
			}
			switch idx {
			case "*":
				path = append(path, types.PathSegment{Wildcard: true})
			default:
				n, err := strconv.Atoi(idx)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("%w: bad index %q in path %q", types.ErrInvalidParameters, idx, s)
				}
				path = append(path, types.PathSegment{Index: n, IsIndex: true})
			}
			if after == "" {
				break
			}
			if !strings.HasPrefix(after, "[") {
				return nil, fmt.Errorf("%w: unexpected %q in path %q", types.ErrInvalidParameters, after, s)
			}
			rest = after[1:]
		}
	}

	if len(path) > types.MaxPathDepth {
		return nil, types.ErrPathTooDeep
	}
	wildcards := 0
	for _, seg := range path {
		if seg.Wildcard {
			wildcards++
		}
	}
	if wildcards > types.MaxNestedWildcards {
		return nil, types.ErrTooManyWildcards
	}
	return path, nil
}

// FormatPath renders segments back into dotted form.
func FormatPath(path []types.PathSegment) string {
	var b strings.Builder
	for i, seg := range path {
		switch {
		case seg.Wildcard:
			b.WriteString("[*]")
		case seg.IsIndex:
			b.WriteString("[" + strconv.Itoa(seg.Index) + "]")
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg.Key)
		}
	}
	return b.String()
}

// Resolve walks data following path.
// Returns ErrFieldNotFound when the path does not exist.
func Resolve(path []types.PathSegment, data any) (ResolveResult, error) {
	return resolveRecursive(path, data, nil)
}

func resolveRecursive(path []types.PathSegment, current any, resolvedSoFar []types.PathSegment) (ResolveResult, error) {
	if len(path) == 0 {
		return ResolveResult{Value: current, ResolvedPath: resolvedSoFar, Found: true}, nil
	}

	seg := path[0]
	remaining := path[1:]

	switch v := current.(type) {
	case types.Attributes:
		return resolveRecursive(path, map[string]any(v), resolvedSoFar)

	case map[string]any:
		if seg.Wildcard {
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				resolved := append(append([]types.PathSegment(nil), resolvedSoFar...), types.PathSegment{Key: key})
				if result, err := resolveRecursive(remaining, v[key], resolved); err == nil && result.Found {
					return result, nil
				}
			}
			return ResolveResult{}, types.ErrFieldNotFound
		}
		if seg.IsIndex {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		val, ok := v[seg.Key]
		if !ok {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(remaining, val, append(resolvedSoFar, seg))

	case []any:
		if seg.Wildcard {
			for i, elem := range v {
				resolved := append(append([]types.PathSegment(nil), resolvedSoFar...), types.PathSegment{Index: i, IsIndex: true})
				if result, err := resolveRecursive(remaining, elem, resolved); err == nil && result.Found {
					return result, nil
				}
			}
			return ResolveResult{}, types.ErrFieldNotFound
		}
		if !seg.IsIndex || seg.Index >= len(v) {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(remaining, v[seg.Index], append(resolvedSoFar, seg))

	default:
		// nil or scalar with path remaining
		return ResolveResult{}, types.ErrFieldNotFound
	}
}

// ResolveAll returns every value reachable through wildcard expansion.
// Used by CONTAINS-style operators that need the whole collection.
func ResolveAll(path []types.PathSegment, data any) []any {
	var out []any
	collect(path, data, &out)
	return out
}

func collect(path []types.PathSegment, current any, out *[]any) {
	if len(path) == 0 {
		*out = append(*out, current)
		return
	}
	seg := path[0]
	switch v := current.(type) {
	case types.Attributes:
		collect(path, map[string]any(v), out)
	case map[string]any:
		if seg.Wildcard {
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				collect(path[1:], v[k], out)
			}
			return
		}
		if val, ok := v[seg.Key]; ok && !seg.IsIndex {
			collect(path[1:], val, out)
		}
	case []any:
		if seg.Wildcard {
			for _, elem := range v {
				collect(path[1:], elem, out)
			}
			return
		}
		if seg.IsIndex && seg.Index < len(v) {
			collect(path[1:], v[seg.Index], out)
		}
	}
}
