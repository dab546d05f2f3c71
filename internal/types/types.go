// Package types provides domain models shared across PriceKeeper components.
//
// Types here are storage and wire-format agnostic: internal/core/db maps them to
// SQL rows and internal/core/api maps them to protobuf Structs. Rule parameters
// stay as raw JSON until internal/rules compiles them into typed variants.
package types

import "encoding/json"

// RuleID represents a UUIDv7 rule identifier.
// String alias enables type safety while maintaining JSON string serialization.
// UUIDv7 strings sort by creation time, which makes ID a stable tiebreaker.
type RuleID string

// Attributes holds arbitrary product or category attributes.
// Values are whatever encoding/json produces: string, float64, bool, []any, map[string]any.
type Attributes map[string]any

// RawParams is an opaque JSON document interpreted per condition or action type.
type RawParams = json.RawMessage

// Resource limits enforced during rule authoring and compilation.
const (
	// MaxConditionsPerRule bounds per-evaluation work for a single rule.
	MaxConditionsPerRule = 32

	// MaxActionsPerRule bounds the length of the action pipeline.
	MaxActionsPerRule = 32

	// MaxScopeEntries limits each scoping set (sellers, sites, categories, brands).
	MaxScopeEntries = 1024

	// MaxPathDepth prevents unbounded recursion while resolving attribute paths.
	MaxPathDepth = 16

	// MaxNestedWildcards limits wildcard fan-out in attribute paths.
	MaxNestedWildcards = 2

	// MaxInOperatorValues limits IN/NOT_IN lists.
	MaxInOperatorValues = 64

	// MaxNameLength bounds rule names.
	MaxNameLength = 255
)

// PathSegment represents one component of an attribute path.
// Key for object keys, Index for array positions, Wildcard for "any element".
type PathSegment struct {
	Key      string // object key (mutually exclusive with Index/Wildcard)
	Index    int    // array index (mutually exclusive with Key/Wildcard)
	IsIndex  bool   // disambiguates Index=0 from unset
	Wildcard bool   // true = wildcard segment
}
