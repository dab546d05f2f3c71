package types

import "errors"

// Sentinel errors for PriceKeeper operations.
var (
	// ErrValidation marks authoring input that was rejected before persistence.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateSequence indicates two conditions or two actions share a sequence number.
	ErrDuplicateSequence = errors.New("duplicate sequence number")

	// ErrInvalidParameters indicates a condition value or action parameter document could not be parsed.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrUnknownConditionType indicates a condition type outside the closed set.
	ErrUnknownConditionType = errors.New("unknown condition type")

	// ErrUnknownActionType indicates an action type outside the closed set.
	ErrUnknownActionType = errors.New("unknown action type")

	// ErrInvalidOperator indicates an operator that the condition type does not support.
	ErrInvalidOperator = errors.New("invalid operator for condition type")

	// ErrTooManyInValues indicates an IN operator exceeds MaxInOperatorValues.
	ErrTooManyInValues = errors.New("IN operator has too many values")

	// ErrPathTooDeep indicates an attribute path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("attribute path exceeds maximum depth")

	// ErrTooManyWildcards indicates an attribute path exceeds MaxNestedWildcards.
	ErrTooManyWildcards = errors.New("attribute path has too many wildcards")

	// ErrFieldNotFound indicates an attribute path could not be resolved.
	ErrFieldNotFound = errors.New("field not found")

	// ErrCoercionFailed indicates a value could not be converted to the expected type.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrInvalidContext indicates a malformed evaluation request; the whole evaluation aborts.
	ErrInvalidContext = errors.New("invalid evaluation context")

	// ErrLookupUnavailable indicates an external lookup returned no value or timed out.
	ErrLookupUnavailable = errors.New("lookup unavailable")

	// ErrActionFailed indicates an action could not execute; the rule contributes no result.
	ErrActionFailed = errors.New("action execution failed")

	// ErrInvalidTransition indicates a status change outside the allowed adjacency.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrActivationRequirements indicates a rule lacks conditions or actions at activation.
	ErrActivationRequirements = errors.New("rule does not meet activation requirements")

	// ErrRuleConflict indicates activation was blocked by a conflicting rule.
	ErrRuleConflict = errors.New("rule conflicts with an existing rule")

	// ErrRuleNotFound indicates the rule does not exist in the store.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrConcurrentModification indicates an optimistic concurrency check failed.
	ErrConcurrentModification = errors.New("rule was modified concurrently")
)
