// Package expression compiles and evaluates branch conditions.
//
// Conditions are expr-lang expressions over a single variable, input, which
// holds the structured output of the preceding node when it has one and its
// text otherwise:
//
//	input.language == 'typescript'
//	input.complexity > 7 && !input.has_errors
//	"urgent" in input.tags
//	has(input.tags, "urgent")
//	length(input) > 0
//
// Results are coerced to booleans: nil, false, zero numbers, empty strings
// and empty collections are false, everything else is true.
//
// Note: the expr library uses "contains" as a string operator (for substring
// matching), so use "in" or has() for collection membership.
package expression
