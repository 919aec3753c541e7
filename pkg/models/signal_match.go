package models

import "fmt"

// SignalMatchResult is the outcome of evaluating one signal against one user.
// Results are immutable and constructed only through NewPositiveResult or
// NewNegativeResult. The match-only accessors (Value, AllowsMerging, trigger
// and equivalent-name getters) have no defined meaning on a negative result
// and panic when called on one; that is a caller bug, not a runtime condition.
type SignalMatchResult struct {
	isMatch       bool
	name          string
	value         string
	allowsMerging bool

	// Provenance pointer to the row that caused the match (e.g. a revision
	// or log entry). Zero id and empty table mean "no trigger".
	triggerID    int64
	triggerTable string

	// Alternate signal names whose equal values coalesce into the same case.
	equivalentNames []string
}

// MatchOption configures optional fields of a positive result.
type MatchOption func(*SignalMatchResult)

// WithTrigger records the originating row that caused the match.
func WithTrigger(id int64, table string) MatchOption {
	return func(r *SignalMatchResult) {
		r.triggerID = id
		r.triggerTable = table
	}
}

// WithEquivalentNames records alternate signal names whose matching values
// are treated as equivalent when searching for a merge target.
func WithEquivalentNames(names ...string) MatchOption {
	return func(r *SignalMatchResult) {
		r.equivalentNames = append([]string(nil), names...)
	}
}

// NewPositiveResult creates a match result for a signal that matched.
func NewPositiveResult(name, value string, allowsMerging bool, opts ...MatchOption) SignalMatchResult {
	r := SignalMatchResult{
		isMatch:       true,
		name:          name,
		value:         value,
		allowsMerging: allowsMerging,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// NewNegativeResult creates a match result for a signal that did not match.
func NewNegativeResult(name string) SignalMatchResult {
	return SignalMatchResult{name: name}
}

// IsMatch reports whether the signal matched.
func (r SignalMatchResult) IsMatch() bool {
	return r.isMatch
}

// Name returns the signal identifier. Valid for both positive and negative results.
func (r SignalMatchResult) Name() string {
	return r.name
}

// Value returns the matched value. Panics on a negative result.
func (r SignalMatchResult) Value() string {
	r.mustMatch("Value")
	return r.value
}

// AllowsMerging reports whether equal-value matches of this signal should
// coalesce into one case. Panics on a negative result.
func (r SignalMatchResult) AllowsMerging() bool {
	r.mustMatch("AllowsMerging")
	return r.allowsMerging
}

// TriggerID returns the id of the row that caused the match, or 0 when the
// match has no trigger. Panics on a negative result.
func (r SignalMatchResult) TriggerID() int64 {
	r.mustMatch("TriggerID")
	return r.triggerID
}

// TriggerTable returns the table of the row that caused the match, or ""
// when the match has no trigger. Panics on a negative result.
func (r SignalMatchResult) TriggerTable() string {
	r.mustMatch("TriggerTable")
	return r.triggerTable
}

// EquivalentNames returns the alternate signal names used for merge-target
// lookups. Panics on a negative result.
func (r SignalMatchResult) EquivalentNames() []string {
	r.mustMatch("EquivalentNames")
	return append([]string(nil), r.equivalentNames...)
}

// MergeNames returns the signal's own name plus its equivalent names, the
// full set of names a merge-target search must consider. Panics on a
// negative result.
func (r SignalMatchResult) MergeNames() []string {
	r.mustMatch("MergeNames")
	names := make([]string, 0, len(r.equivalentNames)+1)
	names = append(names, r.name)
	names = append(names, r.equivalentNames...)
	return names
}

func (r SignalMatchResult) mustMatch(accessor string) {
	if !r.isMatch {
		panic(fmt.Sprintf("models: SignalMatchResult.%s called on negative result for signal %q", accessor, r.name))
	}
}
