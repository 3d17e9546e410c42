// Package runreq parses and validates the wire-level collector run request.
//
// The schema is strict: unknown keys at any nesting level fail the parse.
// Two deliberate soft spots exist, both surfaced as warnings rather than
// silent drops: out-of-range concurrency is clamped, and unparsable
// date/duration values are dropped from the request
package runreq

import (
	"time"
)

// Family identifies a collector family and selects the scope variant
type Family string

// Known collector families
const (
	FamilyLocalfs  Family = "localfs"
	FamilyImapmail Family = "imapmail"
	FamilyMessages Family = "messages"
	FamilyContacts Family = "contacts"
)

// Valid reports whether f names a known family
func (f Family) Valid() bool {
	switch f {
	case FamilyLocalfs, FamilyImapmail, FamilyMessages, FamilyContacts:
		return true
	}
	return false
}

// Mode selects simulate (no side effects) or real execution
type Mode string

// Run modes
const (
	ModeSimulate Mode = "simulate"
	ModeReal     Mode = "real"
)

// Order is the enumeration traversal order
type Order string

// Traversal orders
const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Concurrency bounds for the clamp
const (
	MinConcurrency = 1
	MaxConcurrency = 12
)

// DateRange bounds enumeration by item timestamp, either side optional
type DateRange struct {
	Since *time.Time
	Until *time.Time
}

// IsZero reports whether neither bound is set
func (d DateRange) IsZero() bool { return d.Since == nil && d.Until == nil }

// RunRequest is the validated, normalized run request. Immutable once parsed
type RunRequest struct {
	Family      Family
	Mode        Mode
	Limit       *int
	Order       Order
	Concurrency int

	// DateRange wins over Window when both were supplied
	DateRange DateRange
	Window    *time.Duration

	Batch     bool
	BatchSize *int

	Scope   Scope
	Filters *Filters

	// RedactionOverride toggles PII categories per run
	RedactionOverride map[string]bool

	Force bool

	// Warnings collects soft-degrade notes from parsing (clamps, dropped
	// dates) so they reach the run envelope
	Warnings []string
}

// DryRun reports whether the run must avoid side-effecting submission
func (r *RunRequest) DryRun() bool { return r.Mode == ModeSimulate }

// redaction categories accepted in redaction_override
var redactionCategories = map[string]bool{
	"email":     true,
	"phone":     true,
	"ssn":       true,
	"credit":    true,
	"address":   true,
	"name":      true,
	"birthdate": true,
}

// RedactionCategories lists the accepted redaction_override keys
func RedactionCategories() []string {
	out := make([]string, 0, len(redactionCategories))
	for k := range redactionCategories {
		out = append(out, k)
	}
	return out
}
