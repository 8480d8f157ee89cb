// Package planner turns a stored reminder into the set of triggers the job
// scheduler should hold for it.
//
// Planning is pure: the only inputs are the reminder snapshot, a fallback
// timezone and the current instant. Malformed fields never fail a plan; they
// produce warnings and the affected trigger kind is omitted.
package planner
