// Package capability models the measurable properties of execution
// environments and the constraints tests declare against them.
//
// A Capability is a concrete, fully-resolved description of one real or
// provisionable environment: numeric intervals (cores, memory), discrete
// sets (disk types), boolean feature flags (gpu), and enums (platform type).
// A Requirement uses the same dimension vocabulary but expresses constraints.
// Satisfies is the partial-order test between the two; the Matcher applies
// it across a candidate pool with a deterministic selection policy.
package capability
