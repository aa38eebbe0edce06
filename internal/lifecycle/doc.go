// Package lifecycle implements the lead status state machine.
//
// The machine is a pure, table-driven decision engine: given a current
// status and an incoming event it deterministically yields either a new
// status or a rejection. Rejections are values, not errors — callers branch
// on the boolean, they never catch anything.
//
// Terminal statuses (bounced, unsubscribed, spam_reported) are the safety
// net for concurrent producers: once a terminal transition commits, every
// later non-override event on that lead is rejected regardless of ordering.
// The host must apply transitions as a compare-and-set against the lead's
// last-known status (see service/lead).
//
// The machine carries no package-level mutable state. Observers are passed
// in at construction and notified fire-and-forget on every successful
// transition.
package lifecycle
