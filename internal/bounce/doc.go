// Package bounce classifies bounce notifications and decides what happens
// next: retry a recoverable soft bounce, or mark the lead bounced and
// enroll the address in the suppression list.
//
// The one invariant that matters most here: a soft bounce that has
// exhausted its retries is treated as a hard bounce for every downstream
// decision. The effective type is computed once and threaded through both
// the suppression decision and the state-machine event selection, so the
// two can never disagree.
package bounce
