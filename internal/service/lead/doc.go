// Package lead applies state-machine decisions to persisted leads.
//
// The state machine itself is pure (see lifecycle); this service owns the
// effects. Every status change is written as a compare-and-set against the
// lead's last-known status so two events racing for the same lead cannot
// both commit: the loser gets ErrConflict and must re-read before retrying.
// Combined with the machine's reject-on-terminal rule, once any terminal
// transition commits, every later non-override event on that lead is
// rejected regardless of arrival order.
//
// Rejected transitions are not errors — ApplyEvent reports them through
// its boolean so callers branch explicitly.
package lead
