// Package suppression implements the permanent do-not-send registry.
//
// This is the single source of truth for whether an email address may
// receive mail. Entries flow in from the bounce processor (hard bounces,
// exhausted soft bounces, spam complaints), unsubscribe handling, and
// manual admin actions, and are checked before every send.
//
// Emails are normalized to lower-case before storing or querying, and
// insertion is idempotent: re-suppressing an address is a no-op, never an
// error. Removal exists only as an administrative escape hatch — from the
// engine's perspective the list is append-only.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
