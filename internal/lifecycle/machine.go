package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Rule maps an event from a set of source statuses to a target status.
type Rule struct {
	From  []domain.LeadStatus
	Event domain.LeadEvent
	To    domain.LeadStatus
}

// nonTerminal lists every status a lead can be moved out of by normal events.
var nonTerminal = []domain.LeadStatus{
	domain.LeadPending, domain.LeadInSequence, domain.LeadContacted,
	domain.LeadReplied, domain.LeadInterested, domain.LeadNotInterested,
	domain.LeadMeetingBooked, domain.LeadSoftBounced, domain.LeadSequenceComplete,
}

// DefaultRules returns the reference transition table.
func DefaultRules() []Rule {
	return []Rule{
		{From: []domain.LeadStatus{domain.LeadPending}, Event: domain.EventEmailSent, To: domain.LeadInSequence},
		{From: []domain.LeadStatus{domain.LeadInSequence, domain.LeadSoftBounced}, Event: domain.EventEmailSent, To: domain.LeadContacted},
		{From: []domain.LeadStatus{domain.LeadContacted}, Event: domain.EventEmailSent, To: domain.LeadContacted},

		{From: []domain.LeadStatus{domain.LeadInSequence, domain.LeadContacted}, Event: domain.EventEmailOpened, To: domain.LeadContacted},
		{From: []domain.LeadStatus{domain.LeadInSequence, domain.LeadContacted}, Event: domain.EventEmailClicked, To: domain.LeadContacted},

		{From: nonTerminal, Event: domain.EventEmailBounced, To: domain.LeadBounced},
		{From: []domain.LeadStatus{domain.LeadPending, domain.LeadInSequence, domain.LeadContacted, domain.LeadSoftBounced}, Event: domain.EventSoftBounce, To: domain.LeadSoftBounced},

		{From: []domain.LeadStatus{domain.LeadInSequence, domain.LeadContacted, domain.LeadSoftBounced, domain.LeadReplied, domain.LeadSequenceComplete}, Event: domain.EventReplyReceived, To: domain.LeadReplied},
		{From: []domain.LeadStatus{domain.LeadInSequence, domain.LeadContacted, domain.LeadReplied, domain.LeadSequenceComplete}, Event: domain.EventReplyInterested, To: domain.LeadInterested},
		{From: []domain.LeadStatus{domain.LeadInSequence, domain.LeadContacted, domain.LeadReplied, domain.LeadSequenceComplete}, Event: domain.EventReplyNotInterested, To: domain.LeadNotInterested},

		{From: nonTerminal, Event: domain.EventUnsubscribe, To: domain.LeadUnsubscribed},
		{From: nonTerminal, Event: domain.EventSpamReport, To: domain.LeadSpamReported},

		{From: []domain.LeadStatus{domain.LeadInSequence, domain.LeadContacted, domain.LeadReplied, domain.LeadInterested}, Event: domain.EventMeetingBooked, To: domain.LeadMeetingBooked},
		{From: []domain.LeadStatus{domain.LeadInSequence, domain.LeadContacted}, Event: domain.EventSequenceComplete, To: domain.LeadSequenceComplete},
	}
}

// Observer receives state change records after a transition commits.
// Observers run fire-and-forget: a panicking observer never rolls back the
// transition or prevents later observers from running.
type Observer func(domain.LeadStateChange)

// Machine is a stateless transition engine over an injected rule table.
// Safe for concurrent use: the table and observer list are fixed after
// construction.
type Machine struct {
	table     map[domain.LeadEvent]map[domain.LeadStatus]domain.LeadStatus
	observers []Observer
}

// NewMachine builds a machine with the reference transition table.
func NewMachine(observers ...Observer) *Machine {
	return NewMachineWithRules(DefaultRules(), observers...)
}

// NewMachineWithRules builds a machine from an explicit rule table.
func NewMachineWithRules(rules []Rule, observers ...Observer) *Machine {
	table := make(map[domain.LeadEvent]map[domain.LeadStatus]domain.LeadStatus)
	for _, r := range rules {
		byFrom := table[r.Event]
		if byFrom == nil {
			byFrom = make(map[domain.LeadStatus]domain.LeadStatus)
			table[r.Event] = byFrom
		}
		for _, from := range r.From {
			byFrom[from] = r.To
		}
	}
	return &Machine{table: table, observers: observers}
}

// CanTransition returns the status the event would move the lead to, or
// ok=false when the event is rejected from the current status. It never
// mutates anything.
func (m *Machine) CanTransition(current domain.LeadStatus, event domain.LeadEvent) (domain.LeadStatus, bool) {
	if event == domain.EventManualOverride {
		// Override is valid from every status, terminal included, and
		// resets to pending unless the caller supplies a target.
		return domain.LeadPending, true
	}
	if IsTerminal(current) {
		return current, false
	}
	to, ok := m.table[event][current]
	if !ok {
		return current, false
	}
	return to, true
}

// Transition applies an event to a lead's current status. On success it
// returns the immutable state change record and notifies observers; on
// rejection it returns (nil, false) and nothing is emitted.
func (m *Machine) Transition(leadID string, current domain.LeadStatus, event domain.LeadEvent, metadata map[string]string) (*domain.LeadStateChange, bool) {
	next, ok := m.CanTransition(current, event)
	if !ok {
		return nil, false
	}
	change := domain.LeadStateChange{
		ID:             uuid.New().String(),
		LeadID:         leadID,
		PreviousStatus: current,
		NewStatus:      next,
		Event:          event,
		Timestamp:      time.Now().UTC(),
		Metadata:       metadata,
	}
	m.notify(change)
	return &change, true
}

// Override moves a lead to an administrator-chosen status from any current
// status. An empty target resets to pending. Terminal targets are rejected:
// override exists to rescue leads, not to fabricate bounces.
func (m *Machine) Override(leadID string, current domain.LeadStatus, target domain.LeadStatus) (*domain.LeadStateChange, bool) {
	if target == "" {
		target = domain.LeadPending
	}
	if IsTerminal(target) {
		return nil, false
	}
	change := domain.LeadStateChange{
		ID:             uuid.New().String(),
		LeadID:         leadID,
		PreviousStatus: current,
		NewStatus:      target,
		Event:          domain.EventManualOverride,
		Timestamp:      time.Now().UTC(),
		Metadata:       map[string]string{"override_target": string(target)},
	}
	m.notify(change)
	return &change, true
}

func (m *Machine) notify(change domain.LeadStateChange) {
	for _, obs := range m.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("state change observer panicked",
						"lead_id", change.LeadID, "event", string(change.Event), "panic", r)
				}
			}()
			obs(change)
		}()
	}
}

// AvailableEvents enumerates the events with a non-rejected outcome from the
// given status. MANUAL_OVERRIDE is always included.
func (m *Machine) AvailableEvents(status domain.LeadStatus) []domain.LeadEvent {
	var events []domain.LeadEvent
	for _, ev := range domain.AllLeadEvents {
		if _, ok := m.CanTransition(status, ev); ok {
			events = append(events, ev)
		}
	}
	return events
}

// IsTerminal reports whether the status cannot be exited except through a
// manual override.
func IsTerminal(status domain.LeadStatus) bool {
	switch status {
	case domain.LeadBounced, domain.LeadUnsubscribed, domain.LeadSpamReported:
		return true
	}
	return false
}

// BlocksSequence reports whether the scheduler must stop sending sequence
// steps to a lead in this status. A lead that replied, even positively,
// must not receive further automated sends.
func BlocksSequence(status domain.LeadStatus) bool {
	if IsTerminal(status) {
		return true
	}
	switch status {
	case domain.LeadReplied, domain.LeadInterested, domain.LeadNotInterested, domain.LeadMeetingBooked:
		return true
	}
	return false
}
