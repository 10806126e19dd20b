package audit

import "time"

// Severity represents syslog severity levels per RFC 5424.
type Severity int

const (
	SeverityWarning Severity = 4
	SeverityNotice  Severity = 5
	SeverityInfo    Severity = 6
)

// String returns the human-readable name for a severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityNotice:
		return "NOTICE"
	case SeverityWarning:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}

// EventType identifies a security-relevant audit event.
type EventType string

const (
	EventShareCreate         EventType = "share.create"
	EventShareSubmit         EventType = "share.submit"
	EventShareApprove        EventType = "share.approve"
	EventShareReject         EventType = "share.reject"
	EventShareDelete         EventType = "share.delete"
	EventItemRevoke          EventType = "item.revoke"
	EventItemReapply         EventType = "item.reapply"
	EventItemVerify          EventType = "item.verify"
	EventItemSync            EventType = "item.sync"
	EventStewardshipTransfer EventType = "stewardship.transfer"
	EventDatasetDelete       EventType = "dataset.delete"
	EventAuthzDenied         EventType = "authz.denied"
)

// AllEventTypes returns every defined event type for iteration and validation.
func AllEventTypes() []EventType {
	return []EventType{
		EventShareCreate,
		EventShareSubmit,
		EventShareApprove,
		EventShareReject,
		EventShareDelete,
		EventItemRevoke,
		EventItemReapply,
		EventItemVerify,
		EventItemSync,
		EventStewardshipTransfer,
		EventDatasetDelete,
		EventAuthzDenied,
	}
}

// severityMap maps each event type to its syslog severity. Grants and
// revocations of access are NOTICE; denials, revokes, and destructive
// operations are WARNING.
var severityMap = map[EventType]Severity{
	EventShareCreate:         SeverityInfo,
	EventShareSubmit:         SeverityInfo,
	EventShareApprove:        SeverityNotice,
	EventShareReject:         SeverityNotice,
	EventShareDelete:         SeverityWarning,
	EventItemRevoke:          SeverityWarning,
	EventItemReapply:         SeverityNotice,
	EventItemVerify:          SeverityInfo,
	EventItemSync:            SeverityInfo,
	EventStewardshipTransfer: SeverityWarning,
	EventDatasetDelete:       SeverityWarning,
	EventAuthzDenied:         SeverityWarning,
}

// SeverityFor returns the syslog severity for a given event type.
// Unknown event types return SeverityWarning (treat unknowns as concerning).
func SeverityFor(et EventType) Severity {
	if s, ok := severityMap[et]; ok {
		return s
	}
	return SeverityWarning
}

// Event represents a security-relevant audit event with structured fields.
type Event struct {
	Type      EventType
	Severity  Severity
	Timestamp time.Time
	Actor     string            // username of the acting principal
	Target    string            // share, item, or dataset URI the event concerns
	Details   map[string]string // event-specific fields
}

// NewEvent creates an event of the given type with its mapped severity.
func NewEvent(et EventType, actor, target string, details map[string]string) Event {
	if details == nil {
		details = map[string]string{}
	}
	return Event{
		Type:      et,
		Severity:  SeverityFor(et),
		Timestamp: time.Now(),
		Actor:     actor,
		Target:    target,
		Details:   details,
	}
}
