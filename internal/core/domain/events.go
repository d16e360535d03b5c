package domain

import "time"

// OperationKind classifies a change feed event.
type OperationKind int

const (
	OperationUnknown OperationKind = iota
	OperationInsert
	OperationUpdate
	OperationReplace
	OperationDelete
)

// ParseOperationKind maps the feed's operation name to an OperationKind.
// Names the watcher does not handle (drop, rename, invalidate, ...) map to
// OperationUnknown.
func ParseOperationKind(name string) OperationKind {
	switch name {
	case "insert":
		return OperationInsert
	case "update":
		return OperationUpdate
	case "replace":
		return OperationReplace
	case "delete":
		return OperationDelete
	default:
		return OperationUnknown
	}
}

// String returns the feed's name for the operation.
func (k OperationKind) String() string {
	switch k {
	case OperationInsert:
		return "insert"
	case OperationUpdate:
		return "update"
	case OperationReplace:
		return "replace"
	case OperationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ResumeToken is an opaque, ordered position in a change feed.
type ResumeToken []byte

// IsZero reports whether no position has been recorded yet.
func (t ResumeToken) IsZero() bool {
	return len(t) == 0
}

// ChangeEvent is a single mutation of a ticket document.
type ChangeEvent struct {
	Operation OperationKind
	// RawOperation keeps the feed's name for logging unknown kinds.
	RawOperation string
	DocumentKey  string
	// FullDocument is nil for deletes and when the feed was opened
	// without a full document lookup.
	FullDocument *Ticket
	ResumeToken  ResumeToken
	ClusterTime  time.Time
}

// TicketID returns the best available ticket identifier for logging.
func (e ChangeEvent) TicketID() string {
	if e.DocumentKey != "" {
		return e.DocumentKey
	}
	if e.FullDocument != nil {
		return e.FullDocument.ID
	}
	return ""
}
