package core

// CrudEventType distinguishes the mutation a CRUD event notifies about.
type CrudEventType string

const (
	CrudEventCreate CrudEventType = "CREATE"
	CrudEventUpdate CrudEventType = "UPDATE"
	CrudEventDelete CrudEventType = "DELETE"
)

// CrudEvent is an immutable notification published once per successful
// mutation. It carries no authority over persisted state: delivery is
// fire-and-forget and subscribers must tolerate duplicates.
type CrudEvent struct {
	Type      CrudEventType `json:"type"`
	Flow      *Flow         `json:"flow"`
	Timestamp string        `json:"timestamp"`
}

// NewCrudEvent builds a CRUD event for a committed mutation.
func NewCrudEvent(flow *Flow, eventType CrudEventType) *CrudEvent {
	return &CrudEvent{
		Type:      eventType,
		Flow:      flow,
		Timestamp: NowFormatted(),
	}
}
