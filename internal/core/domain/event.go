package domain

import "time"

type EventType string

const (
	EventSaleCreated     EventType = "sale.created"
	EventStockAssigned   EventType = "custody.assigned"
	EventStockUnassigned EventType = "custody.unassigned"
	EventRequestCreated  EventType = "request.created"
	EventRequestApproved EventType = "request.approved"
	EventRequestRejected EventType = "request.rejected"
)

// Event is a committed change offered to read-only consumers such as
// reporting dashboards.
type Event struct {
	Type       EventType `json:"type"`
	EmployeeID string    `json:"employeeId"`
	SubjectID  string    `json:"subjectId"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurredAt"`
}
