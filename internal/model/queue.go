package model

import "time"

// QueueStatus is the lifecycle state of a scoring queue item.
type QueueStatus string

const (
	QueueStatusQueued     QueueStatus = "queued"
	QueueStatusInProgress QueueStatus = "in_progress"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// QueueItem tracks one record awaiting (or having finished) scoring.
// Transitions are strictly queued -> in_progress -> completed|failed;
// failed items may be re-queued.
type QueueItem struct {
	ID         string      `json:"id"`
	PortalID   string      `json:"portal_id"`
	RecordKind RecordKind  `json:"record_kind"`
	RecordID   string      `json:"record_id"`
	Status     QueueStatus `json:"status"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
