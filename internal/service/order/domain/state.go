package domain

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"    // persisted, saga not started yet
	StatusProcessing Status = "processing" // at least one stage has run
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// IsTerminal reports whether no stage may advance the order any further.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}
