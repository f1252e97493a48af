package models

// BatchState is the aggregate state of all rows sharing a batch id.
// It is always derived from the rows, never stored.
type BatchState string

const (
	BatchProcessing BatchState = "processing"
	BatchCompleted  BatchState = "completed"
	BatchMixed      BatchState = "mixed"
)

// DeriveBatchState folds per-row statuses into one batch state.
func DeriveBatchState(rows []RowStatusView) BatchState {
	allCompleted := true
	for _, r := range rows {
		if r.Status == StatusProcessing {
			return BatchProcessing
		}
		if r.Status != StatusCompleted {
			allCompleted = false
		}
	}
	if allCompleted {
		return BatchCompleted
	}
	return BatchMixed
}

// Notification is the completion signal for a batch.
type Notification struct {
	BatchID string    `json:"batchId" binding:"required"`
	Status  RowStatus `json:"status" binding:"required,oneof=processing completed stalled failed"`
}
