package models

// BatchMessage is the queue payload that asks a worker to process one batch.
type BatchMessage struct {
	BatchID string `json:"batchId"`
}
