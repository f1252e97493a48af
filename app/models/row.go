package models

import "time"

// RowStatus is the lifecycle state of a single Row.
type RowStatus string

const (
	StatusProcessing RowStatus = "processing"
	StatusCompleted  RowStatus = "completed"
	StatusStalled    RowStatus = "stalled"
	StatusFailed     RowStatus = "failed"
)

// Valid reports whether s is one of the known row states.
func (s RowStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusStalled, StatusFailed:
		return true
	}
	return false
}

// Row is one product line of an ingested batch.
// OutputImageURLs is append-only and never longer than SourceImageURLs.
type Row struct {
	ID              string    `json:"_id" dynamodbav:"id"`
	BatchID         string    `json:"batchId" dynamodbav:"batchId"`
	SequenceNumber  int       `json:"sNo" dynamodbav:"sNo"`
	ProductName     string    `json:"productName" dynamodbav:"productName"`
	SourceImageURLs []string  `json:"inputImageUrls" dynamodbav:"inputImageUrls"`
	OutputImageURLs []string  `json:"outputImageUrls" dynamodbav:"outputImageUrls"`
	Status          RowStatus `json:"status" dynamodbav:"status"`
	CreatedAt       time.Time `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
}

// Clone returns a deep copy so callers never share slices with a store.
func (r Row) Clone() Row {
	c := r
	c.SourceImageURLs = cloneStrings(r.SourceImageURLs)
	c.OutputImageURLs = cloneStrings(r.OutputImageURLs)
	return c
}

// cloneStrings never returns nil, matching the empty lists the SQL and
// DynamoDB stores hand back.
func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// RowStatusView is the projection returned while a batch is still in flight.
type RowStatusView struct {
	ID          string    `json:"_id"`
	ProductName string    `json:"productName"`
	Status      RowStatus `json:"status"`
}
