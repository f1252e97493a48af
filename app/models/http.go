package models

// UploadResponse is returned by the ingestion endpoint.
type UploadResponse struct {
	Message string     `json:"message"`
	Data    UploadData `json:"data"`
}

type UploadData struct {
	ReferenceID string `json:"referenceId"`
}

// StatusResponse is returned while a batch is not yet fully completed.
type StatusResponse struct {
	Message string          `json:"message"`
	State   BatchState      `json:"state"`
	Data    []RowStatusView `json:"data"`
}
