package dto

import "time"

// UploadMessage is published by the upload collaborator once a video lands.
type UploadMessage struct {
	FileName string `json:"fileName"`
	Table    string `json:"table,omitempty"`
	RowId    string `json:"rowId,omitempty"`
	Force    bool   `json:"force,omitempty"`
}

type JobView struct {
	Id         string    `json:"id"`
	FileName   string    `json:"fileName"`
	Force      bool      `json:"force"`
	Source     string    `json:"source"`
	State      string    `json:"state"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

type StatusResponse struct {
	Active    *JobView  `json:"active"`
	Queued    []JobView `json:"queued"`
	Completed int64     `json:"completed"`
	Failed    int64     `json:"failed"`
}
