package entities

import (
	"time"

	"github.com/google/uuid"
	"worker-hls/constant"
)

// Job is one unit of work flowing through the orchestrator.
type Job struct {
	ID         uuid.UUID              `json:"id"`
	Path       string                 `json:"path"`
	FileName   string                 `json:"file_name"`
	Force      bool                   `json:"force"`
	Owner      *OwningRecord          `json:"owner,omitempty"`
	Source     constant.TriggerSource `json:"source"`
	State      constant.JobState      `json:"state"`
	Requeues   int                    `json:"requeues"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
}

// NewJob builds a queued job for a path or bare file name.
func NewJob(pathOrName string, force bool, source constant.TriggerSource) *Job {
	return &Job{
		ID:         uuid.New(),
		Path:       pathOrName,
		FileName:   constant.NormalizeName(pathOrName),
		Force:      force,
		Source:     source,
		State:      constant.JobStateQueued,
		EnqueuedAt: time.Now(),
	}
}

func (j *Job) Key() string {
	return j.FileName
}
