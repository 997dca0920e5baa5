package job

import "time"

// Status is the lifecycle state of a transfer job.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusDownloading Status = "DOWNLOADING"
	StatusUploading   Status = "UPLOADING"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
)

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusUploading, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Job is the full record kept in the status ledger. Progress, DownloadSpeed
// and ETA are present only while the job is DOWNLOADING; they are cleared on
// the transition into a terminal status. CompletedAt is stamped once, at the
// first terminal transition.
type Job struct {
	ID            string     `json:"id"`
	Status        Status     `json:"status"`
	URL           string     `json:"url"`
	Filename      string     `json:"filename"`
	Renamed       bool       `json:"renamed,omitempty"`
	Progress      *float64   `json:"progress,omitempty"`
	DownloadSpeed *string    `json:"download_speed,omitempty"`
	ETA           *string    `json:"eta,omitempty"`
	Error         *string    `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
