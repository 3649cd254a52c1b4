package model

import "time"

// Status is a lifecycle state of a fetch job.
type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusRetrying    Status = "retrying"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is one tracked fetch task. ID, URL, OutputDir and OwnerID are
// immutable after creation, everything else is owned by the store and
// mutated through Patch only.
type Job struct {
	ID              string     `json:"id"`
	URL             string     `json:"url"`
	Status          Status     `json:"status"`
	Progress        int        `json:"progress"`
	Message         string     `json:"message"`
	Error           string     `json:"error,omitempty"`
	RetryCount      int        `json:"retry_count"`
	FilesDownloaded int        `json:"files_downloaded"`
	TotalFiles      int        `json:"total_files"`
	DownloadedFiles []string   `json:"downloaded_files_list,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	OutputDir       string     `json:"output_dir"`
	OwnerID         string     `json:"-"`
}

// Clone returns an independent copy, so callers can't mutate the record
// owned by the store.
func (j Job) Clone() Job {
	clone := j
	if j.DownloadedFiles != nil {
		clone.DownloadedFiles = append([]string(nil), j.DownloadedFiles...)
	}
	if j.EndTime != nil {
		end := *j.EndTime
		clone.EndTime = &end
	}
	return clone
}

// Patch is a partial update of a Job. Nil fields are left untouched,
// last writer wins per field.
type Patch struct {
	Status          *Status
	Progress        *int
	Message         *string
	Error           *string
	RetryCount      *int
	FilesDownloaded *int
	TotalFiles      *int
	DownloadedFiles []string
	EndTime         *time.Time
}

// Apply merges p into j. Progress never moves backwards, the heuristic
// parser may emit a lower estimate after an exact counter was seen.
func (p Patch) Apply(j *Job) {
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.Progress != nil && *p.Progress > j.Progress {
		j.Progress = *p.Progress
	}
	if p.Message != nil {
		j.Message = *p.Message
	}
	if p.Error != nil {
		j.Error = *p.Error
	}
	if p.RetryCount != nil {
		j.RetryCount = *p.RetryCount
	}
	if p.FilesDownloaded != nil {
		j.FilesDownloaded = *p.FilesDownloaded
	}
	if p.TotalFiles != nil {
		j.TotalFiles = *p.TotalFiles
	}
	if p.DownloadedFiles != nil {
		j.DownloadedFiles = append([]string(nil), p.DownloadedFiles...)
	}
	if p.EndTime != nil {
		end := *p.EndTime
		j.EndTime = &end
	}
}

// Statistics is an aggregate over all jobs in the store.
type Statistics struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	InProgress int `json:"in_progress"`
}
