package job

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const DefaultMaxAttempts = 3

// Job is the durable unit of work. The whole record is what travels on the
// pending list and what is stored under job:<id>; retries mutate this same
// record rather than creating a new one.
type Job struct {
	ID          string     `json:"id"`
	MeetingID   int64      `json:"meeting_id"`
	FilePath    string     `json:"file_path"`
	Filename    string     `json:"filename"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Result      *Result    `json:"result,omitempty"`
}

// Result is the opaque success payload attached on completion.
type Result struct {
	TranscriptLength int     `json:"transcript_length"`
	Language         string  `json:"language,omitempty"`
	SummaryLength    int     `json:"summary_length"`
	KeywordsCount    int     `json:"keywords_count"`
	DurationSeconds  float64 `json:"duration_seconds"`
}

// New builds a fresh queued job for a meeting recording.
func New(meetingID int64, filePath, filename string, maxAttempts int, now time.Time) *Job {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Job{
		ID:          fmt.Sprintf("meeting_%d_%d", meetingID, now.Unix()),
		MeetingID:   meetingID,
		FilePath:    filePath,
		Filename:    filename,
		Status:      StatusQueued,
		CreatedAt:   now.UTC(),
		Attempts:    0,
		MaxAttempts: maxAttempts,
	}
}

// Terminal reports whether the job reached a state it never leaves.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
