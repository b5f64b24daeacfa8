package aiexam

import "time"

// Task lifecycle statuses reported to clients. Queue-internal states collapse
// onto this small set so the websocket protocol stays stable.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
	StatusNotFound   = "not_found"
	StatusUnknown    = "unknown"
)

// TypeGenerateExam is the asynq task type for practice exam generation.
const TypeGenerateExam = "ai_exam:generate"

// QueueDefault is the queue generation tasks are enqueued on.
const QueueDefault = "default"

const (
	metadataKeyPrefix = "task_metadata:"
	eventStreamPrefix = "ai_exam:task_events:"

	// Metadata and event streams expire one day after the last write.
	metadataTTL = 24 * time.Hour
)

// MetadataKey returns the redis key holding a task's metadata hash.
func MetadataKey(taskID string) string {
	return metadataKeyPrefix + taskID
}

// EventStreamKey returns the redis stream key carrying a task's status events.
func EventStreamKey(taskID string) string {
	return eventStreamPrefix + taskID
}

// Metadata records who owns a task and where it stands. It is stored as JSON
// under MetadataKey.
type Metadata struct {
	UserID      int64     `json:"user_id"`
	ArchiveIDs  []int64   `json:"archive_ids"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt string    `json:"completed_at,omitempty"`
}

// TaskPayload is the JSON body of a queued generation task.
type TaskPayload struct {
	TaskID      string  `json:"task_id"`
	UserID      int64   `json:"user_id"`
	ArchiveIDs  []int64 `json:"archive_ids"`
	Prompt      string  `json:"prompt,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Event is one entry of a task's status stream.
type Event struct {
	ID     string
	Status string
	Error  string
}

// Result is what the worker leaves behind for a finished task.
type Result struct {
	Success          bool          `json:"success"`
	GeneratedContent string        `json:"generated_content,omitempty"`
	ArchivesUsed     []ArchiveUsed `json:"archives_used,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// ArchiveUsed names one source archive that fed a generated exam.
type ArchiveUsed struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	CourseName   string `json:"course_name"`
	Professor    string `json:"professor"`
	AcademicYear int    `json:"academic_year"`
}
