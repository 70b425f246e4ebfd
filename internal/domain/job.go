package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// JobStatus represents the processing state of a job
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are permitted from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the record of one accepted unit of asynchronous work, tracked from
// submission to its terminal state.
type Job struct {
	ID          uuid.UUID        `json:"id"`
	Status      JobStatus        `json:"status"`
	Progress    int              `json:"progress"`
	Message     string           `json:"message"`
	Fragments   []string         `json:"-"`
	FinalResult *Result          `json:"final_result,omitempty"`
	Source      SourceDescriptor `json:"source"`
	Mode        string           `json:"mode"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`

	outputLen int
}

// JobUpdate is a partial change to a Job. Nil fields are left untouched and
// AppendOutput fragments are appended in order.
type JobUpdate struct {
	Status       *JobStatus
	Progress     *int
	Message      *string
	AppendOutput []string
	FinalResult  *Result
}

// NewJob creates a Pending job for the given source and operation mode.
// Returns an error if validation fails.
func NewJob(source SourceDescriptor, mode string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.New(),
		Status:    JobStatusPending,
		Message:   "queued",
		Source:    source,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrInvalidID
	}

	if j.Source.IsZero() {
		return ErrEmptySource
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	if j.Progress < 0 || j.Progress > 100 {
		return ErrInvalidProgress
	}

	return nil
}

// IsTerminal reports whether the job reached Completed or Failed.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// PartialOutput returns the accumulated output text.
func (j *Job) PartialOutput() string {
	return strings.Join(j.Fragments, "")
}

// OutputLen returns the accumulated output length in bytes.
func (j *Job) OutputLen() int {
	return j.outputLen
}

// AlignOffset clamps offset to the output and moves it back to the start of
// the rune it falls inside.
func (j *Job) AlignOffset(offset int) int {
	offset = max(0, min(offset, j.outputLen))
	for n := 0; n < utf8.UTFMax-1 && offset > 0 && offset < j.outputLen; n++ {
		if utf8.RuneStart(j.byteAt(offset)) {
			break
		}
		offset--
	}
	return offset
}

func (j *Job) byteAt(i int) byte {
	for _, f := range j.Fragments {
		if i < len(f) {
			return f[i]
		}
		i -= len(f)
	}
	return 0
}

// OutputSince returns the accumulated output after the first offset bytes.
// An offset inside a multi-byte rune includes that whole rune. Offsets past
// the end yield an empty string.
func (j *Job) OutputSince(offset int) string {
	offset = j.AlignOffset(offset)
	if offset >= j.outputLen {
		return ""
	}

	var b strings.Builder
	b.Grow(j.outputLen - offset)
	pos := 0
	for _, f := range j.Fragments {
		end := pos + len(f)
		switch {
		case end <= offset:
		case pos >= offset:
			b.WriteString(f)
		default:
			b.WriteString(f[offset-pos:])
		}
		pos = end
	}
	return b.String()
}

// Apply merges u into the job. Either the whole update is applied or, when
// it would break a lifecycle rule, nothing changes and an error is returned.
func (j *Job) Apply(u JobUpdate, now time.Time) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}

	next := j.Status
	if u.Status != nil {
		if !isValidJobStatus(*u.Status) {
			return ErrInvalidJobStatus
		}
		if !canTransition(j.Status, *u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, *u.Status)
		}
		next = *u.Status
	}

	if next.IsTerminal() != (u.FinalResult != nil) {
		return ErrInvalidUpdate
	}

	if u.Progress != nil {
		if *u.Progress < 0 || *u.Progress > 100 {
			return ErrInvalidProgress
		}
		if *u.Progress < j.Progress {
			return fmt.Errorf("%w: %d < %d", ErrProgressRegression, *u.Progress, j.Progress)
		}
	}

	if next != j.Status {
		if next == JobStatusProcessing {
			started := now
			j.StartedAt = &started
		}
		if next.IsTerminal() {
			finished := now
			j.FinishedAt = &finished
		}
		j.Status = next
	}
	if u.Progress != nil {
		j.Progress = *u.Progress
	}
	if u.Message != nil {
		j.Message = *u.Message
	}
	for _, f := range u.AppendOutput {
		if f == "" {
			continue
		}
		j.Fragments = append(j.Fragments, f)
		j.outputLen += len(f)
	}
	if u.FinalResult != nil {
		j.FinalResult = u.FinalResult.clone()
	}
	j.UpdatedAt = now

	return nil
}

// MarshalJSON renders the job with its accumulated output as partial_output.
func (j Job) MarshalJSON() ([]byte, error) {
	type record Job
	return json.Marshal(struct {
		record
		PartialOutput string `json:"partial_output"`
	}{record(j), j.PartialOutput()})
}

// Clone returns a deep copy that shares no mutable state with j.
func (j *Job) Clone() *Job {
	c := *j
	c.Fragments = append([]string(nil), j.Fragments...)
	c.FinalResult = j.FinalResult.clone()
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// canTransition enforces Pending → Processing → {Completed | Failed}. A
// Pending job may also fail directly when it is cancelled before it starts.
func canTransition(from, to JobStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	switch from {
	case JobStatusPending:
		return to == JobStatusProcessing || to == JobStatusFailed
	case JobStatusProcessing:
		return to.IsTerminal()
	default:
		return false
	}
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}
