// Package jobs tracks form-fill jobs through their lifecycle and runs the
// fill pipeline that drives them from queued to a terminal state.
package jobs

import (
	"sync"
	"time"

	"github.com/formworks/pdf-form-filler/internal/pdf"
)

// Job statuses. A job moves queued -> filling -> complete or error and never
// leaves a terminal state.
const (
	StatusQueued   = "queued"
	StatusFilling  = "filling"
	StatusComplete = "complete"
	StatusError    = "error"
)

// Per-field statuses.
const (
	FieldPending   = "pending"
	FieldPrompting = "prompting"
	FieldFilled    = "filled"
	FieldSkipped   = "skipped"
	FieldError     = "error"
)

// FieldState is the progress record for one form field.
type FieldState struct {
	Status     string   `json:"status"`
	Value      string   `json:"value,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Job is one tracked form-fill run. All mutation goes through methods; the
// mutex guards every field below it.
type Job struct {
	ID       string
	UserID   string
	FormSlug string
	FormURL  string

	mu            sync.Mutex
	status        string
	message       string
	filledFormURL string
	createdAt     time.Time
	updatedAt     time.Time
	fields        map[string]FieldState
	fieldOrder    []string
	totalFields   int
	filledFields  int
	skippedFields int
	errorFields   int
}

func newJob(id, userID, formSlug, formURL string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        id,
		UserID:    userID,
		FormSlug:  formSlug,
		FormURL:   formURL,
		status:    StatusQueued,
		createdAt: now,
		updatedAt: now,
		fields:    make(map[string]FieldState),
	}
}

// SeedFields registers the schema's fields as pending, preserving order.
func (j *Job) SeedFields(fields []pdf.FormField) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.fields = make(map[string]FieldState, len(fields))
	j.fieldOrder = make([]string, 0, len(fields))
	for _, f := range fields {
		j.fields[f.Name] = FieldState{Status: FieldPending}
		j.fieldOrder = append(j.fieldOrder, f.Name)
	}
	j.totalFields = len(fields)
	j.filledFields = 0
	j.skippedFields = 0
	j.errorFields = 0
	j.updatedAt = time.Now().UTC()
}

// SetStatus advances the job status. Transitions out of a terminal state are
// ignored so a late pipeline error can never resurrect a finished job.
func (j *Job) SetStatus(status, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status == StatusComplete || j.status == StatusError {
		return
	}
	j.status = status
	j.message = message
	j.updatedAt = time.Now().UTC()
}

// SetFilledFormURL records where the filled document was published.
func (j *Job) SetFilledFormURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.filledFormURL = url
	j.updatedAt = time.Now().UTC()
}

// SetFieldStatus updates one field and recomputes the counters from the full
// field map, so filled+skipped+error never exceeds total regardless of how
// many workers report concurrently.
func (j *Job) SetFieldStatus(name string, state FieldState) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.fields[name]; !ok {
		return
	}
	j.fields[name] = state

	j.filledFields = 0
	j.skippedFields = 0
	j.errorFields = 0
	for _, fs := range j.fields {
		switch fs.Status {
		case FieldFilled:
			j.filledFields++
		case FieldSkipped:
			j.skippedFields++
		case FieldError:
			j.errorFields++
		}
	}
	j.updatedAt = time.Now().UTC()
}

// Status returns the current job status.
func (j *Job) Status() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Counters returns total, filled, skipped and error field counts.
func (j *Job) Counters() (total, filled, skipped, errored int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.totalFields, j.filledFields, j.skippedFields, j.errorFields
}

// FieldStatus is one field's progress as exposed in a snapshot.
type FieldStatus struct {
	FieldName string `json:"fieldName"`
	FieldState
}

// Snapshot is a point-in-time serializable view of a job. Fields are listed
// in schema order.
type Snapshot struct {
	JobID         string        `json:"jobId"`
	UserID        string        `json:"userId"`
	FormSlug      string        `json:"formSlug"`
	FormURL       string        `json:"formUrl"`
	Status        string        `json:"status"`
	Message       string        `json:"message,omitempty"`
	TotalFields   int           `json:"totalFields"`
	FilledFields  int           `json:"filledFields"`
	SkippedFields int           `json:"skippedFields"`
	ErrorFields   int           `json:"errorFields"`
	FilledFormURL string        `json:"filledFormUrl,omitempty"`
	Fields        []FieldStatus `json:"fields,omitempty"`
	CreatedAt     string        `json:"createdAt"`
	UpdatedAt     string        `json:"updatedAt"`
}

// Field returns the status entry for name, if present.
func (s Snapshot) Field(name string) (FieldStatus, bool) {
	for _, fs := range s.Fields {
		if fs.FieldName == name {
			return fs, true
		}
	}
	return FieldStatus{}, false
}

// Snapshot copies the job state under the lock for safe serialization.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	fields := make([]FieldStatus, 0, len(j.fieldOrder))
	for _, name := range j.fieldOrder {
		fields = append(fields, FieldStatus{FieldName: name, FieldState: j.fields[name]})
	}
	return Snapshot{
		JobID:         j.ID,
		UserID:        j.UserID,
		FormSlug:      j.FormSlug,
		FormURL:       j.FormURL,
		Status:        j.status,
		Message:       j.message,
		TotalFields:   j.totalFields,
		FilledFields:  j.filledFields,
		SkippedFields: j.skippedFields,
		ErrorFields:   j.errorFields,
		FilledFormURL: j.filledFormURL,
		Fields:        fields,
		CreatedAt:     j.createdAt.Format(time.RFC3339),
		UpdatedAt:     j.updatedAt.Format(time.RFC3339),
	}
}
