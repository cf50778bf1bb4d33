package jobwork

import (
	"errors"
	"time"
)

// JobStatus is the lifecycle state of a job card.
type JobStatus string

const (
	StatusOpen      JobStatus = "open"
	StatusIssued    JobStatus = "issued"
	StatusCompleted JobStatus = "completed"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// JobCard tracks materials consigned to a job worker for outsourced
// processing.
type JobCard struct {
	ID          int64     `json:"id"`
	Number      string    `json:"number"`
	JobWorkerID int64     `json:"job_worker_id"`
	Status      JobStatus `json:"status"`
	Process     string    `json:"process,omitempty"`
	Lines       []JobLine `json:"lines,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobLine is one consigned material on a job card. ReturnedQty never exceeds
// Qty.
type JobLine struct {
	ID          int64   `json:"id"`
	JobID       int64   `json:"job_id"`
	MaterialID  int64   `json:"material_id"`
	Qty         float64 `json:"qty"`
	ReturnedQty float64 `json:"returned_qty"`
}

// Returned reports whether the line has been fully returned.
func (l JobLine) Returned() bool {
	return l.ReturnedQty >= l.Qty
}

// LineInput is one line of a new job card.
type LineInput struct {
	MaterialID int64
	Qty        float64
}

// CreateInput describes a new job card.
type CreateInput struct {
	Number      string
	JobWorkerID int64
	Process     string
	Lines       []LineInput
	ActorID     int64
}

// ReceiveInput records processed material returned from the job worker.
type ReceiveInput struct {
	JobID   int64
	LineID  int64
	Qty     float64
	Note    string
	ActorID int64
}

var (
	// ErrInvalidState indicates the operation is not legal for the card's
	// current status.
	ErrInvalidState = errors.New("jobwork: invalid state for operation")
	// ErrNotFound indicates the job card does not exist.
	ErrNotFound = errors.New("jobwork: job card not found")
	// ErrLineNotFound indicates the line does not belong to the card.
	ErrLineNotFound = errors.New("jobwork: line not found")
	// ErrQuantityExceeded indicates a return would exceed the consigned
	// quantity.
	ErrQuantityExceeded = errors.New("jobwork: returned quantity exceeds consigned quantity")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("jobwork: validation failed")
)
