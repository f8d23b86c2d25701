// Package job tracks asynchronous transfer jobs and runs them on a bounded
// worker pool.
package job

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrQueueFull         = errors.New("job queue is full")
	ErrPoolClosed        = errors.New("job pool is closed")
	ErrInvalidTransition = errors.New("invalid job state transition")
)

type State string

const (
	StateStarted    State = "STARTED"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

type Kind string

const (
	KindExport Kind = "export"
	KindImport Kind = "import"
)

type Job struct {
	ID           string
	Kind         Kind
	State        State
	TotalRecords int64
	Message      string
	StartTime    time.Time
	EndTime      time.Time
}

// Duration is zero until both timestamps are set.
func (j Job) Duration() time.Duration {
	if j.StartTime.IsZero() || j.EndTime.IsZero() {
		return 0
	}
	return j.EndTime.Sub(j.StartTime)
}

type wireJob struct {
	IngestionID    string `json:"ingestionId"`
	Kind           Kind   `json:"kind"`
	Status         State  `json:"status"`
	TotalRecords   int64  `json:"totalRecords"`
	Message        string `json:"message"`
	StartTime      int64  `json:"startTime"`
	EndTime        int64  `json:"endTime"`
	DurationMillis int64  `json:"durationMillis"`
}

func (j Job) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireJob{
		IngestionID:    j.ID,
		Kind:           j.Kind,
		Status:         j.State,
		TotalRecords:   j.TotalRecords,
		Message:        j.Message,
		StartTime:      unixMillis(j.StartTime),
		EndTime:        unixMillis(j.EndTime),
		DurationMillis: j.Duration().Milliseconds(),
	})
}

func (j *Job) UnmarshalJSON(data []byte) error {
	var wire wireJob
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*j = Job{
		ID:           wire.IngestionID,
		Kind:         wire.Kind,
		State:        wire.Status,
		TotalRecords: wire.TotalRecords,
		Message:      wire.Message,
		StartTime:    fromUnixMillis(wire.StartTime),
		EndTime:      fromUnixMillis(wire.EndTime),
	}
	return nil
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
