package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-process job registry. Jobs are never evicted.
type Store struct {
	Clock func() time.Time
	NewID func() string

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewStore() *Store {
	return &Store{}
}

// Create registers a job in STARTED with its start time set.
func (s *Store) Create(kind Kind) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureDefaults()

	id := s.NewID()
	for {
		if _, exists := s.jobs[id]; !exists {
			break
		}
		id = s.NewID()
	}
	job := &Job{
		ID:        id,
		Kind:      kind,
		State:     StateStarted,
		StartTime: s.Clock(),
	}
	s.jobs[id] = job
	return *job
}

// Get returns a snapshot copy of the job.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *job, nil
}

// UpdateState moves a job forward. Terminal states set the end time and are
// final. An empty message leaves the current message in place.
func (s *Store) UpdateState(id string, state State, records int64, message string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureDefaults()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !allowed(job.State, state) {
		return *job, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.State, state)
	}
	job.State = state
	job.TotalRecords = records
	if message != "" {
		job.Message = message
	}
	if state.Terminal() {
		job.EndTime = s.Clock()
		if job.EndTime.Before(job.StartTime) {
			job.EndTime = job.StartTime
		}
	}
	return *job, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Store) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.NewID == nil {
		s.NewID = uuid.NewString
	}
	if s.jobs == nil {
		s.jobs = map[string]*Job{}
	}
}

func allowed(from, to State) bool {
	switch from {
	case StateStarted:
		return to == StateInProgress || to == StateFailed
	case StateInProgress:
		return to == StateInProgress || to.Terminal()
	default:
		return false
	}
}
