package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/meghashyamc/homeindex/db/kvdb"
)

type State string

const (
	StateIdle     State = "idle"
	StateIndexing State = "indexing"
	StateComplete State = "complete"
	StateError    State = "error"
)

// Progress checkpoints for each phase of a run.
const (
	progressPrimaryRoots       = 0.0
	progressDocumentationRoots = 0.35
	progressRepositories       = 0.5
	progressBuild              = 0.85
	progressPersist            = 0.95
	progressComplete           = 1.0
)

const (
	operationCancelled = "cancelled"
	operationFailed    = "failed"
)

// Status describes the latest run, or the engine's state before any run.
type Status struct {
	RunID            string    `json:"run_id,omitempty"`
	State            State     `json:"state"`
	Progress         float64   `json:"progress"`
	CurrentOperation string    `json:"current_operation"`
	Error            string    `json:"error,omitempty"`
	FilesIndexed     int       `json:"files_indexed"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// RunStore persists the status of each run by its ID.
type RunStore interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
}

// RunStatus returns the last persisted status of runID.
func (s *Service) RunStatus(runID string) (Status, error) {
	value, err := s.runs.Get(kvdb.RunsBucket, runID)
	if err != nil {
		if errors.Is(err, kvdb.ErrNotFound) {
			return Status{}, ErrRunNotFound
		}
		return Status{}, fmt.Errorf("failed to get run status: %w", err)
	}

	var status Status
	if err := json.Unmarshal([]byte(value), &status); err != nil {
		s.logger.Error("failed to unmarshal run status", "run_id", runID, "err", err.Error())
		return Status{}, fmt.Errorf("invalid status value: %w", err)
	}

	return status, nil
}

func (s *Service) setRunStatus(status Status) {
	data, err := json.Marshal(status)
	if err != nil {
		s.logger.Error("failed to marshal run status", "run_id", status.RunID, "err", err.Error())
		return
	}

	if err := s.runs.Set(kvdb.RunsBucket, status.RunID, string(data)); err != nil {
		s.logger.Error("failed to update run status", "run_id", status.RunID, "progress", status.Progress, "err", err.Error())
	}
}

// getProgress interpolates done/total between the initial and final
// checkpoints of a phase.
func getProgress(done int, total int, initial float64, final float64) float64 {
	if done <= 0 || total <= 0 {
		return initial
	}

	if done >= total {
		return final
	}

	return initial + float64(done)/float64(total)*(final-initial)
}
