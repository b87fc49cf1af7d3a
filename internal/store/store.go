// Package store persists the history of composite runs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cloudless/internal/composite"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = eris.New("run not found")

// RunState is the lifecycle state of a recorded run.
type RunState string

const (
	RunRunning  RunState = "running"
	RunComplete RunState = "complete"
	RunFailed   RunState = "failed"
)

// RunParams are the inputs of a composite run, recorded when it starts.
type RunParams struct {
	Dataset  string `json:"dataset"`
	TOI      string `json:"toi"`
	Scenario string `json:"scenario"`
	Period   int    `json:"period"`
	AOI      string `json:"aoi,omitempty"`
}

// RunResult is what a finished run produced.
type RunResult struct {
	BaseID          string                   `json:"base_id"`
	Outcome         string                   `json:"outcome"`
	InitialClouds   int                      `json:"initial_clouds"`
	RemainingClouds int                      `json:"remaining_clouds"`
	Fetched         int                      `json:"fetched"`
	OutputDir       string                   `json:"output_dir"`
	Contributions   []composite.Contribution `json:"contributions,omitempty"`
}

// Run is one row of the run history.
type Run struct {
	ID    string   `json:"id"`
	State RunState `json:"state"`
	RunParams
	RunResult
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Dataset string   `json:"dataset,omitempty"`
	State   RunState `json:"state,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	Offset  int      `json:"offset,omitempty"`
}

// Store defines the persistence interface for run history.
type Store interface {
	CreateRun(ctx context.Context, params RunParams) (*Run, error)
	// CompleteRun stores the result and its contribution log.
	CompleteRun(ctx context.Context, runID string, result RunResult) error
	FailRun(ctx context.Context, runID string, runErr error) error
	// GetRun returns the run including its contribution log.
	GetRun(ctx context.Context, runID string) (*Run, error)
	// ListRuns returns runs newest first, without contribution logs.
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(filter RunFilter) int {
	if filter.Limit <= 0 {
		return defaultListLimit
	}
	return filter.Limit
}

func errMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
