package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// StepResult captures the outcome of one controller step.
type StepResult struct {
	Index    int           `json:"index"` // 0-based position in the run
	Name     string        `json:"name"`  // connect, start_app, check_login, ...
	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`
	Code     string        `json:"errorCode,omitempty"`

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Message     string       `json:"message,omitempty"` // Human-readable explanation
	Error       string       `json:"error,omitempty"`   // Technical error message
	Attachments []Attachment `json:"attachments,omitempty"`
}

// NewStepResult classifies err into a step status. Assertion failures are
// failed steps; everything else (timeouts, connection, app state) errored.
func NewStepResult(name string, start time.Time, err error) StepResult {
	step := StepResult{
		Name:      name,
		StartTime: start,
		Duration:  time.Since(start),
		Status:    StatusPassed,
	}
	if err == nil {
		return step
	}

	step.Error = err.Error()
	step.Category = CategoryOf(err)
	step.Code = CodeOf(err)
	if step.Category == ErrCategoryAssertion {
		step.Status = StatusFailed
	} else {
		step.Status = StatusErrored
	}
	return step
}

// RunResult captures the outcome of one controller sequence.
type RunResult struct {
	RunID   string `json:"runId"`
	Device  string `json:"device"`
	Package string `json:"package"`

	Status StepStatus `json:"status"`

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Steps []StepResult `json:"steps"`

	TotalSteps   int `json:"totalSteps"`
	PassedSteps  int `json:"passedSteps"`
	FailedSteps  int `json:"failedSteps"`
	SkippedSteps int `json:"skippedSteps"`
	WarnedSteps  int `json:"warnedSteps"`

	Error       string `json:"error,omitempty"`
	Interrupted bool   `json:"interrupted,omitempty"`
}

// NewRunResult starts a run with a fresh id.
func NewRunResult(device, pkg string) *RunResult {
	return &RunResult{
		RunID:     uuid.NewString(),
		Device:    device,
		Package:   pkg,
		Status:    StatusRunning,
		StartTime: time.Now(),
	}
}

// AddStep appends a step and returns a pointer to the stored copy.
func (r *RunResult) AddStep(step StepResult) *StepResult {
	step.Index = len(r.Steps)
	r.Steps = append(r.Steps, step)
	return &r.Steps[len(r.Steps)-1]
}

// Skip records the named steps as skipped after an earlier failure.
func (r *RunResult) Skip(names ...string) {
	for _, name := range names {
		r.AddStep(StepResult{Name: name, Status: StatusSkipped, StartTime: time.Now()})
	}
}

// ComputeSummary calculates step counts from the Steps slice
func (r *RunResult) ComputeSummary() {
	r.TotalSteps = len(r.Steps)
	r.PassedSteps = 0
	r.FailedSteps = 0
	r.SkippedSteps = 0
	r.WarnedSteps = 0

	for _, step := range r.Steps {
		switch step.Status {
		case StatusPassed:
			r.PassedSteps++
		case StatusFailed, StatusErrored:
			r.FailedSteps++
		case StatusSkipped:
			r.SkippedSteps++
		case StatusWarned:
			r.WarnedSteps++
		}
	}
}

// AggregateStatus determines the run status from step results
// Rules:
// - Any failed/errored step → StatusFailed
// - All passed (with warned) → StatusWarned if any warned, else StatusPassed
func (r *RunResult) AggregateStatus() StepStatus {
	warned := false
	for _, step := range r.Steps {
		switch step.Status {
		case StatusFailed, StatusErrored:
			return StatusFailed
		case StatusWarned:
			warned = true
		}
	}
	if warned {
		return StatusWarned
	}
	return StatusPassed
}

// Finish stamps the duration, summary and final status.
func (r *RunResult) Finish() {
	r.Duration = time.Since(r.StartTime)
	r.ComputeSummary()
	r.Status = r.AggregateStatus()
	if r.Interrupted {
		r.Status = StatusFailed
	}
	for _, step := range r.Steps {
		if step.Error != "" {
			r.Error = fmt.Sprintf("%s: %s", step.Name, step.Error)
			break
		}
	}
}

// Success returns true if every step passed (including warned)
func (r *RunResult) Success() bool {
	return len(r.Steps) > 0 && !r.Interrupted && r.AggregateStatus().IsSuccess()
}

// Dir returns the run's directory under the data directory.
func (r *RunResult) Dir(dataDir string) string {
	return filepath.Join(dataDir, "runs", r.RunID)
}

// WriteJSON writes result.json into the run directory and returns its path.
func (r *RunResult) WriteJSON(dataDir string) (string, error) {
	dir := r.Dir(dataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "result.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
