package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Task is the work handed to a Runner.
type Task struct {
	SessionID string
	Task      string
	Provider  string
	Model     string
	MaxSteps  int
	Workspace string
}

// Emitter receives session messages from a Runner.
type Emitter interface {
	Emit(msg any) error
}

// Runner executes a task and reports progress through emit. It returns the
// final status (completed or failed); an error ends the session in error.
type Runner interface {
	Run(ctx context.Context, task Task, emit Emitter) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, task Task, emit Emitter) (string, error)

func (f RunnerFunc) Run(ctx context.Context, task Task, emit Emitter) (string, error) {
	return f(ctx, task, emit)
}

// SimulatedRunner walks through canned steps and writes hello.py into the
// workspace. It stands in for a real agent during development.
type SimulatedRunner struct {
	StepDelay time.Duration
}

var simulatedSteps = []string{
	"Analyzing the task...",
	"Setting up the environment...",
	"Generating code...",
	"Testing the solution...",
	"Task completed!",
}

// Run implements Runner.
func (r SimulatedRunner) Run(ctx context.Context, task Task, emit Emitter) (string, error) {
	start := time.Now()
	if err := emit.Emit(textMessage{Type: "system", Content: "Starting task: " + task.Task}); err != nil {
		return "", err
	}

	steps := simulatedSteps
	if task.MaxSteps > 0 && task.MaxSteps < len(steps) {
		steps = steps[:task.MaxSteps]
	}
	for i, content := range steps {
		err := emit.Emit(stepMessage{Type: "step", Content: stepContent{
			StepNumber: i + 1,
			State:      "executing",
			Content:    content,
		}})
		if err != nil {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.StepDelay):
		}
	}

	sample := filepath.Join(task.Workspace, "hello.py")
	if err := os.WriteFile(sample, []byte("print(\"Hello, World!\")\n"), 0o644); err != nil {
		return "", fmt.Errorf("write sample file: %w", err)
	}

	err := emit.Emit(resultMessage{
		Type:          "result",
		Content:       "Task completed successfully! Created hello.py",
		Success:       true,
		ExecutionTime: time.Since(start).Seconds(),
	})
	if err != nil {
		return "", err
	}
	return StatusCompleted, nil
}

type textMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type stepContent struct {
	StepNumber int    `json:"step_number"`
	State      string `json:"state"`
	Content    string `json:"content"`
}

type stepMessage struct {
	Type    string      `json:"type"`
	Content stepContent `json:"content"`
}

type resultMessage struct {
	Type          string  `json:"type"`
	Content       string  `json:"content"`
	Success       bool    `json:"success"`
	ExecutionTime float64 `json:"executionTime"`
}
