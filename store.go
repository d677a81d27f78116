package gencode

import (
	"context"
	"time"
)

// RunStatus is how a recorded request ended.
type RunStatus string

const (
	RunOK               RunStatus = "ok"
	RunUsage            RunStatus = "usage"
	RunGenerationFailed RunStatus = "generation_failed"
	RunNoCode           RunStatus = "no_code"
	RunExecutionFailed  RunStatus = "execution_failed"
	RunCancelled        RunStatus = "cancelled"
	RunSendFailed       RunStatus = "send_failed"
)

// Run is one recorded generate-and-run request.
type Run struct {
	ID         string
	ChatID     string
	Tag        string
	Prompt     string
	Code       string
	Status     RunStatus
	Kind       OutcomeKind // meaningful once the code ran
	Output     string
	DurationMs int64
	CreatedAt  int64 // unix seconds
}

// RunStore persists request history.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	// ListRuns returns the newest runs first. An empty chatID lists all chats.
	ListRuns(ctx context.Context, chatID string, limit int) ([]Run, error)

	Init(ctx context.Context) error
	Close() error
}

// NowUnix returns the current time as unix seconds.
func NowUnix() int64 { return time.Now().Unix() }
