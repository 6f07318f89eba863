package orchestrator

import (
	"sync"
	"time"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
)

// LogStep is one entry in a search's processing log.
type LogStep struct {
	Step       string           `json:"step"`
	Provider   types.ProviderID `json:"provider,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	DurationMs int64            `json:"duration_ms"`
	Success    bool             `json:"success"`
	Message    string           `json:"message,omitempty"`
}

// ProcessingLog accumulates step records during one search. Appends are
// safe from concurrent provider goroutines; the log is frozen once the
// search completes and persisted verbatim alongside the SearchRecord.
type ProcessingLog struct {
	mu    sync.Mutex
	steps []LogStep
}

// NewProcessingLog creates an empty processing log
func NewProcessingLog() *ProcessingLog {
	return &ProcessingLog{}
}

// Append adds a step record
func (l *ProcessingLog) Append(step LogStep) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, step)
}

// Steps returns a copy of the recorded steps
func (l *ProcessingLog) Steps() []LogStep {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogStep, len(l.steps))
	copy(out, l.steps)
	return out
}
