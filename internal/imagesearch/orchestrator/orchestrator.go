package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/provider"
	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
)

// Status is the overall outcome of one orchestrated search.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// UsageEntry records one provider's fate during a search. The collection of
// entries becomes the SearchRecord's provider usage map.
type UsageEntry struct {
	Provider    types.ProviderID `json:"provider"`
	Attempted   bool             `json:"attempted"`
	Succeeded   bool             `json:"succeeded"`
	ResultCount int              `json:"result_count"`
	ElapsedMs   int64            `json:"elapsed_ms"`
	Error       string           `json:"error,omitempty"`
	ErrorKind   types.ErrorKind  `json:"error_kind,omitempty"`
}

// Outcome is the combined result of fanning one query out to N providers.
type Outcome struct {
	Results   []*types.ProviderResult
	Usage     []UsageEntry
	Log       *ProcessingLog
	Status    Status
	ElapsedMs int64
}

// Failed lists the usage entries for providers that were attempted but did
// not succeed.
func (o *Outcome) Failed() []UsageEntry {
	var failed []UsageEntry
	for _, u := range o.Usage {
		if u.Attempted && !u.Succeeded {
			failed = append(failed, u)
		}
	}
	return failed
}

// Succeeded lists the provider IDs that returned successfully.
func (o *Outcome) Succeeded() []types.ProviderID {
	var ok []types.ProviderID
	for _, u := range o.Usage {
		if u.Succeeded {
			ok = append(ok, u.Provider)
		}
	}
	return ok
}

// Orchestrator fans a query out to the selected providers concurrently
// under a single shared deadline.
type Orchestrator struct {
	globalTimeout time.Duration
	logger        *zap.Logger
}

// New creates a new orchestrator
func New(globalTimeout time.Duration, logger *zap.Logger) *Orchestrator {
	if globalTimeout <= 0 {
		globalTimeout = 30 * time.Second
	}
	return &Orchestrator{
		globalTimeout: globalTimeout,
		logger:        logger,
	}
}

type providerOutcome struct {
	usage   UsageEntry
	results []*types.ProviderResult
}

// Execute launches every provider's search concurrently and collects
// whatever subset succeeds. The deadline is shared across all providers, so
// a slow backend cannot consume another's wall-clock budget; calls still in
// flight at expiry are cancelled and recorded as timeouts. One provider
// failing never suppresses another's results: the search is failed only
// when nothing succeeded at all.
func (o *Orchestrator) Execute(ctx context.Context, query *types.SearchQuery, providers []provider.Provider) *Outcome {
	started := time.Now()
	log := NewProcessingLog()

	if len(providers) == 0 {
		log.Append(LogStep{
			Step:      "select",
			StartedAt: started,
			Success:   false,
			Message:   "no providers available for plan tier",
		})
		return &Outcome{
			Results:   []*types.ProviderResult{},
			Usage:     []UsageEntry{},
			Log:       log,
			Status:    StatusFailed,
			ElapsedMs: time.Since(started).Milliseconds(),
		}
	}

	searchCtx, cancel := context.WithTimeout(ctx, o.globalTimeout)
	defer cancel()

	outcomes := make(chan providerOutcome, len(providers))

	var wg sync.WaitGroup
	for _, p := range providers {
		wg.Add(1)

		go func(p provider.Provider) {
			defer wg.Done()

			callStart := time.Now()
			results, err := p.Search(searchCtx, query)
			elapsed := time.Since(callStart)

			entry := UsageEntry{
				Provider:  p.ID(),
				Attempted: true,
				ElapsedMs: elapsed.Milliseconds(),
			}

			if err != nil {
				entry.Error = err.Error()
				entry.ErrorKind = classifyKind(err)
				o.logger.Warn("provider search failed",
					zap.String("provider", string(p.ID())),
					zap.String("kind", string(entry.ErrorKind)),
					zap.Error(err))
			} else {
				entry.Succeeded = true
				entry.ResultCount = len(results)
			}

			log.Append(LogStep{
				Step:       "provider_search",
				Provider:   p.ID(),
				StartedAt:  callStart,
				DurationMs: elapsed.Milliseconds(),
				Success:    entry.Succeeded,
				Message:    entry.Error,
			})

			outcomes <- providerOutcome{usage: entry, results: results}
		}(p)
	}

	wg.Wait()
	close(outcomes)

	outcome := &Outcome{
		Results: []*types.ProviderResult{},
		Usage:   make([]UsageEntry, 0, len(providers)),
		Log:     log,
	}

	anySucceeded := false
	for po := range outcomes {
		outcome.Usage = append(outcome.Usage, po.usage)
		if po.usage.Succeeded {
			anySucceeded = true
			outcome.Results = append(outcome.Results, po.results...)
		}
	}

	outcome.Status = StatusCompleted
	if !anySucceeded {
		outcome.Status = StatusFailed
	}
	outcome.ElapsedMs = time.Since(started).Milliseconds()

	log.Append(LogStep{
		Step:       "fan_in",
		StartedAt:  started,
		DurationMs: outcome.ElapsedMs,
		Success:    anySucceeded,
	})

	o.logger.Info("search orchestration finished",
		zap.Int("providers", len(providers)),
		zap.Int("succeeded", len(outcome.Succeeded())),
		zap.Int("results", len(outcome.Results)),
		zap.String("status", string(outcome.Status)),
		zap.Int64("elapsed_ms", outcome.ElapsedMs))

	return outcome
}

// classifyKind extracts the error kind from a provider error, defaulting to
// network for anything untagged.
func classifyKind(err error) types.ErrorKind {
	var pe *types.ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrKindTimeout
	}
	return types.ErrKindNetwork
}
