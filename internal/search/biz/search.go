package biz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imageguard/imageguard-backend/internal/entitlement"
	"github.com/imageguard/imageguard-backend/internal/imagesearch/aggregate"
	"github.com/imageguard/imageguard-backend/internal/imagesearch/orchestrator"
	"github.com/imageguard/imageguard-backend/internal/imagesearch/registry"
	"github.com/imageguard/imageguard-backend/internal/imagesearch/shape"
	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
	"github.com/imageguard/imageguard-backend/internal/pkg/crypto"
	apperrors "github.com/imageguard/imageguard-backend/internal/pkg/errors"
)

// RecordStatus is the lifecycle state of a SearchRecord. Records are
// terminal once written: completed and failed never transition except by
// deletion, and a retry creates a new record referencing the original.
type RecordStatus string

const (
	RecordProcessing RecordStatus = "processing"
	RecordCompleted  RecordStatus = "completed"
	RecordFailed     RecordStatus = "failed"
)

// SearchRecord is the durable audit entity for one search invocation.
// Image bytes and the full result set are stored encrypted in the blob
// store; the record only carries their references and a content hash.
type SearchRecord struct {
	ID         string
	AccountID  string // empty for anonymous searches
	PlanTier   types.PlanTier
	SearchType types.SearchType
	Options    types.SearchOptions

	ImageRef   string // blob key of the encrypted query image
	ResultsRef string // blob key of the encrypted full result set
	ImageHash  string // sha256 of the plaintext image

	Usage         []orchestrator.UsageEntry
	ProcessingLog []orchestrator.LogStep
	ResultCount   int
	ElapsedMs     int64
	Status        RecordStatus
	RetryOf       string // id of the original search when this is a retry

	CreatedAt time.Time
}

// SearchRepo defines the interface for search record persistence
type SearchRepo interface {
	Create(ctx context.Context, rec *SearchRecord) error
	GetByID(ctx context.Context, id string) (*SearchRecord, error)
	List(ctx context.Context, accountID string, offset, limit int) ([]*SearchRecord, int64, error)
	Delete(ctx context.Context, id string) error
	ListExpired(ctx context.Context, tier types.PlanTier, cutoff time.Time, limit int) ([]*SearchRecord, error)
}

// BlobStore defines the interface for the encrypted-artifact object store
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Remove(ctx context.Context, ref string) error
}

// ProviderFailure is one entry of the public failure summary.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Error    string `json:"error"`
}

// Summary is the redacted, public-safe account of how a search went.
type Summary struct {
	TotalResults    int               `json:"total_results"`
	ElapsedMs       int64             `json:"elapsed_ms"`
	ProvidersUsed   []string          `json:"providers_used"`
	ProvidersFailed []ProviderFailure `json:"providers_failed"`
}

// ExecuteOutput is what the caller receives for a search. SearchID may be
// set even when Execute also returns an error, so history and retry tooling
// can reference the fallback record.
type ExecuteOutput struct {
	SearchID string                `json:"search_id,omitempty"`
	Results  []*types.ShapedResult `json:"results"`
	Summary  Summary               `json:"summary"`
}

// SearchUseCase runs the full aggregation pipeline: provider selection,
// concurrent fan-out, dedup and ranking, plan shaping, and encrypted
// persistence.
type SearchUseCase struct {
	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
	entitlements *entitlement.Service
	encryptor    *crypto.Service
	blobs        BlobStore
	repo         SearchRepo
	logger       *zap.Logger
}

// NewSearchUseCase creates the search use case
func NewSearchUseCase(
	reg *registry.Registry,
	orch *orchestrator.Orchestrator,
	ent *entitlement.Service,
	enc *crypto.Service,
	blobs BlobStore,
	repo SearchRepo,
	logger *zap.Logger,
) *SearchUseCase {
	return &SearchUseCase{
		registry:     reg,
		orchestrator: orch,
		entitlements: ent,
		encryptor:    enc,
		blobs:        blobs,
		repo:         repo,
		logger:       logger,
	}
}

// Execute runs one search end to end. A degraded search (some providers
// failed, some results returned) is a success with a populated
// ProvidersFailed list. An error is returned only when every provider
// failed or persistence failed entirely; shaped results computed before a
// persistence failure are still returned alongside the error.
func (uc *SearchUseCase) Execute(ctx context.Context, query *types.SearchQuery) (*ExecuteOutput, error) {
	if err := uc.prepareImage(ctx, query); err != nil {
		return nil, err
	}
	if err := query.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrSearchImageInvalid)
	}

	if err := uc.entitlements.ConsumeSearch(ctx, query.Requester); err != nil {
		if errors.Is(err, entitlement.ErrAllowanceExceeded) {
			return nil, apperrors.Wrap(err, apperrors.ErrSearchAllowanceExceeded)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	return uc.run(ctx, query, "")
}

// run executes the pipeline stages shared by Execute and Retry.
func (uc *SearchUseCase) run(ctx context.Context, query *types.SearchQuery, retryOf string) (*ExecuteOutput, error) {
	plan := uc.entitlements.Plan(query.Requester.PlanTier)

	providers := uc.registry.Select(ctx, query.Requester.PlanTier)
	outcome := uc.orchestrator.Execute(ctx, query, providers)

	aggregated := aggregate.Aggregate(outcome.Results, aggregate.Config{
		MaxResults:            clampMax(query.Options.MaxResults, plan.MaxResults),
		MaxResultsPerProvider: plan.MaxResultsPerProvider,
		MinSimilarity:         query.Options.MinimumSimilarity,
		PriorityOf:            uc.registry.PriorityOf,
	})

	shaped := shape.Shape(aggregated, query.Requester.PlanTier)

	output := &ExecuteOutput{
		Results: shaped,
		Summary: buildSummary(len(shaped), outcome),
	}

	record, persistErr := uc.persist(ctx, query, aggregated, outcome, retryOf)
	if record != nil {
		output.SearchID = record.ID
	}
	if persistErr != nil {
		// Best effort: the caller still sees the shaped results this cycle
		// even though history writing failed.
		return output, apperrors.Wrap(persistErr, apperrors.ErrSearchPersistenceFailed)
	}

	if outcome.Status == orchestrator.StatusFailed {
		return output, apperrors.New(apperrors.ErrSearchAllProvidersFailed, failureDetails(outcome))
	}

	return output, nil
}

// prepareImage dereferences an image reference into bytes when the caller
// handed over a staging-blob pointer instead of the payload itself.
func (uc *SearchUseCase) prepareImage(ctx context.Context, query *types.SearchQuery) error {
	if len(query.ImageBytes) > 0 || query.ImageRef == "" {
		return nil
	}
	data, err := uc.blobs.Get(ctx, query.ImageRef)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrSearchImageInvalid, "image reference %s", query.ImageRef)
	}
	query.ImageBytes = data
	return nil
}

// persist encrypts and stores the query image, the full (unshaped) result
// set, and the audit trail. On failure it falls back to a minimal record so
// no search vanishes without a trace; only when even that write fails does
// the error propagate.
func (uc *SearchUseCase) persist(
	ctx context.Context,
	query *types.SearchQuery,
	aggregated []*types.AggregatedResult,
	outcome *orchestrator.Outcome,
	retryOf string,
) (*SearchRecord, error) {
	record := &SearchRecord{
		ID:            uuid.NewString(),
		AccountID:     query.Requester.AccountID,
		PlanTier:      query.Requester.PlanTier,
		SearchType:    query.SearchType,
		Options:       query.Options,
		ImageHash:     crypto.ContentHash(query.ImageBytes),
		Usage:         outcome.Usage,
		ProcessingLog: outcome.Log.Steps(),
		ResultCount:   len(aggregated),
		ElapsedMs:     outcome.ElapsedMs,
		Status:        RecordProcessing,
		RetryOf:       retryOf,
		CreatedAt:     time.Now().UTC(),
	}

	err := uc.storeArtifacts(ctx, record, query.ImageBytes, aggregated)
	if err == nil {
		record.Status = RecordCompleted
		if outcome.Status == orchestrator.StatusFailed {
			record.Status = RecordFailed
		}
		if err = uc.repo.Create(ctx, record); err == nil {
			return record, nil
		}
	}

	uc.logger.Error("full persistence failed, writing fallback record",
		zap.String("search_id", record.ID), zap.Error(err))

	// Minimal fallback: ids, counts, failure status. No artifact refs.
	fallback := &SearchRecord{
		ID:          record.ID,
		AccountID:   record.AccountID,
		PlanTier:    record.PlanTier,
		SearchType:  record.SearchType,
		ImageHash:   record.ImageHash,
		Usage:       record.Usage,
		ResultCount: record.ResultCount,
		ElapsedMs:   record.ElapsedMs,
		Status:      RecordFailed,
		RetryOf:     retryOf,
		CreatedAt:   record.CreatedAt,
	}
	if fbErr := uc.repo.Create(ctx, fallback); fbErr != nil {
		uc.logger.Error("fallback persistence failed", zap.String("search_id", record.ID), zap.Error(fbErr))
		return nil, fmt.Errorf("fallback record write failed: %w (original: %v)", fbErr, err)
	}
	return fallback, err
}

func (uc *SearchUseCase) storeArtifacts(
	ctx context.Context,
	record *SearchRecord,
	imageBytes []byte,
	aggregated []*types.AggregatedResult,
) error {
	imageCipher, err := uc.encryptor.Encrypt(crypto.PurposeImage, imageBytes)
	if err != nil {
		return fmt.Errorf("failed to encrypt image: %w", err)
	}

	resultsPlain, err := json.Marshal(aggregated)
	if err != nil {
		return fmt.Errorf("failed to serialize results: %w", err)
	}
	resultsCipher, err := uc.encryptor.Encrypt(crypto.PurposeResults, resultsPlain)
	if err != nil {
		return fmt.Errorf("failed to encrypt results: %w", err)
	}

	imageRef, err := uc.blobs.Put(ctx, "searches/"+record.ID+"/image", imageCipher)
	if err != nil {
		return fmt.Errorf("failed to store image: %w", err)
	}
	record.ImageRef = imageRef

	resultsRef, err := uc.blobs.Put(ctx, "searches/"+record.ID+"/results", resultsCipher)
	if err != nil {
		return fmt.Errorf("failed to store results: %w", err)
	}
	record.ResultsRef = resultsRef

	return nil
}

// Retry re-runs the pipeline against the original query image of an
// existing record. The result is a brand new SearchRecord referencing the
// original; the original is never mutated.
func (uc *SearchUseCase) Retry(ctx context.Context, searchID string, requester types.RequesterContext) (*ExecuteOutput, error) {
	record, err := uc.getOwned(ctx, searchID, requester)
	if err != nil {
		return nil, err
	}
	if record.ImageRef == "" {
		return nil, apperrors.New(apperrors.ErrSearchNotRetryable, "original image was not persisted")
	}

	imageCipher, err := uc.blobs.Get(ctx, record.ImageRef)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrSearchPersistenceFailed)
	}
	imageBytes, err := uc.encryptor.Decrypt(crypto.PurposeImage, imageCipher)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrSearchPersistenceFailed)
	}

	query := &types.SearchQuery{
		ImageBytes: imageBytes,
		SearchType: record.SearchType,
		Requester:  requester,
		Options:    record.Options,
	}

	if err := uc.entitlements.ConsumeSearch(ctx, requester); err != nil {
		if errors.Is(err, entitlement.ErrAllowanceExceeded) {
			return nil, apperrors.Wrap(err, apperrors.ErrSearchAllowanceExceeded)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	return uc.run(ctx, query, record.ID)
}

// Export returns the full decrypted result set of a record to its owner.
// This is the only normal-path decryption of stored results.
func (uc *SearchUseCase) Export(ctx context.Context, searchID string, requester types.RequesterContext) ([]*types.AggregatedResult, error) {
	record, err := uc.getOwned(ctx, searchID, requester)
	if err != nil {
		return nil, err
	}
	if record.ResultsRef == "" {
		return []*types.AggregatedResult{}, nil
	}

	cipher, err := uc.blobs.Get(ctx, record.ResultsRef)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrSearchPersistenceFailed)
	}
	plain, err := uc.encryptor.Decrypt(crypto.PurposeResults, cipher)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrSearchPersistenceFailed)
	}

	var results []*types.AggregatedResult
	if err := json.Unmarshal(plain, &results); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrSearchPersistenceFailed)
	}
	return results, nil
}

// Delete removes a record and its encrypted artifacts. Used by the owner
// and by the retention sweeper.
func (uc *SearchUseCase) Delete(ctx context.Context, searchID string, requester types.RequesterContext) error {
	record, err := uc.getOwned(ctx, searchID, requester)
	if err != nil {
		return err
	}
	return uc.deleteRecord(ctx, record)
}

func (uc *SearchUseCase) deleteRecord(ctx context.Context, record *SearchRecord) error {
	for _, ref := range []string{record.ImageRef, record.ResultsRef} {
		if ref == "" {
			continue
		}
		if err := uc.blobs.Remove(ctx, ref); err != nil {
			uc.logger.Warn("failed to remove artifact",
				zap.String("search_id", record.ID), zap.String("ref", ref), zap.Error(err))
		}
	}
	if err := uc.repo.Delete(ctx, record.ID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrSearchPersistenceFailed)
	}
	uc.logger.Info("search record deleted", zap.String("search_id", record.ID))
	return nil
}

// DeleteExpired removes non-premium records older than their plan's
// retention window. Invoked by the retention sweeper.
func (uc *SearchUseCase) DeleteExpired(ctx context.Context, batchSize int) (int, error) {
	deleted := 0
	for _, plan := range uc.entitlements.Plans() {
		if plan.Premium || plan.RetentionDays <= 0 {
			continue
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -plan.RetentionDays)
		records, err := uc.repo.ListExpired(ctx, plan.Tier, cutoff, batchSize)
		if err != nil {
			return deleted, err
		}
		for _, rec := range records {
			if err := uc.deleteRecord(ctx, rec); err != nil {
				uc.logger.Warn("retention delete failed", zap.String("search_id", rec.ID), zap.Error(err))
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

// List returns a page of an account's search history, summary fields only.
func (uc *SearchUseCase) List(ctx context.Context, accountID string, page, pageSize int) ([]*SearchRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return uc.repo.List(ctx, accountID, (page-1)*pageSize, pageSize)
}

// getOwned loads a record and enforces exclusive account ownership.
func (uc *SearchUseCase) getOwned(ctx context.Context, searchID string, requester types.RequesterContext) (*SearchRecord, error) {
	record, err := uc.repo.GetByID(ctx, searchID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrSearchNotFound)
	}
	if record.AccountID == "" || record.AccountID != requester.AccountID {
		return nil, apperrors.New(apperrors.ErrSearchAccessDenied, searchID)
	}
	return record, nil
}

func clampMax(requested, planMax int) int {
	if requested <= 0 || requested > planMax {
		return planMax
	}
	return requested
}

func buildSummary(total int, outcome *orchestrator.Outcome) Summary {
	summary := Summary{
		TotalResults:    total,
		ElapsedMs:       outcome.ElapsedMs,
		ProvidersUsed:   []string{},
		ProvidersFailed: []ProviderFailure{},
	}
	for _, id := range outcome.Succeeded() {
		summary.ProvidersUsed = append(summary.ProvidersUsed, string(id))
	}
	for _, f := range outcome.Failed() {
		summary.ProvidersFailed = append(summary.ProvidersFailed, ProviderFailure{
			Provider: string(f.Provider),
			Error:    f.Error,
		})
	}
	return summary
}

func failureDetails(outcome *orchestrator.Outcome) string {
	failed := outcome.Failed()
	if len(failed) == 0 {
		return "no providers available"
	}
	return fmt.Sprintf("%d provider(s) failed", len(failed))
}
