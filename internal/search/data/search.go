package data

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/orchestrator"
	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
	"github.com/imageguard/imageguard-backend/internal/search/biz"
)

// UsageJSON stores the provider usage map as a JSONB column
type UsageJSON []orchestrator.UsageEntry

func (j *UsageJSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j UsageJSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// LogJSON stores the frozen processing log as a JSONB column
type LogJSON []orchestrator.LogStep

func (j *LogJSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j LogJSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// OptionsJSON stores the per-search option overrides as a JSONB column
type OptionsJSON types.SearchOptions

func (j *OptionsJSON) Scan(value interface{}) error {
	if value == nil {
		*j = OptionsJSON{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j OptionsJSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// SearchRecordPO represents the database model
type SearchRecordPO struct {
	ID         string  `gorm:"type:uuid;primarykey"`
	AccountID  *string `gorm:"size:64;index:idx_search_records_account"`
	PlanTier   string  `gorm:"size:20;not null"`
	SearchType string  `gorm:"size:20;not null"`

	Options OptionsJSON `gorm:"type:jsonb"`

	// Encrypted artifact references, never plaintext payloads
	ImageRef   string `gorm:"size:255"`
	ResultsRef string `gorm:"size:255"`
	ImageHash  string `gorm:"size:64;index:idx_search_records_image_hash"`

	Usage         UsageJSON `gorm:"type:jsonb"`
	ProcessingLog LogJSON   `gorm:"type:jsonb"`

	ResultCount int    `gorm:"not null;default:0"`
	ElapsedMs   int64  `gorm:"not null;default:0"`
	Status      string `gorm:"size:16;not null;index:idx_search_records_status"`

	RetryOf *string `gorm:"type:uuid"`

	CreatedAt time.Time `gorm:"not null;index:idx_search_records_created_at"`
}

func (SearchRecordPO) TableName() string {
	return "search_records"
}

// SearchRepoImpl implements biz.SearchRepo over gorm
type SearchRepoImpl struct {
	db *gorm.DB
}

// NewSearchRepo creates a search record repository
func NewSearchRepo(db *gorm.DB) biz.SearchRepo {
	return &SearchRepoImpl{db: db}
}

func (r *SearchRepoImpl) Create(ctx context.Context, rec *biz.SearchRecord) error {
	return r.db.WithContext(ctx).Create(toPO(rec)).Error
}

func (r *SearchRepoImpl) GetByID(ctx context.Context, id string) (*biz.SearchRecord, error) {
	var po SearchRecordPO
	if err := r.db.WithContext(ctx).First(&po, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return toDomain(&po), nil
}

func (r *SearchRepoImpl) List(ctx context.Context, accountID string, offset, limit int) ([]*biz.SearchRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&SearchRecordPO{}).Where("account_id = ?", accountID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var pos []SearchRecordPO
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&pos).Error; err != nil {
		return nil, 0, err
	}

	records := make([]*biz.SearchRecord, len(pos))
	for i := range pos {
		records[i] = toDomain(&pos[i])
	}
	return records, total, nil
}

func (r *SearchRepoImpl) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&SearchRecordPO{}, "id = ?", id).Error
}

func (r *SearchRepoImpl) ListExpired(ctx context.Context, tier types.PlanTier, cutoff time.Time, limit int) ([]*biz.SearchRecord, error) {
	var pos []SearchRecordPO
	err := r.db.WithContext(ctx).
		Where("plan_tier = ? AND created_at < ?", string(tier), cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	records := make([]*biz.SearchRecord, len(pos))
	for i := range pos {
		records[i] = toDomain(&pos[i])
	}
	return records, nil
}

func toPO(rec *biz.SearchRecord) *SearchRecordPO {
	po := &SearchRecordPO{
		ID:            rec.ID,
		PlanTier:      string(rec.PlanTier),
		SearchType:    string(rec.SearchType),
		Options:       OptionsJSON(rec.Options),
		ImageRef:      rec.ImageRef,
		ResultsRef:    rec.ResultsRef,
		ImageHash:     rec.ImageHash,
		Usage:         UsageJSON(rec.Usage),
		ProcessingLog: LogJSON(rec.ProcessingLog),
		ResultCount:   rec.ResultCount,
		ElapsedMs:     rec.ElapsedMs,
		Status:        string(rec.Status),
		CreatedAt:     rec.CreatedAt,
	}
	if rec.AccountID != "" {
		po.AccountID = &rec.AccountID
	}
	if rec.RetryOf != "" {
		po.RetryOf = &rec.RetryOf
	}
	return po
}

func toDomain(po *SearchRecordPO) *biz.SearchRecord {
	rec := &biz.SearchRecord{
		ID:            po.ID,
		PlanTier:      types.PlanTier(po.PlanTier),
		SearchType:    types.SearchType(po.SearchType),
		Options:       types.SearchOptions(po.Options),
		ImageRef:      po.ImageRef,
		ResultsRef:    po.ResultsRef,
		ImageHash:     po.ImageHash,
		Usage:         po.Usage,
		ProcessingLog: po.ProcessingLog,
		ResultCount:   po.ResultCount,
		ElapsedMs:     po.ElapsedMs,
		Status:        biz.RecordStatus(po.Status),
		CreatedAt:     po.CreatedAt,
	}
	if po.AccountID != nil {
		rec.AccountID = *po.AccountID
	}
	if po.RetryOf != nil {
		rec.RetryOf = *po.RetryOf
	}
	return rec
}
