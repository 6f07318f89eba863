package service

import (
	"encoding/base64"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
	"github.com/imageguard/imageguard-backend/internal/pkg/response"
	"github.com/imageguard/imageguard-backend/internal/search/biz"
)

// SearchService exposes the aggregation engine over HTTP. It is thin glue:
// identity arrives pre-resolved in headers set by the fronting gateway, and
// every decision beyond parsing lives in the use case.
type SearchService struct {
	uc     *biz.SearchUseCase
	logger *zap.Logger
}

// NewSearchService creates the search HTTP service
func NewSearchService(uc *biz.SearchUseCase, logger *zap.Logger) *SearchService {
	return &SearchService{uc: uc, logger: logger}
}

// RegisterRoutes registers the search endpoints
func (s *SearchService) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/search", s.Search)
	rg.GET("/search", s.List)
	rg.POST("/search/:id/retry", s.Retry)
	rg.GET("/search/:id/export", s.Export)
	rg.DELETE("/search/:id", s.Delete)
}

// Gateway-resolved identity headers. The engine never sees credentials.
const (
	headerAccountID = "X-Account-ID"
	headerPlanTier  = "X-Plan-Tier"
)

func requesterFrom(c *gin.Context) types.RequesterContext {
	tier := types.PlanTier(c.GetHeader(headerPlanTier))
	if tier == "" {
		tier = types.TierFree
	}
	return types.RequesterContext{
		AccountID: c.GetHeader(headerAccountID),
		PlanTier:  tier,
	}
}

type searchRequest struct {
	ImageBase64 string              `json:"image_base64,omitempty"`
	ImageRef    string              `json:"image_ref,omitempty"`
	SearchType  string              `json:"search_type,omitempty"`
	Options     types.SearchOptions `json:"options"`
}

// Search runs a reverse-image search
func (s *SearchService) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var imageBytes []byte
	if req.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			response.BadRequest(c, "image_base64 is not valid base64")
			return
		}
		imageBytes = decoded
	}

	searchType := types.SearchType(req.SearchType)
	if searchType == "" {
		searchType = types.SearchTypeGeneral
	}

	query := &types.SearchQuery{
		ImageBytes: imageBytes,
		ImageRef:   req.ImageRef,
		SearchType: searchType,
		Requester:  requesterFrom(c),
		Options:    req.Options,
	}

	output, err := s.uc.Execute(c.Request.Context(), query)
	if err != nil {
		s.logger.Warn("search failed", zap.Error(err))
		// output may still carry shaped results and a fallback search id
		var data interface{}
		if output != nil {
			data = output
		}
		response.HandleError(c, err, data)
		return
	}

	response.Success(c, output)
}

// Retry re-runs an existing search against its original image
func (s *SearchService) Retry(c *gin.Context) {
	output, err := s.uc.Retry(c.Request.Context(), c.Param("id"), requesterFrom(c))
	if err != nil {
		s.logger.Warn("retry failed", zap.String("search_id", c.Param("id")), zap.Error(err))
		var data interface{}
		if output != nil {
			data = output
		}
		response.HandleError(c, err, data)
		return
	}
	response.Success(c, output)
}

// Export returns the full decrypted result set to the owning account
func (s *SearchService) Export(c *gin.Context) {
	results, err := s.uc.Export(c.Request.Context(), c.Param("id"), requesterFrom(c))
	if err != nil {
		s.logger.Warn("export failed", zap.String("search_id", c.Param("id")), zap.Error(err))
		response.HandleError(c, err, nil)
		return
	}
	response.Success(c, gin.H{"results": results})
}

// Delete removes a search record and its stored artifacts
func (s *SearchService) Delete(c *gin.Context) {
	if err := s.uc.Delete(c.Request.Context(), c.Param("id"), requesterFrom(c)); err != nil {
		s.logger.Warn("delete failed", zap.String("search_id", c.Param("id")), zap.Error(err))
		response.HandleError(c, err, nil)
		return
	}
	response.Success(c, nil)
}

type historyItem struct {
	SearchID    string `json:"search_id"`
	Status      string `json:"status"`
	ResultCount int    `json:"result_count"`
	ElapsedMs   int64  `json:"elapsed_ms"`
	RetryOf     string `json:"retry_of,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// List returns a page of the account's search history
func (s *SearchService) List(c *gin.Context) {
	requester := requesterFrom(c)
	if requester.Anonymous() {
		response.BadRequest(c, "history requires an account")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	records, total, err := s.uc.List(c.Request.Context(), requester.AccountID, page, pageSize)
	if err != nil {
		s.logger.Error("failed to list searches", zap.Error(err))
		response.HandleError(c, err, nil)
		return
	}

	items := make([]historyItem, len(records))
	for i, rec := range records {
		items[i] = historyItem{
			SearchID:    rec.ID,
			Status:      string(rec.Status),
			ResultCount: rec.ResultCount,
			ElapsedMs:   rec.ElapsedMs,
			RetryOf:     rec.RetryOf,
			CreatedAt:   rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	response.Success(c, gin.H{"items": items, "total": total})
}
