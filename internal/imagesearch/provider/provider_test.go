package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseProvider(t *testing.T) {
	config := &types.ProviderConfig{
		ID:       types.ProviderTinEye,
		Name:     "TinEye",
		APIHost:  "https://api.tineye.com",
		APIKey:   "test-key",
		Priority: 50,
		Timeout:  30,
	}

	base := NewBaseProvider(config)
	assert.NotNil(t, base)
	assert.Equal(t, types.ProviderTinEye, base.ID())
	assert.Equal(t, "TinEye", base.Name())
	assert.Equal(t, 50, base.Priority())
	assert.Equal(t, int64(-1), base.RemainingQuota())
}

func TestBaseProvider_ConsumeQuota(t *testing.T) {
	base := NewBaseProvider(&types.ProviderConfig{
		ID:         types.ProviderTinEye,
		Name:       "TinEye",
		APIHost:    "https://api.tineye.com",
		APIKey:     "test-key",
		QuotaLimit: 2,
	})

	assert.NoError(t, base.ConsumeQuota())
	assert.NoError(t, base.ConsumeQuota())
	assert.Equal(t, int64(0), base.RemainingQuota())

	err := base.ConsumeQuota()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrProviderQuotaDrained)

	var pe *types.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, types.ErrKindQuota, pe.Kind)

	// Drained quota makes the provider unavailable
	assert.False(t, base.IsAvailable(context.Background()))
}

func TestBaseProvider_ConsumeQuota_Unlimited(t *testing.T) {
	base := NewBaseProvider(&types.ProviderConfig{
		ID:      types.ProviderVision,
		Name:    "Vision",
		APIHost: "https://vision.googleapis.com",
		APIKey:  "test-key",
	})

	for i := 0; i < 100; i++ {
		assert.NoError(t, base.ConsumeQuota())
	}
	assert.Equal(t, int64(-1), base.RemainingQuota())
	assert.True(t, base.IsAvailable(context.Background()))
}

func TestBaseProvider_ClassifyStatusError(t *testing.T) {
	base := NewBaseProvider(&types.ProviderConfig{
		ID:      types.ProviderBing,
		Name:    "Bing",
		APIHost: "https://api.bing.microsoft.com",
		APIKey:  "test-key",
	})

	tests := []struct {
		status int
		want   types.ErrorKind
	}{
		{http.StatusUnauthorized, types.ErrKindAuth},
		{http.StatusForbidden, types.ErrKindAuth},
		{http.StatusTooManyRequests, types.ErrKindQuota},
		{http.StatusInternalServerError, types.ErrKindNetwork},
		{http.StatusBadGateway, types.ErrKindNetwork},
	}

	for _, tt := range tests {
		err := base.ClassifyStatusError(tt.status, "body")
		assert.Equal(t, tt.want, err.Kind, "status %d", tt.status)
		assert.Equal(t, types.ProviderBing, err.Provider)
	}
}

func TestProviderConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *types.ProviderConfig
		wantErr error
	}{
		{
			name: "valid tineye config",
			config: &types.ProviderConfig{
				ID:      types.ProviderTinEye,
				Name:    "TinEye",
				APIHost: "https://api.tineye.com",
				APIKey:  "test-key",
			},
			wantErr: nil,
		},
		{
			name: "scanner needs no API key",
			config: &types.ProviderConfig{
				ID:      types.ProviderPHash,
				Name:    "Scanner",
				APIHost: "http://phash-scanner:8080",
			},
			wantErr: nil,
		},
		{
			name: "missing provider ID",
			config: &types.ProviderConfig{
				Name:    "Test",
				APIHost: "https://api.test.com",
				APIKey:  "test-key",
			},
			wantErr: types.ErrInvalidProviderID,
		},
		{
			name: "missing API host",
			config: &types.ProviderConfig{
				ID:     types.ProviderVision,
				Name:   "Vision",
				APIKey: "test-key",
			},
			wantErr: types.ErrInvalidAPIHost,
		},
		{
			name: "missing API key for external provider",
			config: &types.ProviderConfig{
				ID:      types.ProviderBing,
				Name:    "Bing",
				APIHost: "https://api.bing.microsoft.com",
			},
			wantErr: types.ErrMissingAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPHashProvider_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scan", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"matches": [
				{"url": "https://a.example.com/img.jpg", "host": "a.example.com", "title": "Stolen copy", "score": 0.97, "status": "violation", "width": 800, "height": 600},
				{"url": "https://b.example.com/page", "host": "b.example.com", "title": "Blog post", "score": 0.81, "status": "found"}
			]
		}`))
	}))
	defer server.Close()

	p, err := NewPHashProvider(&types.ProviderConfig{
		ID:      types.ProviderPHash,
		Name:    "Scanner",
		APIHost: server.URL,
	})
	require.NoError(t, err)

	results, err := p.Search(context.Background(), &types.SearchQuery{
		ImageBytes: []byte("fake-image"),
		SearchType: types.SearchTypeGeneral,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "https://a.example.com/img.jpg", results[0].URL)
	assert.Equal(t, "a.example.com", results[0].SiteName)
	assert.InDelta(t, 97.0, results[0].Similarity, 0.001)
	assert.Equal(t, types.StatusViolation, results[0].Status)
	assert.Equal(t, 800, results[0].Metadata["width"])

	assert.Equal(t, types.StatusFound, results[1].Status)
	assert.Nil(t, results[1].Metadata)
}

func TestPHashProvider_IsAvailable(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	p, err := NewPHashProvider(&types.ProviderConfig{
		ID:      types.ProviderPHash,
		Name:    "Scanner",
		APIHost: healthy.URL,
	})
	require.NoError(t, err)
	assert.True(t, p.IsAvailable(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	p2, err := NewPHashProvider(&types.ProviderConfig{
		ID:      types.ProviderPHash,
		Name:    "Scanner",
		APIHost: down.URL,
	})
	require.NoError(t, err)
	assert.False(t, p2.IsAvailable(context.Background()))
}

func TestTinEyeProvider_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/search/", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		require.NoError(t, r.ParseMultipartForm(32<<20))
		_, _, err := r.FormFile("image_upload")
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"code": 200,
			"results": {
				"matches": [
					{
						"domain": "gallery.example.com",
						"score": 92.5,
						"image_url": "https://img.tineye.com/thumb/1.jpg",
						"width": 1024,
						"height": 768,
						"backlinks": [
							{"url": "https://gallery.example.com/photo.jpg", "backlink": "https://gallery.example.com/post/1", "crawl_date": "2026-05-14"},
							{"url": "https://gallery.example.com/photo.jpg", "backlink": "https://gallery.example.com/post/2"}
						]
					}
				]
			}
		}`))
	}))
	defer server.Close()

	p, err := NewTinEyeProvider(&types.ProviderConfig{
		ID:      types.ProviderTinEye,
		Name:    "TinEye",
		APIHost: server.URL,
		APIKey:  "test-key",
	})
	require.NoError(t, err)

	results, err := p.Search(context.Background(), &types.SearchQuery{
		ImageBytes: []byte("fake-image"),
	})
	require.NoError(t, err)

	// Each backlink is a distinct result
	require.Len(t, results, 2)
	assert.Equal(t, "https://gallery.example.com/post/1", results[0].URL)
	assert.Equal(t, "https://gallery.example.com/post/2", results[1].URL)
	assert.Equal(t, "gallery.example.com", results[0].SiteName)
	assert.InDelta(t, 92.5, results[0].Similarity, 0.001)
	assert.Equal(t, "2026-05-14", results[0].DetectedAt.Format("2006-01-02"))
}

func TestTinEyeProvider_Search_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code": 401}`))
	}))
	defer server.Close()

	p, err := NewTinEyeProvider(&types.ProviderConfig{
		ID:      types.ProviderTinEye,
		Name:    "TinEye",
		APIHost: server.URL,
		APIKey:  "bad-key",
	})
	require.NoError(t, err)

	_, err = p.Search(context.Background(), &types.SearchQuery{ImageBytes: []byte("fake-image")})
	require.Error(t, err)

	var pe *types.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, types.ErrKindAuth, pe.Kind)
}

func TestVisionProvider_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images:annotate", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"responses": [
				{
					"webDetection": {
						"fullMatchingImages": [
							{"url": "https://exact.example.com/copy.png"}
						],
						"partialMatchingImages": [
							{"url": "https://crop.example.com/crop.png"}
						],
						"pagesWithMatchingImages": [
							{"url": "https://exact.example.com/copy.png", "pageTitle": "Exact copy page"}
						]
					}
				}
			]
		}`))
	}))
	defer server.Close()

	p, err := NewVisionProvider(&types.ProviderConfig{
		ID:      types.ProviderVision,
		Name:    "Vision",
		APIHost: server.URL,
		APIKey:  "test-key",
	})
	require.NoError(t, err)

	results, err := p.Search(context.Background(), &types.SearchQuery{ImageBytes: []byte("fake-image")})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "https://exact.example.com/copy.png", results[0].URL)
	assert.InDelta(t, visionFullMatchScore, results[0].Similarity, 0.001)
	assert.Equal(t, "Exact copy page", results[0].Title)

	assert.Equal(t, "https://crop.example.com/crop.png", results[1].URL)
	assert.InDelta(t, visionPartialBaseScore, results[1].Similarity, 0.001)
}

func TestBingProvider_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v7.0/images/visualsearch", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"tags": [
				{
					"actions": [
						{"actionType": "RelatedSearches", "data": {}},
						{
							"actionType": "PagesIncluding",
							"data": {
								"value": [
									{"hostPageUrl": "https://news.example.com/article", "name": "News article", "thumbnailUrl": "https://tse.example.com/th1"},
									{"hostPageUrl": "https://shop.example.com/item", "name": "Shop listing"}
								]
							}
						}
					]
				}
			]
		}`))
	}))
	defer server.Close()

	p, err := NewBingProvider(&types.ProviderConfig{
		ID:      types.ProviderBing,
		Name:    "Bing",
		APIHost: server.URL,
		APIKey:  "test-key",
	})
	require.NoError(t, err)

	results, err := p.Search(context.Background(), &types.SearchQuery{ImageBytes: []byte("fake-image")})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "https://news.example.com/article", results[0].URL)
	assert.Equal(t, "news.example.com", results[0].SiteName)
	assert.Equal(t, "News article", results[0].Title)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}
