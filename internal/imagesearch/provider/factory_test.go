package provider

import (
	"testing"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_Create(t *testing.T) {
	factory := NewFactory()

	tests := []struct {
		name   string
		config *types.ProviderConfig
	}{
		{
			name: "phash provider",
			config: &types.ProviderConfig{
				ID:       types.ProviderPHash,
				Name:     "Scanner",
				APIHost:  "http://phash-scanner:8080",
				Priority: 100,
			},
		},
		{
			name: "vision provider",
			config: &types.ProviderConfig{
				ID:      types.ProviderVision,
				Name:    "Vision",
				APIHost: "https://vision.googleapis.com",
				APIKey:  "test-key",
			},
		},
		{
			name: "tineye provider",
			config: &types.ProviderConfig{
				ID:      types.ProviderTinEye,
				Name:    "TinEye",
				APIHost: "https://api.tineye.com",
				APIKey:  "test-key",
			},
		},
		{
			name: "bing provider",
			config: &types.ProviderConfig{
				ID:      types.ProviderBing,
				Name:    "Bing",
				APIHost: "https://api.bing.microsoft.com",
				APIKey:  "test-key",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := factory.Create(tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.config.ID, p.ID())
			assert.Equal(t, tt.config.Name, p.Name())
		})
	}
}

func TestFactory_Create_UnknownProvider(t *testing.T) {
	factory := NewFactory()

	_, err := factory.Create(&types.ProviderConfig{
		ID:      "karma",
		Name:    "Karma",
		APIHost: "https://api.karma.example",
		APIKey:  "test-key",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrProviderNotFound)
}

func TestFactory_Create_InvalidConfig(t *testing.T) {
	factory := NewFactory()

	_, err := factory.Create(&types.ProviderConfig{
		ID:   types.ProviderTinEye,
		Name: "TinEye",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidAPIHost)
}

func TestFactory_ListProviders(t *testing.T) {
	factory := NewFactory()
	ids := factory.ListProviders()
	assert.Len(t, ids, 4)
	assert.Contains(t, ids, types.ProviderPHash)
	assert.Contains(t, ids, types.ProviderVision)
	assert.Contains(t, ids, types.ProviderTinEye)
	assert.Contains(t, ids, types.ProviderBing)
}
