package marketapi

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

func TestStaticCredentialProvider(t *testing.T) {
	provider := NewStaticCredentialProvider(map[string]marketplace.Credentials{
		marketplace.ProviderBrickLink: {
			ConsumerKey:    "ck",
			ConsumerSecret: "cs",
			TokenValue:     "tv",
			TokenSecret:    "ts",
		},
	})
	provider.Set(marketplace.ProviderBrickOwl, marketplace.Credentials{APIKey: "owl-key"})

	t.Run("returns configured credentials", func(t *testing.T) {
		creds, err := provider.Credentials(context.Background(), uuid.New(), marketplace.ProviderBrickLink)
		require.NoError(t, err)
		assert.Equal(t, "ck", creds.ConsumerKey)
		assert.Equal(t, "ts", creds.TokenSecret)

		creds, err = provider.Credentials(context.Background(), uuid.New(), marketplace.ProviderBrickOwl)
		require.NoError(t, err)
		assert.Equal(t, "owl-key", creds.APIKey)
	})

	t.Run("unknown provider maps to AUTH", func(t *testing.T) {
		_, err := provider.Credentials(context.Background(), uuid.New(), "ebay")
		require.Error(t, err)

		var opErr *marketplace.StoreOperationError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, marketplace.ErrorCodeAuth, opErr.Code)
		assert.False(t, opErr.Retryable)
	})
}
