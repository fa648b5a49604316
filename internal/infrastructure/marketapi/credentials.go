package marketapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

// StaticCredentialProvider resolves credentials from a fixed per-provider map.
// It serves single-seller deployments where one set of store credentials is
// configured at startup; a multi-account deployment would back the same port
// with the accounts table instead.
type StaticCredentialProvider struct {
	mu    sync.RWMutex
	creds map[string]marketplace.Credentials
}

// NewStaticCredentialProvider creates a provider over the given credentials,
// keyed by provider name.
func NewStaticCredentialProvider(creds map[string]marketplace.Credentials) *StaticCredentialProvider {
	if creds == nil {
		creds = make(map[string]marketplace.Credentials)
	}
	return &StaticCredentialProvider{creds: creds}
}

// Set registers or replaces the credentials for a provider.
func (p *StaticCredentialProvider) Set(provider string, c marketplace.Credentials) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds[provider] = c
}

// Credentials implements marketplace.CredentialProvider. Unknown providers
// come back as AUTH so the failure surfaces with the right taxonomy instead
// of a signing error deeper in the stack.
func (p *StaticCredentialProvider) Credentials(_ context.Context, _ uuid.UUID, provider string) (marketplace.Credentials, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.creds[provider]
	if !ok {
		return marketplace.Credentials{}, marketplace.NewStoreOperationError(
			marketplace.ErrorCodeAuth,
			fmt.Sprintf("no credentials configured for provider %q", provider),
		)
	}
	return c, nil
}
