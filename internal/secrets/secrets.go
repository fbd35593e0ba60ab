// Package secrets resolves named secrets such as the GitHub App private key
package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no resolver has the secret
var ErrNotFound = errors.New("secret not found")

// Resolver looks up a secret by name
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// secretGetter is the subset of the Key Vault client the resolver uses
type secretGetter interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// KeyVault reads secrets from an Azure Key Vault
type KeyVault struct {
	client secretGetter
	logger *zap.Logger
}

// NewKeyVault creates a Key Vault resolver using the default Azure
// credential chain
func NewKeyVault(vaultURL string, logger *zap.Logger) (*KeyVault, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure credential: %w", err)
	}

	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create key vault client: %w", err)
	}

	return &KeyVault{client: client, logger: logger}, nil
}

// GetSecret returns the latest version of the named secret
func (k *KeyVault) GetSecret(ctx context.Context, name string) (string, error) {
	resp, err := k.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	if resp.Value == nil {
		return "", fmt.Errorf("secret %s: %w", name, ErrNotFound)
	}

	k.logger.Debug("resolved secret from key vault", zap.String("secret", name))
	return *resp.Value, nil
}

// Static serves secrets from memory
type Static map[string]string

// GetSecret returns the named secret
func (s Static) GetSecret(_ context.Context, name string) (string, error) {
	if value, ok := s[name]; ok && value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s: %w", name, ErrNotFound)
}

// Chain tries each resolver in order and returns the first secret found
type Chain []Resolver

// GetSecret returns the secret from the first resolver that has it. When
// every resolver fails all errors are reported
func (c Chain) GetSecret(ctx context.Context, name string) (string, error) {
	var errs error
	for _, resolver := range c {
		value, err := resolver.GetSecret(ctx, name)
		if err == nil {
			return value, nil
		}
		errs = multierr.Append(errs, err)
	}
	if errs == nil {
		return "", fmt.Errorf("secret %s: %w", name, ErrNotFound)
	}
	return "", errs
}
