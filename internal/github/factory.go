package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/clintrovert/boardbridge/internal/secrets"
	"github.com/clintrovert/boardbridge/pkg/types"
)

// ErrNoInstallation is returned for deliveries that do not come from an
// installed GitHub App
var ErrNoInstallation = errors.New("delivery has no app installation")

// IssueClient reads and writes GitHub issues
type IssueClient interface {
	FetchIssue(ctx context.Context, owner, repo string, number int) (*types.IssueSnapshot, error)
	UpdateIssueBody(ctx context.Context, nodeID, body string) error
}

// ClientFactory returns an issue client authorized for an installation
type ClientFactory interface {
	ForInstallation(ctx context.Context, installationID int64) (IssueClient, error)
}

// AppClientFactory authenticates as a GitHub App installation. The private
// key is read once from the secret resolver
type AppClientFactory struct {
	appID      int64
	keyName    string
	resolver   secrets.Resolver
	apiURL     string
	graphqlURL string
	transport  http.RoundTripper
	logger     *zap.Logger

	mu  sync.Mutex
	key []byte
}

// NewAppClientFactory creates a new GitHub App client factory
func NewAppClientFactory(
	appID int64,
	keyName string,
	resolver secrets.Resolver,
	apiURL, graphqlURL string,
	logger *zap.Logger,
) *AppClientFactory {
	return &AppClientFactory{
		appID:      appID,
		keyName:    keyName,
		resolver:   resolver,
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		graphqlURL: graphqlURL,
		transport:  http.DefaultTransport,
		logger:     logger,
	}
}

// ForInstallation returns a client using an installation access token
func (f *AppClientFactory) ForInstallation(ctx context.Context, installationID int64) (IssueClient, error) {
	if installationID == 0 {
		return nil, ErrNoInstallation
	}

	key, err := f.privateKey(ctx)
	if err != nil {
		return nil, err
	}

	tr, err := ghinstallation.New(f.transport, f.appID, installationID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation transport: %w", err)
	}
	if f.apiURL != "" {
		tr.BaseURL = f.apiURL
	}

	return NewClient(&http.Client{Transport: tr}, f.graphqlURL, f.logger), nil
}

func (f *AppClientFactory) privateKey(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.key != nil {
		return f.key, nil
	}

	value, err := f.resolver.GetSecret(ctx, f.keyName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve github app private key: %w", err)
	}

	f.key = NormalizePrivateKey(value)
	return f.key, nil
}

// NormalizePrivateKey restores line breaks in a PEM key that was stored
// with escaped newlines
func NormalizePrivateKey(value string) []byte {
	return []byte(strings.ReplaceAll(value, `\n`, "\n"))
}

// TokenClientFactory uses one static token for every installation
type TokenClientFactory struct {
	client *Client
}

// NewTokenClientFactory creates a client factory backed by a personal
// access token
func NewTokenClientFactory(accessToken, graphqlURL string, logger *zap.Logger) *TokenClientFactory {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: accessToken},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return &TokenClientFactory{client: NewClient(tc, graphqlURL, logger)}
}

// ForInstallation returns the shared client
func (f *TokenClientFactory) ForInstallation(context.Context, int64) (IssueClient, error) {
	return f.client, nil
}
