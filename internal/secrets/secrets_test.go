package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeVault struct {
	values map[string]string
	calls  []string
	err    error
}

func (f *fakeVault) GetSecret(_ context.Context, name, version string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.calls = append(f.calls, name+"@"+version)
	if f.err != nil {
		return azsecrets.GetSecretResponse{}, f.err
	}
	var resp azsecrets.GetSecretResponse
	if value, ok := f.values[name]; ok {
		resp.Value = &value
	}
	return resp, nil
}

func TestKeyVault_GetSecret(t *testing.T) {
	vault := &fakeVault{values: map[string]string{"GIT-RSA": "pem"}}
	resolver := &KeyVault{client: vault, logger: zaptest.NewLogger(t)}

	value, err := resolver.GetSecret(context.Background(), "GIT-RSA")
	require.NoError(t, err)
	assert.Equal(t, "pem", value)
	assert.Equal(t, []string{"GIT-RSA@"}, vault.calls)

	_, err = resolver.GetSecret(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKeyVault_Error(t *testing.T) {
	cause := errors.New("forbidden")
	resolver := &KeyVault{client: &fakeVault{err: cause}, logger: zaptest.NewLogger(t)}

	_, err := resolver.GetSecret(context.Background(), "GIT-RSA")
	require.ErrorIs(t, err, cause)
}

func TestStatic_GetSecret(t *testing.T) {
	static := Static{"GIT-RSA": "pem", "empty": ""}

	value, err := static.GetSecret(context.Background(), "GIT-RSA")
	require.NoError(t, err)
	assert.Equal(t, "pem", value)

	_, err = static.GetSecret(context.Background(), "empty")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestChain_GetSecret(t *testing.T) {
	cause := errors.New("vault unavailable")
	vault := &KeyVault{client: &fakeVault{err: cause}, logger: zaptest.NewLogger(t)}

	tests := []struct {
		name    string
		chain   Chain
		want    string
		wantErr error
	}{
		{name: "first resolver wins", chain: Chain{Static{"k": "a"}, Static{"k": "b"}}, want: "a"},
		{name: "falls back after failure", chain: Chain{vault, Static{"k": "b"}}, want: "b"},
		{name: "all fail", chain: Chain{vault, Static{}}, wantErr: cause},
		{name: "empty chain", chain: Chain{}, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := tt.chain.GetSecret(context.Background(), "k")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, value)
		})
	}
}
