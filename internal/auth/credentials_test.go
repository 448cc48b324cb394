package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProvider(t *testing.T) {
	p := StaticProvider{ProviderGitHub: " tok "}

	tok, err := p.Credential(context.Background(), ProviderGitHub)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	_, err = p.Credential(context.Background(), ProviderJira)
	assert.True(t, errors.Is(err, ErrNoCredential))
}

func TestEnvProviderOrder(t *testing.T) {
	t.Setenv("FIXBOT_GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "from-github-token")
	t.Setenv("GH_TOKEN", "from-gh-token")

	tok, err := DefaultEnvProvider().Credential(context.Background(), ProviderGitHub)
	require.NoError(t, err)
	assert.Equal(t, "from-github-token", tok)
}

func TestChain(t *testing.T) {
	chain := Chain{StaticProvider{}, nil, StaticProvider{ProviderJira: "j"}}

	tok, err := chain.Credential(context.Background(), ProviderJira)
	require.NoError(t, err)
	assert.Equal(t, "j", tok)

	_, err = chain.Credential(context.Background(), ProviderGitHub)
	assert.ErrorIs(t, err, ErrNoCredential)
}
