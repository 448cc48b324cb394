// Package auth supplies bearer credentials to outbound clients.
// Acquiring or refreshing tokens is the caller's business; this package only
// hands out what has been configured.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Provider names used across the module.
const (
	ProviderJira   = "jira"
	ProviderGitHub = "github"
)

// ErrNoCredential is returned when no credential is configured for a provider.
var ErrNoCredential = errors.New("no credential configured")

// CredentialProvider returns a bearer credential for a named provider.
type CredentialProvider interface {
	Credential(ctx context.Context, provider string) (string, error)
}

// StaticProvider serves credentials from a fixed map.
type StaticProvider map[string]string

// Credential implements CredentialProvider.
func (p StaticProvider) Credential(_ context.Context, provider string) (string, error) {
	if tok := strings.TrimSpace(p[provider]); tok != "" {
		return tok, nil
	}
	return "", fmt.Errorf("%s: %w", provider, ErrNoCredential)
}

// EnvProvider reads credentials from environment variables. For each
// provider the listed variables are tried in order.
type EnvProvider struct {
	Vars map[string][]string
}

// DefaultEnvProvider maps providers to their conventional variables.
func DefaultEnvProvider() *EnvProvider {
	return &EnvProvider{Vars: map[string][]string{
		ProviderJira:   {"FIXBOT_JIRA_TOKEN", "JIRA_API_TOKEN"},
		ProviderGitHub: {"FIXBOT_GITHUB_TOKEN", "GITHUB_TOKEN", "GH_TOKEN"},
	}}
}

// Credential implements CredentialProvider.
func (p *EnvProvider) Credential(_ context.Context, provider string) (string, error) {
	for _, name := range p.Vars[provider] {
		if tok := strings.TrimSpace(os.Getenv(name)); tok != "" {
			return tok, nil
		}
	}
	return "", fmt.Errorf("%s: %w", provider, ErrNoCredential)
}

// Chain tries providers in order and returns the first credential found.
type Chain []CredentialProvider

// Credential implements CredentialProvider.
func (c Chain) Credential(ctx context.Context, provider string) (string, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		tok, err := p.Credential(ctx, provider)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, ErrNoCredential) {
			return "", err
		}
	}
	return "", fmt.Errorf("%s: %w", provider, ErrNoCredential)
}
