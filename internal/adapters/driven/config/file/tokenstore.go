package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

// TokenStore persists the Drive OAuth token as JSON next to the config.
type TokenStore struct {
	mu       sync.Mutex
	filePath string
}

// NewTokenStore creates a token store in configDir. If configDir is
// empty, defaults to ~/.kapsel.
func NewTokenStore(configDir string) (*TokenStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".kapsel")
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}
	return &TokenStore{filePath: filepath.Join(configDir, "token.json")}, nil
}

// Load reads the stored token. Returns domain.ErrNoAccount when no token
// has been saved yet.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNoAccount
		}
		return nil, fmt.Errorf("reading token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	return &token, nil
}

// Save persists the token with restricted permissions.
func (s *TokenStore) Save(token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	return nil
}

// Clear removes the stored token.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing token: %w", err)
	}
	return nil
}

// TokenSource returns a refreshing token source that persists rotated
// tokens back to disk, so a refresh in one run survives to the next.
func (s *TokenStore) TokenSource(ctx context.Context, cfg *oauth2.Config) (oauth2.TokenSource, error) {
	token, err := s.Load()
	if err != nil {
		return nil, err
	}
	return &persistingTokenSource{
		store: s,
		inner: cfg.TokenSource(ctx, token),
		last:  token,
	}, nil
}

type persistingTokenSource struct {
	store *TokenStore
	inner oauth2.TokenSource

	mu   sync.Mutex
	last *oauth2.Token
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.inner.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token.AccessToken != p.last.AccessToken {
		p.last = token
		// Persistence is best effort; the token is still valid in memory.
		_ = p.store.Save(token)
	}
	return token, nil
}
