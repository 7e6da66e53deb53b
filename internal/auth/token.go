// Package auth stores OAuth tokens on disk, one file per provider account.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// TokenStore keeps token files named <Prefix><account>.json inside Dir.
type TokenStore struct {
	Dir    string
	Prefix string
}

// Path returns the token file for account.
func (s TokenStore) Path(account string) string {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, s.Prefix+account+".json")
}

// Save writes token for account. The file is readable only by its owner.
func (s TokenStore) Save(account string, token *oauth2.Token) error {
	path := s.Path(account)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("unable to write token file %s: %w", path, err)
	}
	return nil
}

// Load reads the token saved for account.
func (s TokenStore) Load(account string) (*oauth2.Token, error) {
	f, err := os.Open(s.Path(account))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("corrupt token file %s: %w", s.Path(account), err)
	}
	return tok, nil
}

// Accounts lists the accounts that have a token file.
func (s TokenStore) Accounts() ([]string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var accounts []string
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasPrefix(name, s.Prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		accounts = append(accounts, strings.TrimSuffix(strings.TrimPrefix(name, s.Prefix), ".json"))
	}
	return accounts, nil
}

// TokenSource returns a source for account that refreshes through config and
// writes every refreshed token back to the store.
func (s TokenStore) TokenSource(ctx context.Context, logger *slog.Logger, config *oauth2.Config, account string) (oauth2.TokenSource, error) {
	tok, err := s.Load(account)
	if err != nil {
		return nil, err
	}
	return &persistingSource{
		base:    config.TokenSource(ctx, tok),
		store:   s,
		account: account,
		last:    tok.AccessToken,
		logger:  logger,
	}, nil
}

type persistingSource struct {
	base    oauth2.TokenSource
	store   TokenStore
	account string
	logger  *slog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := p.store.Save(p.account, tok); err != nil && p.logger != nil {
			p.logger.Warn("Could not persist refreshed token", "account", p.account, "error", err)
		}
	}
	return tok, nil
}
