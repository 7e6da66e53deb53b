package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"slotcheck/internal/config"
	"slotcheck/internal/google"
	"slotcheck/internal/icloud"
	"slotcheck/internal/ics"
	"slotcheck/internal/microsoft"
	"slotcheck/internal/models"
	"slotcheck/internal/source"
	"slotcheck/internal/thunderbird"
)

// buildAdapters creates a calendar source for every configured account. A
// source that is configured but cannot be set up is replaced by a failed
// adapter, so it is reported as unavailable rather than read as free time.
func buildAdapters(ctx context.Context, logger *slog.Logger, cfg *config.Config, loc *time.Location) []source.Adapter {
	var adapters []source.Adapter
	failed := func(provider models.Provider, reason string, err error) {
		logger.Warn("Calendar source not set up", "provider", provider, "reason", reason, "error", err)
		adapters = append(adapters, source.Failed(provider, reason, err))
	}

	gStore := google.Tokens
	gStore.Dir = cfg.TokenDir
	for _, acc := range accounts(logger, "google", gStore.Accounts, cfg.Google.Accounts) {
		client, err := google.NewClient(ctx, logger, gStore, cfg.Google.ClientID, cfg.Google.ClientSecret, acc, cfg.Google.CalendarIDs, loc)
		if err != nil {
			failed(models.ProviderGoogle, fmt.Sprintf("account %s not authenticated", acc), err)
			continue
		}
		adapters = append(adapters, client)
	}

	msStore := microsoft.Tokens
	msStore.Dir = cfg.TokenDir
	if msAccounts := accounts(logger, "microsoft", msStore.Accounts, cfg.Microsoft.Accounts); len(msAccounts) > 0 {
		oauthCfg, err := microsoft.OAuthConfig(cfg.Microsoft.ClientID, cfg.Microsoft.ClientSecret, cfg.Microsoft.Tenant)
		if err != nil {
			failed(models.ProviderMicrosoft, "oauth client not configured", err)
		} else {
			for _, acc := range msAccounts {
				client, err := microsoft.NewClient(ctx, logger, msStore, oauthCfg, acc, cfg.Microsoft.CalendarIDs, loc)
				if err != nil {
					failed(models.ProviderMicrosoft, fmt.Sprintf("account %s not authenticated", acc), err)
					continue
				}
				adapters = append(adapters, client)
			}
		}
	}

	switch icloudCfg := cfg.ICloud; {
	case icloudCfg.Username == "" && icloudCfg.Password == "":
	case icloudCfg.Username == "" || icloudCfg.Password == "":
		failed(models.ProviderApple, "icloud username and app-specific password must both be set", nil)
	default:
		client, err := icloud.NewClient(logger, icloudCfg.Username, icloudCfg.Password, icloudCfg.CalendarNames, loc)
		if err != nil {
			failed(models.ProviderApple, "caldav client setup failed", err)
		} else {
			adapters = append(adapters, client)
		}
	}

	if profile := cfg.Thunderbird.Profile; profile != "" {
		if profile == "auto" {
			home, _ := os.UserHomeDir()
			found, err := thunderbird.FindProfile(home)
			if err != nil {
				failed(models.ProviderThunderbird, "profile not found", err)
			}
			profile = found
		}
		if profile != "" {
			store, err := thunderbird.New(logger, profile, cfg.Thunderbird.CalendarIDs, loc)
			if err != nil {
				failed(models.ProviderThunderbird, "calendar database not found", err)
			} else {
				adapters = append(adapters, store)
			}
		}
	}

	for _, f := range cfg.ICS {
		provider, err := models.ParseProvider(f.Provider)
		if err != nil {
			logger.Warn("Unknown provider for ics source, using other", "location", f.Location, "error", err)
			provider = models.ProviderOther
		}
		adapters = append(adapters, ics.New(logger, f.Location, f.Name, provider, loc))
	}

	return adapters
}

// accounts returns the configured accounts, or every account with a token
// file when none are configured.
func accounts(logger *slog.Logger, provider string, stored func() ([]string, error), configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	found, err := stored()
	if err != nil {
		logger.Debug("No token files found", "provider", provider, "error", err)
		return nil
	}
	return found
}
