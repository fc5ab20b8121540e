package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// TokenSourceFromFiles builds a refreshing token source from an OAuth
// client-secrets file and a previously saved token file. Obtaining the
// initial token (the interactive consent flow) is out of scope here;
// any OAuth helper that writes a standard token JSON will do.
func TokenSourceFromFiles(ctx context.Context, secretsPath, tokenPath string) (option.ClientOption, error) {
	secrets, err := os.ReadFile(secretsPath)
	if err != nil {
		return nil, fmt.Errorf("gcal: reading client secrets: %w", err)
	}
	config, err := google.ConfigFromJSON(secrets, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("gcal: parsing client secrets: %w", err)
	}

	raw, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("gcal: reading token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("gcal: parsing token file: %w", err)
	}

	// TokenSource refreshes expired access tokens transparently as
	// long as the refresh token stays valid.
	return option.WithTokenSource(config.TokenSource(ctx, &token)), nil
}
