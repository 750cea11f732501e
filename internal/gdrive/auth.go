package gdrive

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DriveScope grants full access to the account's Drive.
const DriveScope = "https://www.googleapis.com/auth/drive"

// serviceAccountTokens adapts an oauth2.TokenSource to TokenSource.
type serviceAccountTokens struct {
	ts oauth2.TokenSource
}

func (s *serviceAccountTokens) Token() (string, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return "", err
	}

	return tok.AccessToken, nil
}

// ServiceAccountTokenSource loads a service account key file and returns a
// caching token source for the Drive scope. The returned source binds ctx to
// the underlying oauth2 token exchange.
func ServiceAccountTokenSource(ctx context.Context, credentialsFile string) (TokenSource, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("gdrive: reading credentials %s: %w", credentialsFile, err)
	}

	cfg, err := google.JWTConfigFromJSON(data, DriveScope)
	if err != nil {
		return nil, fmt.Errorf("gdrive: parsing credentials %s: %w", credentialsFile, err)
	}

	return &serviceAccountTokens{ts: cfg.TokenSource(ctx)}, nil
}
