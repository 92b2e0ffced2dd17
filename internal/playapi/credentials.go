package playapi

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/androidpublisher/v3"

	"github.com/CaioWing/apkharbor/internal/domain"
)

// LoadTokenSource resolves service-account credentials into a token source
// and fetches one token to prove they are usable. With an empty path the
// Application Default Credentials are used.
func LoadTokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	var creds *google.Credentials
	if credentialsFile == "" {
		c, err := google.FindDefaultCredentials(ctx, androidpublisher.AndroidpublisherScope)
		if err != nil {
			return nil, fmt.Errorf("%w: no credentials file given and no default credentials found: %v", domain.ErrAuthentication, err)
		}
		creds = c
	} else {
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("%w: read credentials file: %v", domain.ErrAuthentication, err)
		}
		c, err := google.CredentialsFromJSON(ctx, data, androidpublisher.AndroidpublisherScope)
		if err != nil {
			return nil, fmt.Errorf("%w: parse credentials: %v", domain.ErrAuthentication, err)
		}
		creds = c
	}

	ts := oauth2.ReuseTokenSource(nil, creds.TokenSource)
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("%w: obtain access token: %v", domain.ErrAuthentication, err)
	}
	return ts, nil
}
