package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"notionmail/internal/config"
	"notionmail/internal/external"
)

// Scopes requested at sign-in. offline_access is what makes the identity
// platform issue a refresh token.
func deviceScopes() []string {
	return []string{"https://graph.microsoft.com/Mail.Send", "offline_access"}
}

// deviceConfig returns the public-client OAuth configuration for tenant.
func deviceConfig(clientID, tenant string) *oauth2.Config {
	if tenant == "" {
		tenant = external.DefaultTenant
	}
	endpoint := microsoft.AzureADEndpoint(tenant)
	if endpoint.DeviceAuthURL == "" {
		endpoint.DeviceAuthURL = "https://login.microsoftonline.com/" + tenant + "/oauth2/v2.0/devicecode"
	}
	// Public clients have no secret; never probe with basic auth.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   deviceScopes(),
		Endpoint: endpoint,
	}
}

// signIn runs the device authorization grant: it prints the verification
// URI and user code to out, then polls until the operator completes the
// sign-in or ctx ends.
func signIn(ctx context.Context, cfg *oauth2.Config, out io.Writer) (*oauth2.Token, error) {
	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("requesting device code: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Open:  %s\n", da.VerificationURI)
	fmt.Fprintf(out, "  Code:  %s\n", da.UserCode)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Sign in with the account that will send the emails.")

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("waiting for sign-in: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, errors.New("no refresh token issued; offline_access was not granted")
	}
	return tok, nil
}

// verifyRefreshToken performs one refresh-token exchange exactly like the
// mailer does. If the identity platform rotates the token during the
// exchange, the rotated value is returned.
func verifyRefreshToken(ctx context.Context, httpClient *http.Client, cfg *oauth2.Config, refreshToken string, logger *slog.Logger) (string, error) {
	current := refreshToken
	tm := external.NewTokenManager(httpClient, external.TokenManagerConfig{
		ClientID:     cfg.ClientID,
		RefreshToken: config.SecretString(refreshToken),
		TokenURL:     cfg.Endpoint.TokenURL,
		Logger:       logger,
		OnRotate: func(rotated string) {
			current = rotated
		},
	})

	if _, err := tm.Token(ctx); err != nil {
		return "", err
	}
	logger.Info("refresh token verified")
	return current, nil
}
