package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/jkorri/tmcli/internal/clienterr"
	"golang.org/x/oauth2"
)

// ExchangePassword performs the OAuth2 resource-owner password exchange
// against the configured token endpoint. Incorrect credentials map to
// AuthenticationError; an unreachable provider maps to ConnectionError.
func (c *Client) ExchangePassword(ctx context.Context, username, password string) (*oauth2.Token, error) {
	conf := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.hc)
	tok, err := conf.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			if isBadCredentials(rerr) {
				return nil, &clienterr.AuthenticationError{Msg: "incorrect username or password"}
			}
			status := 0
			statusText := ""
			if rerr.Response != nil {
				status = rerr.Response.StatusCode
				statusText = http.StatusText(status)
			}
			return nil, &clienterr.APIError{
				Status:     status,
				StatusText: statusText,
				Message:    errorMessage(rerr.Body),
			}
		}
		return nil, &clienterr.ConnectionError{Msg: "token exchange", Err: err}
	}
	return tok, nil
}

func isBadCredentials(rerr *oauth2.RetrieveError) bool {
	if rerr.ErrorCode == "invalid_grant" {
		return true
	}
	if rerr.Response == nil {
		return false
	}
	// Some provider versions answer bad credentials with a bare 400/401
	// and no error code.
	return rerr.Response.StatusCode == http.StatusBadRequest ||
		rerr.Response.StatusCode == http.StatusUnauthorized
}
